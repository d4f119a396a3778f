package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Directory and file permissions for captured artifacts.
const (
	dirPermissions  = 0750
	filePermissions = 0640
)

// setsSubdir is the directory under the base dir holding capture sets.
const setsSubdir = "sets"

// Store persists capture artifacts on disk and indexes them through a
// Repository. Artifact bytes stay on the filesystem; the index carries
// set status and counters.
//
// Every path handed to the filesystem is first confined to the base
// directory; names that traverse outside it are rejected with
// ErrUnsafePath before any disk access.
type Store struct {
	baseDir string
	repo    Repository
	logger  Logger
}

// Logger is the minimal logging interface the store needs.
// Compatible with logging.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// NewStore creates a Store rooted at baseDir, creating the directory tree
// if needed.
//
// Parameters:
//   - baseDir: Root directory for captured artifacts
//   - repo: Capture-set index repository
//   - logger: Optional logger (nil for silent operation)
//
// Returns:
//   - *Store: Ready store
//   - error: If the directory tree cannot be created
func NewStore(baseDir string, repo Repository, logger Logger) (*Store, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving media base dir: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(abs, setsSubdir), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating media directories: %w", err)
	}

	if logger == nil {
		logger = noopLogger{}
	}

	return &Store{
		baseDir: abs,
		repo:    repo,
		logger:  logger,
	}, nil
}

// BaseDir returns the absolute root directory for artifacts.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// CreateSet indexes a new capture set and creates its directory.
//
// Returns ErrInvalidName for names outside the allowed alphabet and
// ErrSetExists if the name is already indexed.
func (s *Store) CreateSet(ctx context.Context, name string) (*CaptureSet, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	set, err := s.repo.CreateSet(ctx, name)
	if err != nil {
		return nil, err
	}

	dir, err := s.setDir(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating set directory: %w", err)
	}

	return set, nil
}

// SaveArtifact writes one captured image to the set's directory and records
// it in the index. The filename is derived from the step index and light.
//
// Parameters:
//   - setName: The capture set to save into
//   - stepIndex: Zero-based sequence step
//   - light: The light active during the capture
//   - data: Raw image bytes
//   - mimetype: Image MIME type (drives the file extension)
//
// Returns:
//   - *Artifact: The recorded artifact with its generated filename
//   - error: ErrSetNotFound, ErrUnsafePath, or a filesystem error
func (s *Store) SaveArtifact(ctx context.Context, setName string, stepIndex int, light string, data []byte, mimetype string) (*Artifact, error) {
	set, err := s.repo.GetSetByName(ctx, setName)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("step_%02d_%s%s", stepIndex, sanitizeFragment(light), extensionFor(mimetype))

	path, err := s.artifactPath(setName, filename)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, data, filePermissions); err != nil {
		return nil, fmt.Errorf("writing artifact: %w", err)
	}

	artifact := &Artifact{
		StepIndex: stepIndex,
		Light:     light,
		Filename:  filename,
		Mimetype:  mimetype,
		SizeBytes: int64(len(data)),
	}
	if err := s.repo.AddArtifact(ctx, set.ID, artifact); err != nil {
		// Index and disk now disagree; remove the orphan file
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove orphan artifact file", "path", path, "error", rmErr)
		}
		return nil, err
	}

	return artifact, nil
}

// FinalizeSet records the terminal status of a set.
func (s *Store) FinalizeSet(ctx context.Context, setName, status, errorDetail string) error {
	set, err := s.repo.GetSetByName(ctx, setName)
	if err != nil {
		return err
	}
	return s.repo.FinalizeSet(ctx, set.ID, status, errorDetail)
}

// ListSets returns all indexed capture sets, newest first.
func (s *Store) ListSets(ctx context.Context) ([]CaptureSet, error) {
	return s.repo.ListSets(ctx)
}

// GetSet returns a set and its artifacts.
func (s *Store) GetSet(ctx context.Context, name string) (*CaptureSet, []Artifact, error) {
	set, err := s.repo.GetSetByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	artifacts, err := s.repo.ListArtifacts(ctx, set.ID)
	if err != nil {
		return nil, nil, err
	}

	return set, artifacts, nil
}

// DeleteSet removes a set from the index and deletes its directory.
func (s *Store) DeleteSet(ctx context.Context, name string) error {
	set, err := s.repo.GetSetByName(ctx, name)
	if err != nil {
		return err
	}

	dir, err := s.setDir(name)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteSet(ctx, set.ID); err != nil {
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing set directory: %w", err)
	}
	return nil
}

// ReadArtifact returns the bytes and MIME type of one artifact.
//
// The artifact must be indexed; unindexed files in the set directory are
// not served.
func (s *Store) ReadArtifact(ctx context.Context, setName, filename string) ([]byte, string, error) {
	set, err := s.repo.GetSetByName(ctx, setName)
	if err != nil {
		return nil, "", err
	}

	artifacts, err := s.repo.ListArtifacts(ctx, set.ID)
	if err != nil {
		return nil, "", err
	}

	var mimetype string
	found := false
	for _, a := range artifacts {
		if a.Filename == filename {
			mimetype = a.Mimetype
			found = true
			break
		}
	}
	if !found {
		return nil, "", ErrArtifactNotFound
	}

	path, err := s.artifactPath(setName, filename)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrArtifactNotFound
		}
		return nil, "", fmt.Errorf("reading artifact: %w", err)
	}

	return data, mimetype, nil
}

// setDir returns the confined directory for a set.
func (s *Store) setDir(name string) (string, error) {
	return s.confine(filepath.Join(s.baseDir, setsSubdir, name))
}

// artifactPath returns the confined path for an artifact file.
func (s *Store) artifactPath(setName, filename string) (string, error) {
	return s.confine(filepath.Join(s.baseDir, setsSubdir, setName, filename))
}

// confine resolves candidate and verifies it stays under the base directory.
func (s *Store) confine(candidate string) (string, error) {
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	rel, err := filepath.Rel(s.baseDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}

	return abs, nil
}

// validateName checks a set name against the allowed alphabet.
// Names are used as directory names, so path metacharacters are rejected.
func validateName(name string) error {
	if name == "" || len(name) > 128 {
		return ErrInvalidName
	}
	if strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return ErrInvalidName
		}
	}
	return nil
}

// sanitizeFragment maps arbitrary input to a filesystem-safe fragment.
func sanitizeFragment(input string) string {
	var b strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// extensionFor maps a MIME type to a file extension.
func extensionFor(mimetype string) string {
	switch strings.ToLower(mimetype) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/tiff":
		return ".tif"
	case "image/x-canon-cr2":
		return ".cr2"
	default:
		return ".bin"
	}
}
