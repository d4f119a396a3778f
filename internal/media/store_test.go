package media_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openphotometrics/rigbridge/internal/infrastructure/database"
	"github.com/openphotometrics/rigbridge/internal/media"
	_ "github.com/openphotometrics/rigbridge/migrations"
)

// newTestStore creates a store backed by a temporary database and directory.
func newTestStore(t *testing.T) *media.Store {
	t.Helper()

	tmpDir := t.TempDir()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(tmpDir, "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	repo := media.NewSQLiteRepository(db.DB)
	store, err := media.NewStore(filepath.Join(tmpDir, "captures"), repo, nil)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	return store
}

func TestCreateSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	set, err := store.CreateSet(ctx, "scan-001")
	if err != nil {
		t.Fatalf("CreateSet() error = %v", err)
	}

	if set.Name != "scan-001" {
		t.Errorf("Name = %q, want scan-001", set.Name)
	}
	if set.Status != media.SetStatusRunning {
		t.Errorf("Status = %q, want running", set.Status)
	}

	// Directory should exist
	dir := filepath.Join(store.BaseDir(), "sets", "scan-001")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("set directory was not created")
	}
}

func TestCreateSet_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateSet(ctx, "scan-001"); err != nil {
		t.Fatalf("CreateSet() error = %v", err)
	}

	_, err := store.CreateSet(ctx, "scan-001")
	if !errors.Is(err, media.ErrSetExists) {
		t.Errorf("CreateSet() duplicate error = %v, want ErrSetExists", err)
	}
}

func TestCreateSet_InvalidNames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		setName string
	}{
		{"empty", ""},
		{"path traversal", "../escape"},
		{"slash", "a/b"},
		{"hidden", ".hidden"},
		{"spaces", "has space"},
		{"null byte", "a\x00b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateSet(ctx, tt.setName)
			if !errors.Is(err, media.ErrInvalidName) {
				t.Errorf("CreateSet(%q) error = %v, want ErrInvalidName", tt.setName, err)
			}
		})
	}
}

func TestSaveAndReadArtifact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateSet(ctx, "scan-001"); err != nil {
		t.Fatalf("CreateSet() error = %v", err)
	}

	imageData := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}
	artifact, err := store.SaveArtifact(ctx, "scan-001", 0, "ringlight_top", imageData, "image/jpeg")
	if err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}

	if artifact.Filename != "step_00_ringlight_top.jpg" {
		t.Errorf("Filename = %q, want step_00_ringlight_top.jpg", artifact.Filename)
	}
	if artifact.SizeBytes != int64(len(imageData)) {
		t.Errorf("SizeBytes = %d, want %d", artifact.SizeBytes, len(imageData))
	}

	data, mimetype, err := store.ReadArtifact(ctx, "scan-001", artifact.Filename)
	if err != nil {
		t.Fatalf("ReadArtifact() error = %v", err)
	}
	if mimetype != "image/jpeg" {
		t.Errorf("mimetype = %q, want image/jpeg", mimetype)
	}
	if string(data) != string(imageData) {
		t.Error("artifact bytes do not round-trip")
	}
}

func TestSaveArtifact_SetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveArtifact(context.Background(), "nope", 0, "light", []byte("x"), "image/jpeg")
	if !errors.Is(err, media.ErrSetNotFound) {
		t.Errorf("SaveArtifact() error = %v, want ErrSetNotFound", err)
	}
}

func TestReadArtifact_Unindexed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateSet(ctx, "scan-001"); err != nil {
		t.Fatalf("CreateSet() error = %v", err)
	}

	// A file on disk without an index row must not be served
	rogue := filepath.Join(store.BaseDir(), "sets", "scan-001", "rogue.jpg")
	if err := os.WriteFile(rogue, []byte("x"), 0640); err != nil {
		t.Fatalf("writing rogue file: %v", err)
	}

	_, _, err := store.ReadArtifact(ctx, "scan-001", "rogue.jpg")
	if !errors.Is(err, media.ErrArtifactNotFound) {
		t.Errorf("ReadArtifact() error = %v, want ErrArtifactNotFound", err)
	}
}

func TestReadArtifact_Traversal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateSet(ctx, "scan-001"); err != nil {
		t.Fatalf("CreateSet() error = %v", err)
	}

	_, _, err := store.ReadArtifact(ctx, "scan-001", "../../../../etc/passwd")
	if err == nil {
		t.Fatal("ReadArtifact() with traversal filename should fail")
	}
}

func TestFinalizeSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateSet(ctx, "scan-001"); err != nil {
		t.Fatalf("CreateSet() error = %v", err)
	}

	if err := store.FinalizeSet(ctx, "scan-001", media.SetStatusFailed, "light did not respond"); err != nil {
		t.Fatalf("FinalizeSet() error = %v", err)
	}

	set, _, err := store.GetSet(ctx, "scan-001")
	if err != nil {
		t.Fatalf("GetSet() error = %v", err)
	}

	if set.Status != media.SetStatusFailed {
		t.Errorf("Status = %q, want failed", set.Status)
	}
	if set.ErrorDetail != "light did not respond" {
		t.Errorf("ErrorDetail = %q, want 'light did not respond'", set.ErrorDetail)
	}
	if set.CompletedAt == nil {
		t.Error("CompletedAt should be set after finalize")
	}
}

func TestFinalizeSet_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.FinalizeSet(context.Background(), "nope", media.SetStatusCompleted, "")
	if !errors.Is(err, media.ErrSetNotFound) {
		t.Errorf("FinalizeSet() error = %v, want ErrSetNotFound", err)
	}
}

func TestGetSet_WithArtifacts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateSet(ctx, "scan-001"); err != nil {
		t.Fatalf("CreateSet() error = %v", err)
	}

	lights := []string{"ringlight_top", "raking_left", "raking_right"}
	for i, light := range lights {
		if _, err := store.SaveArtifact(ctx, "scan-001", i, light, []byte("img"), "image/jpeg"); err != nil {
			t.Fatalf("SaveArtifact(%d) error = %v", i, err)
		}
	}

	set, artifacts, err := store.GetSet(ctx, "scan-001")
	if err != nil {
		t.Fatalf("GetSet() error = %v", err)
	}

	if set.ArtifactCount != 3 {
		t.Errorf("ArtifactCount = %d, want 3", set.ArtifactCount)
	}
	if len(artifacts) != 3 {
		t.Fatalf("len(artifacts) = %d, want 3", len(artifacts))
	}
	for i, light := range lights {
		if artifacts[i].StepIndex != i {
			t.Errorf("artifacts[%d].StepIndex = %d, want %d", i, artifacts[i].StepIndex, i)
		}
		if artifacts[i].Light != light {
			t.Errorf("artifacts[%d].Light = %q, want %q", i, artifacts[i].Light, light)
		}
	}
}

func TestDeleteSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateSet(ctx, "scan-001"); err != nil {
		t.Fatalf("CreateSet() error = %v", err)
	}
	if _, err := store.SaveArtifact(ctx, "scan-001", 0, "light", []byte("img"), "image/jpeg"); err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}

	if err := store.DeleteSet(ctx, "scan-001"); err != nil {
		t.Fatalf("DeleteSet() error = %v", err)
	}

	// Index row gone
	_, _, err := store.GetSet(ctx, "scan-001")
	if !errors.Is(err, media.ErrSetNotFound) {
		t.Errorf("GetSet() after delete error = %v, want ErrSetNotFound", err)
	}

	// Directory gone
	dir := filepath.Join(store.BaseDir(), "sets", "scan-001")
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("set directory should have been removed")
	}
}

func TestDeleteSet_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.DeleteSet(context.Background(), "nope")
	if !errors.Is(err, media.ErrSetNotFound) {
		t.Errorf("DeleteSet() error = %v, want ErrSetNotFound", err)
	}
}

func TestListSets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"scan-001", "scan-002"} {
		if _, err := store.CreateSet(ctx, name); err != nil {
			t.Fatalf("CreateSet(%s) error = %v", name, err)
		}
	}

	sets, err := store.ListSets(ctx)
	if err != nil {
		t.Fatalf("ListSets() error = %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("len(sets) = %d, want 2", len(sets))
	}

	// Newest first
	if sets[0].Name != "scan-002" {
		t.Errorf("sets[0].Name = %q, want scan-002", sets[0].Name)
	}
}
