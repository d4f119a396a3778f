package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the persistence interface for the capture-set index.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// CreateSet inserts a new set row with status running.
	// Returns ErrSetExists if the name is already indexed.
	CreateSet(ctx context.Context, name string) (*CaptureSet, error)

	// GetSetByName retrieves a set by name.
	// Returns ErrSetNotFound if it does not exist.
	GetSetByName(ctx context.Context, name string) (*CaptureSet, error)

	// ListSets retrieves all sets, newest first.
	ListSets(ctx context.Context) ([]CaptureSet, error)

	// AddArtifact records one artifact for a set and bumps its counter.
	AddArtifact(ctx context.Context, setID int64, artifact *Artifact) error

	// ListArtifacts retrieves a set's artifacts in step order.
	ListArtifacts(ctx context.Context, setID int64) ([]Artifact, error)

	// FinalizeSet records the terminal status of a set.
	FinalizeSet(ctx context.Context, setID int64, status, errorDetail string) error

	// DeleteSet removes a set and its artifact rows.
	// Returns ErrSetNotFound if it does not exist.
	DeleteSet(ctx context.Context, setID int64) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateSet inserts a new set row with status running.
func (r *SQLiteRepository) CreateSet(ctx context.Context, name string) (*CaptureSet, error) {
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO capture_sets (name, status, artifact_count, created_at)
		VALUES (?, ?, 0, ?)`,
		name, SetStatusRunning, now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSetExists
		}
		return nil, fmt.Errorf("inserting capture set: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading set id: %w", err)
	}

	return &CaptureSet{
		ID:        id,
		Name:      name,
		Status:    SetStatusRunning,
		CreatedAt: now,
	}, nil
}

// GetSetByName retrieves a set by name.
func (r *SQLiteRepository) GetSetByName(ctx context.Context, name string) (*CaptureSet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, status, artifact_count, error_detail, created_at, completed_at
		FROM capture_sets
		WHERE name = ?`,
		name,
	)

	set, err := scanSet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSetNotFound
		}
		return nil, fmt.Errorf("querying capture set by name: %w", err)
	}
	return set, nil
}

// ListSets retrieves all sets, newest first.
func (r *SQLiteRepository) ListSets(ctx context.Context) ([]CaptureSet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, status, artifact_count, error_detail, created_at, completed_at
		FROM capture_sets
		ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying capture sets: %w", err)
	}
	defer rows.Close()

	var sets []CaptureSet
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning capture set: %w", err)
		}
		sets = append(sets, *set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating capture sets: %w", err)
	}
	return sets, nil
}

// AddArtifact records one artifact for a set and bumps its counter.
func (r *SQLiteRepository) AddArtifact(ctx context.Context, setID int64, artifact *Artifact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO capture_artifacts (set_id, step_index, light, filename, mimetype, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		setID, artifact.StepIndex, artifact.Light, artifact.Filename,
		artifact.Mimetype, artifact.SizeBytes, now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting artifact: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE capture_sets SET artifact_count = artifact_count + 1 WHERE id = ?`,
		setID,
	); err != nil {
		return fmt.Errorf("updating artifact count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing artifact: %w", err)
	}

	artifact.ID, _ = result.LastInsertId() //nolint:errcheck // SQLite always reports it
	artifact.SetID = setID
	artifact.CreatedAt = now
	return nil
}

// ListArtifacts retrieves a set's artifacts in step order.
func (r *SQLiteRepository) ListArtifacts(ctx context.Context, setID int64) ([]Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, set_id, step_index, light, filename, mimetype, size_bytes, created_at
		FROM capture_artifacts
		WHERE set_id = ?
		ORDER BY step_index`,
		setID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		var createdAt string
		if err := rows.Scan(&a.ID, &a.SetID, &a.StepIndex, &a.Light,
			&a.Filename, &a.Mimetype, &a.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artifacts: %w", err)
	}
	return artifacts, nil
}

// FinalizeSet records the terminal status of a set.
func (r *SQLiteRepository) FinalizeSet(ctx context.Context, setID int64, status, errorDetail string) error {
	var detail interface{}
	if errorDetail != "" {
		detail = errorDetail
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE capture_sets
		SET status = ?, error_detail = ?, completed_at = ?
		WHERE id = ?`,
		status, detail, time.Now().UTC().Format(time.RFC3339), setID,
	)
	if err != nil {
		return fmt.Errorf("finalizing capture set: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSetNotFound
	}
	return nil
}

// DeleteSet removes a set and its artifact rows.
// Artifact rows cascade via the foreign key.
func (r *SQLiteRepository) DeleteSet(ctx context.Context, setID int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM capture_sets WHERE id = ?", setID)
	if err != nil {
		return fmt.Errorf("deleting capture set: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSetNotFound
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSet scans one capture_sets row.
func scanSet(row rowScanner) (*CaptureSet, error) {
	var set CaptureSet
	var errorDetail sql.NullString
	var createdAt string
	var completedAt sql.NullString

	if err := row.Scan(&set.ID, &set.Name, &set.Status, &set.ArtifactCount,
		&errorDetail, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	if errorDetail.Valid {
		set.ErrorDetail = errorDetail.String
	}
	set.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err == nil {
			set.CompletedAt = &t
		}
	}

	return &set, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
