package media

import "time"

// Set statuses recorded in the capture-set index.
const (
	// SetStatusRunning marks a set whose sequence is still in progress.
	SetStatusRunning = "running"

	// SetStatusCompleted marks a set whose sequence finished every step.
	SetStatusCompleted = "completed"

	// SetStatusFailed marks a set whose sequence stopped early. Artifacts
	// captured before the failure are kept.
	SetStatusFailed = "failed"
)

// CaptureSet is one indexed capture set. Artifact bytes live on disk under
// the media base directory; the index records status and counters.
type CaptureSet struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	ArtifactCount int        `json:"artifact_count"`
	ErrorDetail   string     `json:"error_detail,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Artifact is one captured image within a set.
type Artifact struct {
	ID        int64     `json:"id"`
	SetID     int64     `json:"-"`
	StepIndex int       `json:"step_index"`
	Light     string    `json:"light"`
	Filename  string    `json:"filename"`
	Mimetype  string    `json:"mimetype"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
