package sequence

// Status is the lifecycle state of a sequence run.
type Status string

// Run states. Terminal states are transient: the arbiter's slot is
// released once the final result has been delivered.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one execution of a light/capture sequence.
// Mutated only by the engine goroutine executing it.
type Run struct {
	ID           string
	SetName      string
	Steps        []string
	CurrentIndex int
	Status       Status
	ErrorDetail  string
	Artifacts    []ArtifactRef
}

// NewRun creates a run ready to execute.
func NewRun(id, setName string, steps []string) *Run {
	return &Run{
		ID:      id,
		SetName: setName,
		Steps:   steps,
		Status:  StatusIdle,
	}
}

// ArtifactRef identifies one captured image within a run.
type ArtifactRef struct {
	StepIndex int    `json:"step_index"`
	Light     string `json:"light"`
	Filename  string `json:"filename"`
}

// Progress is one step-level progress event, delivered to the owning
// client while the run executes.
type Progress struct {
	SetName     string `json:"set_name"`
	StepIndex   int    `json:"step_index"`
	Light       string `json:"light"`
	Status      string `json:"status"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// Progress status values.
const (
	ProgressPreparing = "preparing"
	ProgressCaptured  = "captured"
	ProgressFailed    = "failed"
)

// ProgressFunc receives progress events. Must not block.
type ProgressFunc func(Progress)

// Result is the final outcome of a run.
type Result struct {
	RunID       string        `json:"run_id"`
	SetName     string        `json:"set_name"`
	Status      Status        `json:"status"`
	Artifacts   []ArtifactRef `json:"artifacts"`
	Count       int           `json:"count"`
	ErrorDetail string        `json:"error_detail,omitempty"`
}
