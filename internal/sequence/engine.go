package sequence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/openphotometrics/rigbridge/internal/devlink"
	"github.com/openphotometrics/rigbridge/internal/media"
)

// Default timing for sequence execution.
const (
	// defaultSettleDelay lets the light and exposure settle before capture.
	defaultSettleDelay = 1500 * time.Millisecond

	// defaultInterStepDelay separates consecutive steps.
	defaultInterStepDelay = 750 * time.Millisecond

	// defaultCleanupTimeout bounds each light-off command in the final
	// cleanup phase.
	defaultCleanupTimeout = 2 * time.Second
)

// Config holds sequence timing configuration.
type Config struct {
	// SettleDelay is the wait between light-on and capture.
	SettleDelay time.Duration

	// InterStepDelay is the wait between consecutive steps.
	InterStepDelay time.Duration

	// CaptureTimeout overrides the request budget for capture_image.
	// Zero uses the link's default.
	CaptureTimeout time.Duration

	// CleanupTimeout bounds each light-off in the final cleanup phase.
	CleanupTimeout time.Duration
}

// Commander is the device request surface the engine needs.
// Satisfied by devlink.Link.
type Commander interface {
	SendWithTimeout(ctx context.Context, action string, payload any, timeout time.Duration) (*devlink.Response, error)
}

// ArtifactStore persists captured images. Satisfied by media.Store.
type ArtifactStore interface {
	CreateSet(ctx context.Context, name string) (*media.CaptureSet, error)
	SaveArtifact(ctx context.Context, setName string, stepIndex int, light string, data []byte, mimetype string) (*media.Artifact, error)
	FinalizeSet(ctx context.Context, setName, status, errorDetail string) error
}

// Recorder observes run lifecycle for telemetry. Optional.
type Recorder interface {
	SequenceStarted(setName string, steps []string)
	SequenceFinished(result Result, duration time.Duration)
}

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Engine executes light/capture sequences.
//
// State machine per run: Idle → Running → {Completed, Failed}. A failing
// device command aborts the remaining steps but is fully caught; the run
// terminates with Failed and the device error in ErrorDetail. Whatever
// branch terminates the loop, the cleanup phase switches every light in
// the run's universe off.
type Engine struct {
	commander Commander
	store     ArtifactStore
	cfg       Config

	recorder   Recorder
	recorderMu sync.RWMutex

	logger Logger
}

// NewEngine creates an engine.
//
// Parameters:
//   - commander: Device link for light and capture commands
//   - store: Artifact persistence
//   - cfg: Timing configuration (zero durations get defaults)
//   - logger: Optional logger (nil for silent operation)
func NewEngine(commander Commander, store ArtifactStore, cfg Config, logger Logger) *Engine {
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.InterStepDelay == 0 {
		cfg.InterStepDelay = defaultInterStepDelay
	}
	if cfg.CleanupTimeout == 0 {
		cfg.CleanupTimeout = defaultCleanupTimeout
	}

	return &Engine{
		commander: commander,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}
}

// SetRecorder sets the telemetry recorder.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorderMu.Lock()
	e.recorder = r
	e.recorderMu.Unlock()
}

// captureData is the device's capture_image response payload.
type captureData struct {
	Image    string `json:"image"`
	Mimetype string `json:"mimetype"`
}

// Execute runs the sequence to completion and returns its final result.
//
// Per step: progress "preparing" → light on → settle delay → capture and
// persist → light off (always attempted, failure logged only) → break on
// failure, else inter-step delay. After the loop every light in the run's
// universe receives one more off command, covering lights never reached.
//
// Device errors never escape: the result carries them in ErrorDetail with
// Status Failed. emit may be nil.
func (e *Engine) Execute(ctx context.Context, run *Run, emit ProgressFunc) Result {
	if emit == nil {
		emit = func(Progress) {}
	}

	start := time.Now()
	run.Status = StatusRunning
	e.notifyStarted(run)

	if _, err := e.store.CreateSet(ctx, run.SetName); err != nil {
		run.Status = StatusFailed
		run.ErrorDetail = fmt.Sprintf("creating capture set: %v", err)
		result := e.finalResult(run)
		e.notifyFinished(result, time.Since(start))
		return result
	}

	for i, light := range run.Steps {
		run.CurrentIndex = i
		emit(Progress{SetName: run.SetName, StepIndex: i, Light: light, Status: ProgressPreparing})

		stepErr := e.runStep(ctx, run, i, light)

		// Cleanup for this step regardless of outcome
		if err := e.setLight(context.Background(), light, false, e.cfg.CleanupTimeout); err != nil {
			e.logWarn("step light-off failed", "light", light, "error", err)
		}

		if stepErr != nil {
			run.Status = StatusFailed
			run.ErrorDetail = stepErr.Error()
			emit(Progress{SetName: run.SetName, StepIndex: i, Light: light, Status: ProgressFailed, ErrorDetail: run.ErrorDetail})
			break
		}

		emit(Progress{SetName: run.SetName, StepIndex: i, Light: light, Status: ProgressCaptured})

		if i < len(run.Steps)-1 {
			if err := sleep(ctx, e.cfg.InterStepDelay); err != nil {
				run.Status = StatusFailed
				run.ErrorDetail = err.Error()
				break
			}
		}
	}

	// Mandatory cleanup phase: every light in the universe off, covering
	// lights never reached due to an early break.
	e.allLightsOff(run.Steps)

	if run.Status != StatusFailed {
		run.Status = StatusCompleted
	}

	e.finalizeStore(run)

	result := e.finalResult(run)
	e.notifyFinished(result, time.Since(start))

	e.logInfo("sequence finished",
		"set_name", run.SetName,
		"status", run.Status,
		"artifacts", len(run.Artifacts),
		"duration", time.Since(start).String(),
	)
	return result
}

// runStep executes light-on, settle, capture, persist for one step.
// The per-step light-off is handled by the caller.
func (e *Engine) runStep(ctx context.Context, run *Run, stepIndex int, light string) error {
	if err := e.setLight(ctx, light, true, 0); err != nil {
		return err
	}

	if err := sleep(ctx, e.cfg.SettleDelay); err != nil {
		return err
	}

	resp, err := e.commander.SendWithTimeout(ctx, "capture_image", map[string]any{"download": true}, e.cfg.CaptureTimeout)
	if err != nil {
		return fmt.Errorf("%w: capture under %q: %v", ErrStepFailed, light, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: capture under %q: %s", ErrStepFailed, light, resp.Error)
	}

	var data captureData
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.Image == "" {
		return fmt.Errorf("%w: capture under %q returned no image data", ErrStepFailed, light)
	}

	imageBytes, err := base64.StdEncoding.DecodeString(data.Image)
	if err != nil {
		return fmt.Errorf("%w: decoding image for %q: %v", ErrStepFailed, light, err)
	}

	mimetype := data.Mimetype
	if mimetype == "" {
		mimetype = "image/jpeg"
	}

	artifact, err := e.store.SaveArtifact(ctx, run.SetName, stepIndex, light, imageBytes, mimetype)
	if err != nil {
		return fmt.Errorf("%w: persisting capture for %q: %v", ErrStepFailed, light, err)
	}

	run.Artifacts = append(run.Artifacts, ArtifactRef{
		StepIndex: stepIndex,
		Light:     light,
		Filename:  artifact.Filename,
	})
	return nil
}

// setLight switches one light. A device-reported failure is returned as
// an error tagged with ErrStepFailed.
func (e *Engine) setLight(ctx context.Context, light string, on bool, timeout time.Duration) error {
	resp, err := e.commander.SendWithTimeout(ctx, "set_light_state", map[string]any{"light": light, "on": on}, timeout)
	if err != nil {
		return fmt.Errorf("%w: light %q: %v", ErrStepFailed, light, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: light %q: %s", ErrStepFailed, light, resp.Error)
	}
	return nil
}

// allLightsOff issues one off command per light in the universe.
// Failures are logged only; the link may already be down.
func (e *Engine) allLightsOff(lights []string) {
	for _, light := range lights {
		if err := e.setLight(context.Background(), light, false, e.cfg.CleanupTimeout); err != nil {
			e.logWarn("cleanup light-off failed", "light", light, "error", err)
		}
	}
}

// finalizeStore records the run's terminal status in the capture-set
// index. Artifacts already written are kept even on failure.
func (e *Engine) finalizeStore(run *Run) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CleanupTimeout)
	defer cancel()

	status := media.SetStatusCompleted
	if run.Status == StatusFailed {
		status = media.SetStatusFailed
	}
	if err := e.store.FinalizeSet(ctx, run.SetName, status, run.ErrorDetail); err != nil {
		e.logWarn("finalizing capture set failed", "set_name", run.SetName, "error", err)
	}
}

func (e *Engine) finalResult(run *Run) Result {
	return Result{
		RunID:       run.ID,
		SetName:     run.SetName,
		Status:      run.Status,
		Artifacts:   run.Artifacts,
		Count:       len(run.Artifacts),
		ErrorDetail: run.ErrorDetail,
	}
}

func (e *Engine) notifyStarted(run *Run) {
	e.recorderMu.RLock()
	recorder := e.recorder
	e.recorderMu.RUnlock()

	if recorder != nil {
		recorder.SequenceStarted(run.SetName, run.Steps)
	}
}

func (e *Engine) notifyFinished(result Result, duration time.Duration) {
	e.recorderMu.RLock()
	recorder := e.recorder
	e.recorderMu.RUnlock()

	if recorder != nil {
		recorder.SequenceFinished(result, duration)
	}
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) logInfo(msg string, keysAndValues ...any) {
	if e.logger != nil {
		e.logger.Info(msg, keysAndValues...)
	}
}

func (e *Engine) logWarn(msg string, keysAndValues ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, keysAndValues...)
	}
}
