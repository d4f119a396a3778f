package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openphotometrics/rigbridge/internal/devlink"
)

// defaultStopTimeout bounds best-effort stop commands issued during
// cleanup.
const defaultStopTimeout = 2 * time.Second

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Arbiter enforces the two capacity-one slots of the bridge: at most one
// preview stream subscriber and at most one running capture sequence.
//
// It is the single authority the gateway asks before any stream or
// sequence work begins, and the single place slots are released when a
// client or the device link goes away.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Arbiter struct {
	router    *devlink.Router
	commander devlink.Commander

	stopTimeout time.Duration

	mu         sync.Mutex
	streamSink devlink.FrameSink
	runID      string
	runOwner   string
	abandoned  bool

	logger Logger
}

// Ensure Arbiter satisfies the link's notifier interface.
var _ devlink.Notifier = (*Arbiter)(nil)

// NewArbiter creates an arbiter with both slots free.
//
// Parameters:
//   - router: Frame router holding the stream subscriber slot
//   - commander: Device link used for best-effort stop commands
//   - stopTimeout: Budget for cleanup stop commands (0 for default)
//   - logger: Optional logger (nil for silent operation)
func NewArbiter(router *devlink.Router, commander devlink.Commander, stopTimeout time.Duration, logger Logger) *Arbiter {
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}
	return &Arbiter{
		router:      router,
		commander:   commander,
		stopTimeout: stopTimeout,
		logger:      logger,
	}
}

// AcquireStream claims the stream slot for sink.
//
// Returns false, leaving the current subscriber untouched, if the slot is
// already held by a different sink.
func (a *Arbiter) AcquireStream(sink devlink.FrameSink) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.router.Attach(sink) {
		return false
	}
	a.streamSink = sink
	return true
}

// ReleaseStream frees the stream slot unconditionally.
func (a *Arbiter) ReleaseStream() {
	a.mu.Lock()
	a.streamSink = nil
	a.mu.Unlock()

	a.router.Evict()
}

// StreamActive reports whether the stream slot is held.
func (a *Arbiter) StreamActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streamSink != nil
}

// AcquireSequence claims the sequence slot for a client.
//
// Returns the new run id, or ErrSequenceActive if a run is already in
// progress. No run state is created on conflict.
func (a *Arbiter) AcquireSequence(ownerID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.runID != "" {
		return "", ErrSequenceActive
	}

	a.runID = uuid.NewString()
	a.runOwner = ownerID
	a.abandoned = false
	return a.runID, nil
}

// ReleaseSequence frees the sequence slot after the final result has been
// delivered. A stale release (mismatched run id) is a no-op.
func (a *Arbiter) ReleaseSequence(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.runID == runID {
		a.runID = ""
		a.runOwner = ""
		a.abandoned = false
	}
}

// SequenceActive reports whether a run holds the sequence slot.
func (a *Arbiter) SequenceActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runID != ""
}

// RunAbandoned reports whether the run's owning client disconnected.
// The engine uses this to skip delivering the final result.
func (a *Arbiter) RunAbandoned(runID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runID == runID && a.abandoned
}

// HandleLinkDown releases both slots after the device link drops.
//
// Stop commands are skipped: the link is already down and every in-flight
// request has been failed by the correlator.
func (a *Arbiter) HandleLinkDown() {
	a.mu.Lock()
	hadStream := a.streamSink != nil
	hadRun := a.runID != ""
	a.streamSink = nil
	a.runID = ""
	a.runOwner = ""
	a.abandoned = false
	a.mu.Unlock()

	a.router.Evict()

	if hadStream || hadRun {
		a.logInfo("link down, released session slots", "had_stream", hadStream, "had_run", hadRun)
	}
}

// HandleClientGone cleans up after a frontend client disconnects.
//
// If the client held the stream slot it is released and a best-effort
// stop_stream is sent to the device (failures logged only). If the client
// owned the running sequence the run is marked abandoned; the engine
// finishes its cleanup and releases the slot itself.
func (a *Arbiter) HandleClientGone(sink devlink.FrameSink, clientID string) {
	a.mu.Lock()
	ownedStream := sink != nil && a.streamSink == sink
	if ownedStream {
		a.streamSink = nil
	}
	if a.runID != "" && a.runOwner == clientID {
		a.abandoned = true
	}
	a.mu.Unlock()

	if !ownedStream {
		return
	}

	a.router.Detach(sink)

	if !a.commander.IsConnected() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.stopTimeout)
	defer cancel()

	if _, err := a.commander.Send(ctx, "stop_stream", nil); err != nil {
		a.logWarn("best-effort stop_stream failed", "error", err)
	}
}

func (a *Arbiter) logInfo(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Info(msg, keysAndValues...)
	}
}

func (a *Arbiter) logWarn(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, keysAndValues...)
	}
}
