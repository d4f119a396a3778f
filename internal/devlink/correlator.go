package devlink

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// outcome carries either a device response or a terminal error to the
// goroutine awaiting a pending request.
type outcome struct {
	resp *Response
	err  error
}

// Pending is one in-flight request awaiting its response.
// Owned by the Correlator; destroyed on resolve, timeout, or FailAll.
type Pending struct {
	id      string
	action  string
	timeout time.Duration

	// Buffered so Resolve never blocks, even if the awaiter already left.
	ch chan outcome
}

// ID returns the correlation id of the pending request.
func (p *Pending) ID() string {
	return p.id
}

// Correlator maps correlation ids to pending requests and completes each
// one exactly once.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//
// Lifecycle guarantee: a registered id is removed on resolve, on timeout,
// on context cancellation, and on FailAll. No entry survives its awaiter.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*Pending

	logger   Logger
	loggerMu sync.RWMutex
}

// NewCorrelator creates an empty correlator.
// The logger is optional (nil for silent operation).
func NewCorrelator(logger Logger) *Correlator {
	return &Correlator{
		pending: make(map[string]*Pending),
		logger:  logger,
	}
}

// Register allocates a pending entry for a correlation id.
//
// Parameters:
//   - id: The correlation id carried by the outgoing request
//   - action: The request action, used to tag timeout errors
//   - timeout: Maximum time Await will block for this entry
//
// Returns:
//   - *Pending: Handle to pass to Await
//   - error: ErrDuplicateID if the id is already registered
func (c *Correlator) Register(id, action string, timeout time.Duration) (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	p := &Pending{
		id:      id,
		action:  action,
		timeout: timeout,
		ch:      make(chan outcome, 1),
	}
	c.pending[id] = p
	return p, nil
}

// Resolve completes a pending request with a device response.
//
// Returns true if the id was pending. Late or duplicate resolutions
// return false and are logged, not treated as fatal.
func (c *Correlator) Resolve(id string, resp *Response) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logDebug("ignoring resolution for unknown correlation id", "request_id", id)
		return false
	}

	p.ch <- outcome{resp: resp}
	return true
}

// Remove discards a pending entry without completing it.
// Used when the request could not be written after registration.
func (c *Correlator) Remove(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// FailAll completes every pending request with a connection error.
// Called when the device link drops so no caller blocks on a severed link.
func (c *Correlator) FailAll(reason error) {
	c.mu.Lock()
	failed := c.pending
	c.pending = make(map[string]*Pending)
	c.mu.Unlock()

	if len(failed) == 0 {
		return
	}

	err := fmt.Errorf("%w: %v", ErrConnectionLost, reason)
	for _, p := range failed {
		p.ch <- outcome{err: err}
	}

	c.logWarn("failed all pending requests", "count", len(failed), "reason", reason)
}

// Await blocks until the pending request resolves, its timeout elapses, or
// ctx is cancelled.
//
// On timeout or cancellation the entry is removed; if a resolution won the
// race it is returned instead. A later Resolve for the id returns false.
//
// Returns:
//   - *Response: The device response
//   - error: ErrTimeout tagged with the action, or the ctx error
func (c *Correlator) Await(ctx context.Context, p *Pending) (*Response, error) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case out := <-p.ch:
		return out.resp, out.err

	case <-timer.C:
		c.Remove(p.id)
		// Resolve may have won the race before the entry was removed;
		// the buffered channel preserves its result.
		select {
		case out := <-p.ch:
			return out.resp, out.err
		default:
		}
		return nil, fmt.Errorf("%w: no response to %q within %s", ErrTimeout, p.action, p.timeout)

	case <-ctx.Done():
		c.Remove(p.id)
		select {
		case out := <-p.ch:
			return out.resp, out.err
		default:
		}
		return nil, fmt.Errorf("awaiting %q: %w", p.action, ctx.Err())
	}
}

// PendingCount returns the number of in-flight requests.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Correlator) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
