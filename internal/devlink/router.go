package devlink

import "sync"

// FrameSink receives preview frames. Implemented by the api layer's
// websocket client wrapper.
type FrameSink interface {
	SendFrame(frame Frame) error
}

// Router forwards unsolicited preview frames to at most one subscriber.
//
// Frames arriving with no subscriber attached are dropped, never queued.
// A delivery failure detaches the subscriber automatically so a dead sink
// cannot stall the read loop.
type Router struct {
	mu  sync.Mutex
	sub FrameSink

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRouter creates a router with no subscriber attached.
// The logger is optional (nil for silent operation).
func NewRouter(logger Logger) *Router {
	return &Router{logger: logger}
}

// Attach installs sink as the subscriber if the slot is free.
//
// Returns false, without disturbing the current subscriber, if the slot is
// already held by a different sink. Attaching the current sink again is a
// no-op returning true.
func (r *Router) Attach(sink FrameSink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil && r.sub != sink {
		return false
	}
	r.sub = sink
	return true
}

// Detach removes sink only if it is still the current subscriber.
// A stale detach never removes a newer subscriber.
func (r *Router) Detach(sink FrameSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub == sink {
		r.sub = nil
	}
}

// Evict removes the current subscriber unconditionally.
func (r *Router) Evict() {
	r.mu.Lock()
	r.sub = nil
	r.mu.Unlock()
}

// HasSubscriber reports whether the stream slot is held.
func (r *Router) HasSubscriber() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub != nil
}

// Route delivers a frame to the subscriber, if any.
//
// No subscriber: the frame is dropped. Delivery failure: the subscriber is
// detached and the failure logged; the frame is lost.
func (r *Router) Route(frame Frame) {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()

	if sub == nil {
		return
	}

	if err := sub.SendFrame(frame); err != nil {
		r.logWarn("frame delivery failed, detaching subscriber", "error", err)
		r.Detach(sub)
	}
}

func (r *Router) logWarn(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
