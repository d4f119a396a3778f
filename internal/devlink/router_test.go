package devlink

import (
	"errors"
	"sync"
	"testing"
)

// mockSink records delivered frames and can be made to fail.
type mockSink struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (m *mockSink) SendFrame(frame Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return errors.New("sink closed")
	}
	m.frames = append(m.frames, frame)
	return nil
}

func (m *mockSink) frameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func testFrame() Frame {
	return Frame{Type: "frame", Frame: "aGVsbG8=", Mimetype: "image/jpeg"}
}

func TestRouter_AttachWhenFree(t *testing.T) {
	r := NewRouter(nil)
	sink := &mockSink{}

	if !r.Attach(sink) {
		t.Error("Attach() on free slot = false, want true")
	}
	if !r.HasSubscriber() {
		t.Error("HasSubscriber() = false after attach")
	}
}

func TestRouter_SecondAttachRejected(t *testing.T) {
	r := NewRouter(nil)
	first := &mockSink{}
	second := &mockSink{}

	if !r.Attach(first) {
		t.Fatal("Attach(first) = false, want true")
	}
	if r.Attach(second) {
		t.Error("Attach(second) = true, want false while slot is held")
	}

	// The original subscriber keeps receiving
	r.Route(testFrame())
	if first.frameCount() != 1 {
		t.Errorf("first.frameCount() = %d, want 1", first.frameCount())
	}
	if second.frameCount() != 0 {
		t.Errorf("second.frameCount() = %d, want 0", second.frameCount())
	}
}

func TestRouter_ReattachSameSink(t *testing.T) {
	r := NewRouter(nil)
	sink := &mockSink{}

	r.Attach(sink)
	if !r.Attach(sink) {
		t.Error("re-Attach() of current sink = false, want true")
	}
}

func TestRouter_DetachStale(t *testing.T) {
	r := NewRouter(nil)
	current := &mockSink{}
	stale := &mockSink{}

	r.Attach(current)
	r.Detach(stale)

	if !r.HasSubscriber() {
		t.Error("stale Detach() removed the current subscriber")
	}

	r.Detach(current)
	if r.HasSubscriber() {
		t.Error("Detach() of current subscriber did not clear the slot")
	}
}

func TestRouter_RouteNoSubscriber(t *testing.T) {
	r := NewRouter(nil)

	// Must be a silent no-op
	r.Route(testFrame())
}

func TestRouter_RouteDeliveryFailureDetaches(t *testing.T) {
	r := NewRouter(nil)
	sink := &mockSink{fail: true}

	r.Attach(sink)
	r.Route(testFrame())

	if r.HasSubscriber() {
		t.Error("subscriber should be detached after delivery failure")
	}

	// Subsequent frames are dropped silently
	r.Route(testFrame())
	if sink.frameCount() != 0 {
		t.Errorf("frameCount() = %d, want 0", sink.frameCount())
	}
}

func TestRouter_Evict(t *testing.T) {
	r := NewRouter(nil)
	sink := &mockSink{}

	r.Attach(sink)
	r.Evict()

	if r.HasSubscriber() {
		t.Error("Evict() did not clear the slot")
	}

	r.Route(testFrame())
	if sink.frameCount() != 0 {
		t.Errorf("frameCount() = %d after evict, want 0", sink.frameCount())
	}
}
