package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openphotometrics/rigbridge/internal/devlink"
)

// fakeSink is a minimal frame sink for slot tests. It must be non-zero
// sized so distinct instances get distinct addresses and compare unequal.
type fakeSink struct{ _ byte }

func (*fakeSink) SendFrame(devlink.Frame) error { return nil }

// mockCommander records sent actions and simulates link state.
type mockCommander struct {
	mu        sync.Mutex
	actions   []string
	connected bool
}

func (m *mockCommander) Send(_ context.Context, action string, _ any) (*devlink.Response, error) {
	m.mu.Lock()
	m.actions = append(m.actions, action)
	m.mu.Unlock()
	return &devlink.Response{Action: action, Success: true}, nil
}

func (m *mockCommander) SendWithTimeout(ctx context.Context, action string, payload any, _ time.Duration) (*devlink.Response, error) {
	return m.Send(ctx, action, payload)
}

func (m *mockCommander) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockCommander) sentActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.actions...)
}

func newTestArbiter(connected bool) (*Arbiter, *mockCommander) {
	commander := &mockCommander{connected: connected}
	router := devlink.NewRouter(nil)
	return NewArbiter(router, commander, time.Second, nil), commander
}

func TestAcquireStream(t *testing.T) {
	a, _ := newTestArbiter(true)
	first := &fakeSink{}
	second := &fakeSink{}

	if !a.AcquireStream(first) {
		t.Fatal("AcquireStream(first) = false, want true")
	}
	if a.AcquireStream(second) {
		t.Error("AcquireStream(second) = true, want false while slot is held")
	}
	if !a.StreamActive() {
		t.Error("StreamActive() = false, the first holder must be undisturbed")
	}

	a.ReleaseStream()
	if a.StreamActive() {
		t.Error("StreamActive() = true after release")
	}
	if !a.AcquireStream(second) {
		t.Error("AcquireStream(second) = false after release, want true")
	}
}

func TestAcquireSequence(t *testing.T) {
	a, _ := newTestArbiter(true)

	runID, err := a.AcquireSequence("client-1")
	if err != nil {
		t.Fatalf("AcquireSequence() error = %v", err)
	}
	if runID == "" {
		t.Fatal("AcquireSequence() returned empty run id")
	}

	if _, err := a.AcquireSequence("client-2"); !errors.Is(err, ErrSequenceActive) {
		t.Errorf("second AcquireSequence() error = %v, want ErrSequenceActive", err)
	}

	a.ReleaseSequence(runID)
	if a.SequenceActive() {
		t.Error("SequenceActive() = true after release")
	}

	if _, err := a.AcquireSequence("client-2"); err != nil {
		t.Errorf("AcquireSequence() after release error = %v", err)
	}
}

func TestReleaseSequence_StaleIgnored(t *testing.T) {
	a, _ := newTestArbiter(true)

	runID, err := a.AcquireSequence("client-1")
	if err != nil {
		t.Fatalf("AcquireSequence() error = %v", err)
	}

	a.ReleaseSequence("not-the-run")
	if !a.SequenceActive() {
		t.Error("stale ReleaseSequence() freed the slot")
	}

	a.ReleaseSequence(runID)
	if a.SequenceActive() {
		t.Error("matching ReleaseSequence() did not free the slot")
	}
}

func TestHandleLinkDown(t *testing.T) {
	a, commander := newTestArbiter(true)

	sink := &fakeSink{}
	if !a.AcquireStream(sink) {
		t.Fatal("AcquireStream() = false, want true")
	}
	if _, err := a.AcquireSequence("client-1"); err != nil {
		t.Fatalf("AcquireSequence() error = %v", err)
	}

	a.HandleLinkDown()

	if a.StreamActive() {
		t.Error("StreamActive() = true after link down")
	}
	if a.SequenceActive() {
		t.Error("SequenceActive() = true after link down")
	}

	// Stop commands are pointless on a dead link
	if got := commander.sentActions(); len(got) != 0 {
		t.Errorf("sent %v on link down, want no device traffic", got)
	}
}

func TestHandleClientGone_StreamOwner(t *testing.T) {
	a, commander := newTestArbiter(true)

	sink := &fakeSink{}
	if !a.AcquireStream(sink) {
		t.Fatal("AcquireStream() = false, want true")
	}

	a.HandleClientGone(sink, "client-1")

	if a.StreamActive() {
		t.Error("StreamActive() = true after owner disconnect")
	}
	if got := commander.sentActions(); len(got) != 1 || got[0] != "stop_stream" {
		t.Errorf("sent %v, want a single best-effort stop_stream", got)
	}
}

func TestHandleClientGone_NonOwner(t *testing.T) {
	a, commander := newTestArbiter(true)

	owner := &fakeSink{}
	other := &fakeSink{}
	if !a.AcquireStream(owner) {
		t.Fatal("AcquireStream() = false, want true")
	}

	a.HandleClientGone(other, "client-2")

	if !a.StreamActive() {
		t.Error("non-owner disconnect must not release the stream slot")
	}
	if got := commander.sentActions(); len(got) != 0 {
		t.Errorf("sent %v for non-owner disconnect, want none", got)
	}
}

func TestHandleClientGone_LinkAlreadyDown(t *testing.T) {
	a, commander := newTestArbiter(false)

	sink := &fakeSink{}
	if !a.AcquireStream(sink) {
		t.Fatal("AcquireStream() = false, want true")
	}

	a.HandleClientGone(sink, "client-1")

	if a.StreamActive() {
		t.Error("StreamActive() = true after owner disconnect")
	}
	if got := commander.sentActions(); len(got) != 0 {
		t.Errorf("sent %v while link down, want none", got)
	}
}

func TestHandleClientGone_MarksRunAbandoned(t *testing.T) {
	a, _ := newTestArbiter(true)

	runID, err := a.AcquireSequence("client-1")
	if err != nil {
		t.Fatalf("AcquireSequence() error = %v", err)
	}

	a.HandleClientGone(nil, "client-1")

	if !a.RunAbandoned(runID) {
		t.Error("RunAbandoned() = false after owner disconnect")
	}
	if !a.SequenceActive() {
		t.Error("abandoned run must keep the slot until the engine releases it")
	}

	a.ReleaseSequence(runID)
	if a.RunAbandoned(runID) {
		t.Error("RunAbandoned() = true after release")
	}
}
