package devlink

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCorrelator_RegisterDuplicate(t *testing.T) {
	c := NewCorrelator(nil)

	if _, err := c.Register("id-1", "ping", time.Second); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err := c.Register("id-1", "ping", time.Second)
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate Register() error = %v, want ErrDuplicateID", err)
	}
}

func TestCorrelator_ResolveOnce(t *testing.T) {
	c := NewCorrelator(nil)

	if _, err := c.Register("id-1", "ping", time.Second); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if !c.Resolve("id-1", &Response{Action: "ping", Success: true}) {
		t.Error("first Resolve() = false, want true")
	}
	if c.Resolve("id-1", &Response{Action: "ping", Success: true}) {
		t.Error("second Resolve() = true, want false")
	}
	if c.Resolve("never-registered", &Response{}) {
		t.Error("Resolve() of unknown id = true, want false")
	}
}

func TestCorrelator_AwaitResolved(t *testing.T) {
	c := NewCorrelator(nil)

	pending, err := c.Register("id-1", "capture_image", time.Second)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	go func() {
		c.Resolve("id-1", &Response{Action: "capture_image", Success: true, RequestID: "id-1"})
	}()

	resp, err := c.Await(context.Background(), pending)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if !resp.Success {
		t.Error("Success = false, want true")
	}
	if resp.RequestID != "id-1" {
		t.Errorf("RequestID = %q, want id-1", resp.RequestID)
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", c.PendingCount())
	}
}

func TestCorrelator_AwaitTimeout(t *testing.T) {
	c := NewCorrelator(nil)

	pending, err := c.Register("id-1", "capture_image", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	start := time.Now()
	_, err = c.Await(context.Background(), pending)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Await() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Await() took %s, expected prompt timeout", elapsed)
	}

	// Entry is removed; a late resolve is a no-op
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after timeout", c.PendingCount())
	}
	if c.Resolve("id-1", &Response{}) {
		t.Error("late Resolve() after timeout = true, want false")
	}
}

func TestCorrelator_AwaitContextCancelled(t *testing.T) {
	c := NewCorrelator(nil)

	pending, err := c.Register("id-1", "get_config", time.Minute)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Await(ctx, pending)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Await() error = %v, want context.Canceled", err)
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after cancellation", c.PendingCount())
	}
}

func TestCorrelator_FailAll(t *testing.T) {
	c := NewCorrelator(nil)

	pendings := make([]*Pending, 3)
	for i, id := range []string{"id-1", "id-2", "id-3"} {
		p, err := c.Register(id, "ping", time.Minute)
		if err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
		pendings[i] = p
	}

	c.FailAll(errors.New("device server went away"))

	for _, p := range pendings {
		_, err := c.Await(context.Background(), p)
		if !errors.Is(err, ErrConnectionLost) {
			t.Errorf("Await(%s) error = %v, want ErrConnectionLost", p.ID(), err)
		}
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after FailAll", c.PendingCount())
	}
}

func TestCorrelator_Remove(t *testing.T) {
	c := NewCorrelator(nil)

	if _, err := c.Register("id-1", "ping", time.Minute); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	c.Remove("id-1")

	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after Remove", c.PendingCount())
	}
	if c.Resolve("id-1", &Response{}) {
		t.Error("Resolve() after Remove = true, want false")
	}
}
