package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/linnemanlabs/go-core/log"
)

// fakePluginRunner lets tests control exactly which plugin invocations
// succeed or fail without spawning real processes.
type fakePluginRunner struct {
	mu      sync.Mutex
	fail    map[string]bool
	invoked []string
}

func (f *fakePluginRunner) Run(_ context.Context, name, _ string, message string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, name+":"+message)
	if f.fail[name] {
		return Result{}, errors.New("simulated failure")
	}
	return Result{ExitCode: 0}, nil
}

func newTestSet(plugins []Plugin, fail map[string]bool) (*Set, *fakePluginRunner) {
	fr := &fakePluginRunner{fail: fail}
	s := &Set{
		plugins: plugins,
		runner:  func(string) pluginRunner { return fr },
		logger:  log.Nop(),
	}
	return s, fr
}

// TestSet_Deliver_AllSucceed exercises scenario S5's happy path: every
// notifier succeeds on the first pass.
func TestSet_Deliver_AllSucceed(t *testing.T) {
	t.Parallel()

	plugins := []Plugin{{Name: "a"}, {Name: "b"}}
	s, fr := newTestSet(plugins, nil)

	delivered, err := s.Deliver(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if !delivered {
		t.Error("delivered = false, want true")
	}
	if len(fr.invoked) != 2 {
		t.Errorf("invoked = %v, want both plugins run once", fr.invoked)
	}
}

// TestSet_Deliver_PartialFailureStillDelivered exercises scenario S5:
// one working notifier is enough to consider the alert delivered, but the
// escalation pass still runs to surface the broken one.
func TestSet_Deliver_PartialFailureStillDelivered(t *testing.T) {
	t.Parallel()

	plugins := []Plugin{{Name: "good"}, {Name: "bad"}}
	s, fr := newTestSet(plugins, map[string]bool{"bad": true})

	delivered, err := s.Deliver(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if !delivered {
		t.Error("delivered = false, want true (one working notifier is enough)")
	}
	// First pass: good, bad. Escalation pass: good, bad again (since bad still fails).
	if len(fr.invoked) != 4 {
		t.Errorf("invoked = %v, want 4 calls across both passes", fr.invoked)
	}
}

// TestSet_Deliver_AllFailIsFatal exercises scenario S5's fatal path: every
// notifier fails on both passes, so Deliver returns ErrFatalDelivery and
// delivered=false, leaving the alert unreported for retry.
func TestSet_Deliver_AllFailIsFatal(t *testing.T) {
	t.Parallel()

	plugins := []Plugin{{Name: "a"}, {Name: "b"}}
	s, _ := newTestSet(plugins, map[string]bool{"a": true, "b": true})

	delivered, err := s.Deliver(context.Background(), "hello")
	if delivered {
		t.Error("delivered = true, want false")
	}
	var fatal *ErrFatalDelivery
	if !errors.As(err, &fatal) {
		t.Fatalf("err = %v, want *ErrFatalDelivery", err)
	}
}

func TestRenderEscalation_ListsEachFailure(t *testing.T) {
	t.Parallel()

	msg := renderEscalation([]failure{
		{name: "slack", err: errors.New("timeout")},
		{name: "pager", err: errors.New("connection refused")},
	})

	if !containsAll(msg, "slack", "timeout", "pager", "connection refused") {
		t.Errorf("renderEscalation() = %q, missing expected substrings", msg)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return len(sub) == 0
}
