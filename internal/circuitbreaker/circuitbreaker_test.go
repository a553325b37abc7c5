package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream failed")

func fail() error { return errUpstream }
func ok() error   { return nil }

// TestCall_OpensAfterThreshold verifies that consecutive failures open the
// circuit and later calls are rejected without running fn.
func TestCall_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, Timeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, fail); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: err = %v, want upstream error", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %s, want open", cb.State())
	}

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn ran while circuit open")
	}
}

// TestCall_SuccessResetsFailureRun verifies that only consecutive failures
// count toward the threshold.
func TestCall_SuccessResetsFailureRun(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, Timeout: time.Hour})
	ctx := context.Background()
	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, ok)
	_ = cb.Call(ctx, fail)
	if cb.State() != StateClosed {
		t.Errorf("State() = %s, want closed", cb.State())
	}
}

// TestCall_HalfOpenRecovers verifies that after the timeout the circuit
// half-opens and closes again after enough successes.
func TestCall_HalfOpenRecovers(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
		OnStateChange: func(from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})
	ctx := context.Background()
	_ = cb.Call(ctx, fail)
	time.Sleep(40 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %s, want half_open", cb.State())
	}
	if err := cb.Call(ctx, ok); err != nil {
		t.Fatalf("probe 1: %v", err)
	}
	if err := cb.Call(ctx, ok); err != nil {
		t.Fatalf("probe 2: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %s, want closed", cb.State())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

// TestCall_CanceledContext verifies that a canceled caller neither runs fn
// nor counts against the circuit.
func TestCall_CanceledContext(t *testing.T) {
	cb := New(Config{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cb.Call(ctx, fail); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if err := cb.Call(context.Background(), func() error { return context.Canceled }); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %s, want closed", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
