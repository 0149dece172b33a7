package driver

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
)

type countingSweeper struct {
	calls atomic.Int64
	err   error
}

func (s *countingSweeper) Name() string { return "counting" }

func (s *countingSweeper) Sweep(ctx context.Context) error {
	s.calls.Add(1)
	return s.err
}

func TestSweepDriver_Tick(t *testing.T) {
	a := &countingSweeper{}
	b := &countingSweeper{err: fmt.Errorf("boom")}

	d := NewSweepDriver([]Sweeper{a, b})
	d.Tick(context.Background())
	d.Tick(context.Background())

	// A failing sweeper does not stop the others.
	testutil.AssertEqual(t, "first sweeper", a.calls.Load(), int64(2))
	testutil.AssertEqual(t, "second sweeper", b.calls.Load(), int64(2))
}

func TestSweepDriver_StartStopsOnCancel(t *testing.T) {
	s := &countingSweeper{}
	d := NewSweepDriver([]Sweeper{s}, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Let a few ticks land.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("driver did not stop on cancel")
	}

	if s.calls.Load() == 0 {
		t.Error("driver never ticked")
	}
}
