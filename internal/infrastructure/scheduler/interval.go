package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"UnionWins/internal/ports"
)

// IntervalTrigger fires a job at a fixed time and then on a fixed interval.
// Jobs run on the trigger goroutine, so a slow job delays rather than overlaps the next one.
type IntervalTrigger struct {
	name   string
	logger *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Trigger = (*IntervalTrigger)(nil)

// NewIntervalTrigger builds a named trigger; the name only appears in logs.
func NewIntervalTrigger(name string, logger *slog.Logger) *IntervalTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntervalTrigger{name: name, logger: logger.With("component", "trigger", "trigger", name)}
}

// Start launches the trigger goroutine. Starting a running trigger is a no-op.
func (t *IntervalTrigger) Start(ctx context.Context, first time.Time, every time.Duration, job func(context.Context, time.Time)) error {
	if job == nil {
		return errors.New("trigger job is nil")
	}
	if every <= 0 {
		return fmt.Errorf("trigger %s: interval must be positive, got %s", t.name, every)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done

	t.logger.Info("trigger scheduled", "first_fire", first.Format(time.RFC3339), "every", every)

	go func() {
		defer close(done)

		timer := time.NewTimer(time.Until(first))
		defer timer.Stop()

		for {
			select {
			case fired := <-timer.C:
				t.fire(ctx, job, fired)
				timer.Reset(every)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

func (t *IntervalTrigger) fire(ctx context.Context, job func(context.Context, time.Time), at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("trigger job panicked", "panic", r)
		}
	}()
	job(ctx, at)
}

// Stop halts the trigger and waits for an in-flight job to return or ctx to expire.
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop trigger %s: %w", t.name, ctx.Err())
	}
}
