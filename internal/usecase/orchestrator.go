package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"UnionWins/internal/domain"
	"UnionWins/internal/ports"
)

const researchFailedMessage = "Research task failed"

// OrchestratorDeps wires the research task loop.
type OrchestratorDeps struct {
	Sessions      ports.SessionFactory
	Research      ports.ResearchClient
	Ingester      *ResultIngester
	Notifier      ports.Notifier
	Logger        *slog.Logger
	SweepInterval time.Duration
	StuckTimeout  time.Duration
	CallTimeout   time.Duration
	Now           func() time.Time
}

// Orchestrator drives search requests from pending to a terminal state.
// Only one instance may run against a store.
type Orchestrator struct {
	sessions      ports.SessionFactory
	research      ports.ResearchClient
	ingester      *ResultIngester
	notifier      ports.Notifier
	logger        *slog.Logger
	sweepInterval time.Duration
	stuckTimeout  time.Duration
	callTimeout   time.Duration
	now           func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOrchestrator constructs the loop. Zero durations use 5s sweeps, a 12h stuck bound and 120s calls.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		sessions:      deps.Sessions,
		research:      deps.Research,
		ingester:      deps.Ingester,
		notifier:      deps.Notifier,
		logger:        deps.Logger,
		sweepInterval: deps.SweepInterval,
		stuckTimeout:  deps.StuckTimeout,
		callTimeout:   deps.CallTimeout,
		now:           deps.Now,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	if o.sweepInterval <= 0 {
		o.sweepInterval = 5 * time.Second
	}
	if o.stuckTimeout <= 0 {
		o.stuckTimeout = 12 * time.Hour
	}
	if o.callTimeout <= 0 {
		o.callTimeout = 120 * time.Second
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Start launches the sweep loop. Calling Start on a running orchestrator is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel, o.done = cancel, done

	o.logger.Info("orchestrator started", "sweep_interval", o.sweepInterval, "stuck_timeout", o.stuckTimeout)
	go o.loop(loopCtx, done)
	return nil
}

// Stop signals the loop and waits for the current sweep to finish or ctx to expire.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		o.logger.Info("orchestrator stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop orchestrator: %w", ctx.Err())
	}
}

// loop checks for cancellation only between sweeps; a running sweep is never interrupted.
func (o *Orchestrator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := o.Sweep(context.WithoutCancel(ctx)); err != nil {
			o.logger.Error("sweep failed", "error", err)
		}
		timer.Reset(o.sweepInterval)
	}
}

// Sweep claims at most one pending request and then polls every processing one.
// It owns one store session for its duration; panics are recovered into an error.
func (o *Orchestrator) Sweep(ctx context.Context) (err error) {
	sess, err := o.sessions.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			o.logger.Warn("close session", "error", cerr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()

	if err := o.claim(ctx, sess); err != nil {
		o.logger.Error("claim pending request", "error", err)
	}
	if err := o.pollProcessing(ctx, sess); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) claim(ctx context.Context, sess ports.Session) error {
	req, ok, err := sess.OldestPendingSearchRequest(ctx)
	if err != nil {
		return fmt.Errorf("load pending request: %w", err)
	}
	if !ok {
		return nil
	}
	logger := o.logger.With("request_id", req.ID)

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	handle, err := o.research.Submit(callCtx, BuildResearchPrompt(req.DateRange))
	cancel()
	if err != nil {
		logger.Warn("research task not created, request stays pending", "error", err)
		return nil
	}

	if err := sess.MarkProcessing(ctx, req.ID, handle); err != nil {
		return fmt.Errorf("mark request %d processing: %w", req.ID, err)
	}
	logger.Info("research task created", "handle", handle, "date_range", req.DateRange)
	return nil
}

func (o *Orchestrator) pollProcessing(ctx context.Context, sess ports.Session) error {
	requests, err := sess.ProcessingSearchRequests(ctx)
	if err != nil {
		return fmt.Errorf("load processing requests: %w", err)
	}

	for _, req := range requests {
		if err := o.advance(ctx, sess, req); err != nil {
			o.logger.Error("advance request", "request_id", req.ID, "handle", req.TaskHandle, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) advance(ctx context.Context, sess ports.Session, req domain.SearchRequest) error {
	logger := o.logger.With("request_id", req.ID, "handle", req.TaskHandle)

	if elapsed := o.now().Sub(req.CreatedAt); elapsed > o.stuckTimeout {
		msg := fmt.Sprintf("Task timeout after %s; the research task never finished", elapsed.Round(time.Second))
		logger.Warn("request timed out", "elapsed", elapsed)
		return o.fail(ctx, sess, req, msg)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	poll, err := o.research.Poll(callCtx, req.TaskHandle)
	cancel()
	if err != nil {
		logger.Warn("poll failed, will retry next sweep", "error", err)
		return nil
	}

	switch poll.State {
	case domain.TaskCompleted:
		found, err := o.ingester.Ingest(ctx, sess, poll.Output)
		if err != nil {
			logger.Error("ingestion failed", "error", err)
			return o.fail(ctx, sess, req, fmt.Sprintf("Ingestion failed: %v", err))
		}
		if err := sess.CompleteSearchRequest(ctx, req.ID, found); err != nil {
			return err
		}
		logger.Info("research request completed", "new_wins", found)
		alert(ctx, o.notifier, logger, fmt.Sprintf("Research request %d (%s) completed: %d new wins queued for review.",
			req.ID, req.DateRange, found))
		return nil
	case domain.TaskFailed:
		logger.Warn("research task failed")
		return o.fail(ctx, sess, req, researchFailedMessage)
	default:
		logger.Debug("research task still running", "state", poll.State)
		return nil
	}
}

func (o *Orchestrator) fail(ctx context.Context, sess ports.Session, req domain.SearchRequest, message string) error {
	if err := sess.FailSearchRequest(ctx, req.ID, message); err != nil {
		return err
	}
	alert(ctx, o.notifier, o.logger, fmt.Sprintf("Research request %d (%s) failed: %s", req.ID, req.DateRange, message))
	return nil
}
