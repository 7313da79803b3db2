package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RefreshScheduler keeps the stored access token fresh without waiting for
// request traffic. It runs two cadences against the same service:
//
//   - a check pass every CheckInterval that refreshes only when the token is
//     inside the lead window, and
//   - a forced pass every ForceInterval that refreshes unconditionally, so a
//     token with an unreadable or missing expiry still rotates.
//
// Failures are logged and retried on the next tick; reconnect-classified
// failures are not retried because the underlying service already parked the
// link in reconnect_required.
type RefreshScheduler struct {
	service       *Service
	checkInterval time.Duration
	forceInterval time.Duration

	enqueuer   JobEnqueuer
	messageFor func(RefreshRequest) *JobExecutionMessage

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

type SchedulerOption func(*RefreshScheduler)

// WithSchedulerEnqueuer switches the scheduler into enqueue mode: instead of
// running the refresh in-process, each tick emits a job message built by
// messageFor. The queue worker owns running the actual refresh.
func WithSchedulerEnqueuer(enqueuer JobEnqueuer, messageFor func(RefreshRequest) *JobExecutionMessage) SchedulerOption {
	return func(r *RefreshScheduler) {
		r.enqueuer = enqueuer
		r.messageFor = messageFor
	}
}

// NewRefreshScheduler builds a scheduler around svc using the intervals from
// its resolved configuration.
func NewRefreshScheduler(svc *Service, options ...SchedulerOption) (*RefreshScheduler, error) {
	if svc == nil {
		return nil, fmt.Errorf("core: service is required to build a refresh scheduler")
	}
	cfg := svc.Config()
	checkInterval := cfg.Refresh.CheckInterval
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	forceInterval := cfg.Refresh.ForceInterval
	if forceInterval <= 0 {
		forceInterval = DefaultForceInterval
	}
	scheduler := &RefreshScheduler{
		service:       svc,
		checkInterval: checkInterval,
		forceInterval: forceInterval,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(scheduler)
	}
	if scheduler.enqueuer != nil && scheduler.messageFor == nil {
		return nil, fmt.Errorf("core: scheduler enqueue mode requires a message builder")
	}
	return scheduler, nil
}

// Start launches the ticker loop. It returns immediately; the loop stops when
// ctx is cancelled or Stop is called.
func (r *RefreshScheduler) Start(ctx context.Context) error {
	if r == nil || r.service == nil {
		return fmt.Errorf("core: refresh scheduler is not configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("core: refresh scheduler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.run(loopCtx)
	return nil
}

// Stop halts the ticker loop and waits for the in-flight pass, if any, to
// finish. Safe to call more than once.
func (r *RefreshScheduler) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.running = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (r *RefreshScheduler) run(ctx context.Context) {
	defer close(r.done)

	checkTicker := time.NewTicker(r.checkInterval)
	defer checkTicker.Stop()
	forceTicker := time.NewTicker(r.forceInterval)
	defer forceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-checkTicker.C:
			r.pass(ctx, RefreshRequest{Trigger: RefreshTriggerScheduled})
		case <-forceTicker.C:
			r.pass(ctx, RefreshRequest{Force: true, Trigger: RefreshTriggerForced})
		}
	}
}

func (r *RefreshScheduler) pass(ctx context.Context, req RefreshRequest) {
	if r.enqueuer != nil {
		if err := r.enqueuer.Enqueue(ctx, r.messageFor(req)); err != nil {
			r.logWarn(ctx, "scheduled refresh enqueue failed, will retry on next tick", map[string]any{
				"trigger": string(req.Trigger),
				"error":   err.Error(),
			})
		}
		return
	}

	outcome, err := r.service.Refresh(ctx, req)
	if err == nil {
		if outcome.Refreshed {
			r.logInfo(ctx, "scheduled refresh rotated access token", map[string]any{
				"trigger":        string(req.Trigger),
				"correlation_id": outcome.CorrelationID,
			})
		}
		return
	}

	fields := map[string]any{
		"trigger": string(req.Trigger),
		"error":   err.Error(),
	}
	if RequiresReconnect(err) {
		fields["requires_reconnect"] = true
		r.logWarn(ctx, "scheduled refresh parked link pending reauthorization", fields)
		return
	}
	fields["retryable"] = IsRetryable(err)
	r.logWarn(ctx, "scheduled refresh failed, will retry on next tick", fields)
}

// NextCheckDue reports when the running check cadence would next consider
// refreshing the stored credentials. Observability only; the tickers are the
// source of truth.
func (r *RefreshScheduler) NextCheckDue(now time.Time) time.Time {
	if r == nil {
		return time.Time{}
	}
	return now.UTC().Add(r.checkInterval)
}

func (r *RefreshScheduler) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if r == nil || r.service == nil {
		return
	}
	r.service.logInfo(ctx, msg, fields)
}

func (r *RefreshScheduler) logWarn(ctx context.Context, msg string, fields map[string]any) {
	if r == nil || r.service == nil {
		return
	}
	r.service.logWarn(ctx, msg, fields)
}
