package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	cfotel "github.com/Strob0t/Fanout/internal/adapter/otel"
	"github.com/Strob0t/Fanout/internal/config"
	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/webhook"
)

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxResponseDrain bounds how much of a subscriber response is read.
const maxResponseDrain = 64 << 10

// DeliveryEngine executes signed webhook calls with bounded retries. Pending
// retries are explicit tasks on a time-ordered queue served by one scheduler
// goroutine; due tasks run on a bounded worker pool.
type DeliveryEngine struct {
	registry *WebhookRegistry
	signer   *SignatureService
	client   HTTPDoer
	clock    clockwork.Clock
	metrics  *cfotel.Metrics
	cfg      config.Webhook
	sem      *semaphore.Weighted

	mu      sync.Mutex
	queue   taskQueue
	seq     uint64
	stopped bool
	wake    chan struct{}

	cancel   context.CancelFunc
	loopDone chan struct{}
	inflight sync.WaitGroup
	dropped  atomic.Int64

	hookMu    sync.RWMutex
	onOutcome []func(webhook.Attempt, webhook.Outcome)
}

// NewDeliveryEngine creates an engine. A nil clock uses the real clock.
func NewDeliveryEngine(registry *WebhookRegistry, signer *SignatureService, client HTTPDoer, clock clockwork.Clock, metrics *cfotel.Metrics, cfg config.Webhook) *DeliveryEngine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &DeliveryEngine{
		registry: registry,
		signer:   signer,
		client:   client,
		clock:    clock,
		metrics:  metrics,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		wake:     make(chan struct{}, 1),
	}
}

// OnOutcome adds a hook run when a delivery chain finishes.
func (d *DeliveryEngine) OnOutcome(fn func(webhook.Attempt, webhook.Outcome)) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.onOutcome = append(d.onOutcome, fn)
}

// Start runs the scheduler until Stop is called.
func (d *DeliveryEngine) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loopDone != nil || d.stopped {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.loopDone = make(chan struct{})
	go d.run(ctx)
	slog.Info("delivery engine started", "workers", d.cfg.Workers, "retry_unit", d.cfg.RetryUnit)
}

// Stop stops accepting work, waits for running attempts until ctx expires
// and drops pending retries.
func (d *DeliveryEngine) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	pending := d.queue.Len()
	d.queue = nil
	cancel, loopDone := d.cancel, d.loopDone
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-loopDone
	}

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("wait for running deliveries: %w", ctx.Err())
	}

	dropped := pending + int(d.dropped.Swap(0))
	d.metrics.Dropped(ctx, dropped)
	slog.Info("delivery engine stopped", "dropped_retries", dropped)
	return err
}

// Schedule queues one delivery chain per endpoint for e. It never blocks on
// network I/O.
func (d *DeliveryEngine) Schedule(ctx context.Context, e event.Event, endpoints []webhook.Endpoint) {
	if len(endpoints) == 0 {
		return
	}
	body, err := json.Marshal(webhook.NewEnvelope(e))
	if err != nil {
		slog.Error("webhook envelope marshal failed", "event_id", e.ID, "error", err)
		return
	}
	now := d.clock.Now()
	for i := range endpoints {
		d.enqueue(ctx, &deliveryTask{event: e, body: body, endpointID: endpoints[i].ID, attempt: 1, fireAt: now})
	}
}

// Deliver queues a chain for one endpoint starting at the given attempt
// number.
func (d *DeliveryEngine) Deliver(ctx context.Context, ep *webhook.Endpoint, e event.Event, attempt int) error {
	if attempt < 1 || attempt > webhook.MaxAttempts {
		return fmt.Errorf("%w: attempt must be within 1..%d", domain.ErrValidation, webhook.MaxAttempts)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(webhook.NewEnvelope(e))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	d.enqueue(ctx, &deliveryTask{event: e, body: body, endpointID: ep.ID, attempt: attempt, fireAt: d.clock.Now()})
	return nil
}

// Pending returns the number of queued attempts.
func (d *DeliveryEngine) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}

func (d *DeliveryEngine) enqueue(_ context.Context, t *deliveryTask) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.dropped.Add(1)
		slog.Debug("delivery dropped after stop", "event_id", t.event.ID, "endpoint_id", t.endpointID, "attempt", t.attempt)
		return
	}
	d.seq++
	t.seq = d.seq
	d.queue.push(t)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run is the scheduler loop. It sleeps until the earliest task is due or new
// work arrives.
func (d *DeliveryEngine) run(ctx context.Context) {
	defer close(d.loopDone)
	for {
		d.mu.Lock()
		next := d.queue.peek()
		var wait time.Duration
		if next != nil {
			wait = next.fireAt.Sub(d.clock.Now())
			if wait <= 0 {
				d.queue.pop()
			}
		}
		d.mu.Unlock()

		switch {
		case next == nil:
			select {
			case <-d.wake:
			case <-ctx.Done():
				return
			}
		case wait <= 0:
			if !d.dispatch(ctx, next) {
				return
			}
		default:
			timer := d.clock.NewTimer(wait)
			select {
			case <-timer.Chan():
			case <-d.wake:
				timer.Stop()
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}
}

// dispatch hands a due task to the worker pool, waiting for a free worker.
func (d *DeliveryEngine) dispatch(ctx context.Context, t *deliveryTask) bool {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.dropped.Add(1)
		return false
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer d.sem.Release(1)
		// Running attempts finish even while the engine stops.
		d.attempt(context.WithoutCancel(ctx), t)
	}()
	return true
}

// attempt performs one call and decides the next step of the chain.
func (d *DeliveryEngine) attempt(ctx context.Context, t *deliveryTask) {
	rec := webhook.Attempt{EventID: t.event.ID, EndpointID: t.endpointID, Number: t.attempt, FireAt: t.fireAt}

	ep, err := d.registry.Get(ctx, t.endpointID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		slog.Debug("delivery chain ended, endpoint removed", "event_id", t.event.ID, "endpoint_id", t.endpointID)
		d.finish(rec, webhook.OutcomeAbandoned)
		return
	case err != nil:
		slog.Warn("delivery endpoint lookup failed", "event_id", t.event.ID, "endpoint_id", t.endpointID, "error", err)
	case !ep.Active:
		slog.Debug("delivery chain ended, endpoint inactive", "event_id", t.event.ID, "endpoint_id", t.endpointID)
		d.finish(rec, webhook.OutcomeAbandoned)
		return
	}

	if err == nil {
		rec.Signature = d.signer.Sign(t.body, ep.Secret)
		err = d.send(ctx, ep, t, rec.Signature)
	}

	if err == nil {
		if _, rerr := d.registry.RecordSuccess(ctx, ep.ID); rerr != nil {
			slog.Warn("record delivery success failed", "endpoint_id", ep.ID, "error", rerr)
		}
		slog.Debug("webhook delivered", "event_id", t.event.ID, "endpoint_id", ep.ID, "attempt", t.attempt)
		d.finish(rec, webhook.OutcomeDelivered)
		return
	}

	slog.Warn("webhook delivery failed", "event_id", t.event.ID, "endpoint_id", t.endpointID, "attempt", t.attempt, "error", err)

	if t.attempt >= webhook.MaxAttempts {
		updated, rerr := d.registry.RecordExhausted(ctx, t.endpointID)
		if rerr != nil {
			slog.Warn("record delivery exhaustion failed", "endpoint_id", t.endpointID, "error", rerr)
		}
		d.metrics.Exhausted(ctx, updated != nil && !updated.Active)
		d.finish(rec, webhook.OutcomeExhausted)
		return
	}

	next := *t
	next.attempt++
	next.fireAt = d.clock.Now().Add(webhook.RetryDelay(t.attempt, d.cfg.RetryUnit))
	d.enqueue(ctx, &next)
}

// send POSTs the signed envelope. Any non-2xx status is a failure.
func (d *DeliveryEngine) send(ctx context.Context, ep *webhook.Endpoint, t *deliveryTask, signature string) (err error) {
	ctx, span := cfotel.StartDeliverySpan(ctx, t.event.ID, ep.ID, t.attempt)
	started := d.clock.Now()
	defer func() {
		d.metrics.Attempted(ctx, t.attempt, err == nil, d.clock.Since(started).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(t.body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.HeaderSignature, signature)
	req.Header.Set(webhook.HeaderEvent, string(t.event.Type))
	req.Header.Set(webhook.HeaderEventID, t.event.ID)
	req.Header.Set(webhook.HeaderAttempt, strconv.Itoa(t.attempt))
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseDrain))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint responded %d", resp.StatusCode)
	}
	return nil
}

func (d *DeliveryEngine) finish(rec webhook.Attempt, outcome webhook.Outcome) {
	d.hookMu.RLock()
	hooks := d.onOutcome
	d.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(rec, outcome)
	}
}
