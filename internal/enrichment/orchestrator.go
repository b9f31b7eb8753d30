// Package enrichment runs one login event through the tenant pipeline
// (resolve → shape → write) and reports a single terminal result to the host.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"tenanttags/internal/resolver"
	"tenanttags/internal/shaper"
)

type State string

const (
	StateIdle      State = "IDLE"
	StateResolving State = "RESOLVING"
	StateShaping   State = "SHAPING"
	StateWriting   State = "WRITING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// Failure reasons raised by the orchestrator itself. Resolver and shaper failures use
// their own error codes as the reason.
const (
	ReasonCanceled    = "canceled"
	ReasonWriteFailed = "write_failed"
	ReasonInternal    = "internal"
)

// TokenMutator is the host capability for setting a custom claim on the outgoing token.
// The orchestrator calls it at most once per event.
type TokenMutator interface {
	SetCustomClaim(key string, value any) error
}

// ClaimShaper validates an assignment into a payload.
type ClaimShaper interface {
	Shape(a resolver.Assignment) (shaper.ClaimPayload, error)
}

// LoginEvent is the event-scoped input supplied by the host pipeline.
type LoginEvent struct {
	ID        string             `json:"event_id"`
	Principal resolver.Principal `json:"principal"`
}

// Result is the outcome of one OnLogin call. It is never persisted.
type Result struct {
	EventID     string
	State       State
	Reason      string // empty unless State is StateFailed
	Err         error
	Payload     shaper.ClaimPayload
	Written     bool // false for permitted tenantless principals
	Transitions []State
	Duration    time.Duration
}

func (r Result) OK() bool { return r.State == StateDone }

type Orchestrator struct {
	resolver  resolver.Resolver
	shaper    ClaimShaper
	namespace string
	log       *zap.SugaredLogger
	metrics   *Metrics
	tracer    trace.Tracer
}

type Option func(*Orchestrator)

func WithMetrics(m *Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithLogger(log *zap.SugaredLogger) Option { return func(o *Orchestrator) { o.log = log } }

// New wires an orchestrator that writes under the claim namespace.
func New(r resolver.Resolver, s ClaimShaper, namespace string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:  r,
		shaper:    s,
		namespace: namespace,
		log:       zap.NewNop().Sugar(),
		tracer:    otel.Tracer("tenanttags/enrichment"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnLogin enriches one login event. The mutator is called only when the whole pipeline
// succeeded and ctx is still live; on any failure the token is left untouched.
func (o *Orchestrator) OnLogin(ctx context.Context, ev LoginEvent, mut TokenMutator) Result {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "enrichment.OnLogin", trace.WithAttributes(
		attribute.String("enrichment.event_id", ev.ID),
	))
	defer span.End()

	res := o.run(ctx, ev, mut)
	res.Duration = time.Since(start)

	span.SetAttributes(attribute.String("enrichment.state", string(res.State)))
	if res.State == StateFailed {
		span.SetStatus(codes.Error, res.Reason)
		o.log.Warnw("enrichment failed",
			"event_id", ev.ID, "principal", ev.Principal.ID, "state", res.State,
			"reason", res.Reason, "err", res.Err)
	} else {
		o.log.Infow("enrichment done",
			"event_id", ev.ID, "principal", ev.Principal.ID, "state", res.State,
			"tenants", res.Payload.TenantIDs(), "written", res.Written, "took", res.Duration)
	}
	o.metrics.observe(res)
	return res
}

func (o *Orchestrator) run(ctx context.Context, ev LoginEvent, mut TokenMutator) Result {
	res := Result{EventID: ev.ID, State: StateIdle, Transitions: []State{StateIdle}}
	step := func(s State) {
		res.State = s
		res.Transitions = append(res.Transitions, s)
	}
	fail := func(reason string, err error) Result {
		step(StateFailed)
		res.Reason = reason
		res.Err = err
		res.Payload = shaper.ClaimPayload{}
		return res
	}

	step(StateResolving)
	assignment, err := o.resolver.Resolve(ctx, ev.Principal)
	if ctx.Err() != nil {
		return fail(ReasonCanceled, ctx.Err())
	}
	if err != nil {
		return fail(reasonOf(err), err)
	}

	step(StateShaping)
	payload, err := o.shaper.Shape(assignment)
	if err != nil {
		return fail(reasonOf(err), err)
	}
	res.Payload = payload
	if payload.Empty() {
		// only reachable when the resolver allowed a tenantless principal
		step(StateDone)
		return res
	}

	step(StateWriting)
	if ctx.Err() != nil {
		return fail(ReasonCanceled, ctx.Err())
	}
	if mut == nil {
		return fail(ReasonWriteFailed, errors.New("no token mutator supplied"))
	}
	if err := mut.SetCustomClaim(o.namespace, payload.Value()); err != nil {
		return fail(ReasonWriteFailed, fmt.Errorf("set custom claim: %w", err))
	}
	res.Written = true
	step(StateDone)
	return res
}

func reasonOf(err error) string {
	var rerr *resolver.Error
	if errors.As(err, &rerr) {
		return string(rerr.Code)
	}
	var serr *shaper.Error
	if errors.As(err, &serr) {
		return string(serr.Code)
	}
	return ReasonInternal
}
