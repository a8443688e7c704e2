// Package escalation drives the caregiver-facing reaction to a cry: an SMS
// to the caregiver and, optionally, a freshly narrated lullaby. The two
// steps are independent and run concurrently.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
	"github.com/hammamikhairi/guardian/internal/metrics"
)

// Step names used in logs, spans and metrics.
const (
	StepNotify  = "notify"
	StepContent = "content"
)

// ContentGenerator produces soothing audio for a topic.
type ContentGenerator interface {
	Generate(ctx context.Context, topic string) ([]byte, error)
	ContentType() string
}

// ContentSink keeps generated audio and returns a reference to it.
type ContentSink interface {
	KeepGenerated(ctx context.Context, ownerID, topic string, audio []byte, contentType string) (string, error)
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithRecipient sets the caregiver number and the sending number.
func WithRecipient(to, from string) Option {
	return func(o *Orchestrator) {
		o.to = to
		o.from = from
	}
}

// WithContent enables the soothing-content step.
func WithContent(gen ContentGenerator, topic string, sink ContentSink) Option {
	return func(o *Orchestrator) {
		o.content = gen
		o.topic = topic
		o.sink = sink
	}
}

// WithStepTimeout bounds each step independently.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.stepTimeout = d
	}
}

// WithHistory sets how many outcomes Recent can return.
func WithHistory(n int) Option {
	return func(o *Orchestrator) {
		o.history = newRing(n)
	}
}

// WithMetrics records step outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer(tracerName)
	}
}

const tracerName = "github.com/hammamikhairi/guardian/internal/escalation"

// Orchestrator runs escalations. Safe for concurrent use.
type Orchestrator struct {
	gateway     domain.MessagingGateway
	to, from    string
	content     ContentGenerator
	topic       string
	sink        ContentSink
	stepTimeout time.Duration
	history     *ring
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	clock       func() time.Time
	log         *logger.Logger
}

// New creates an orchestrator around a messaging gateway.
func New(gateway domain.MessagingGateway, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:     gateway,
		topic:       "a sleepy little star",
		stepTimeout: 45 * time.Second,
		history:     newRing(50),
		tracer:      otel.Tracer(tracerName),
		clock:       time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EscalateOption tweaks a single escalation.
type EscalateOption func(*request)

type request struct {
	message string
}

// WithMessage replaces the default notification body.
func WithMessage(body string) EscalateOption {
	return func(r *request) {
		r.message = body
	}
}

// DefaultMessage is the notification body used when none is supplied.
func DefaultMessage(sourceID string, probability float64) string {
	return fmt.Sprintf("Guardian: crying detected on %s (%.0f%% confidence).", sourceID, probability*100)
}

// Escalate runs both steps and waits for them. It never returns an error:
// failures are recorded per step in the outcome.
func (o *Orchestrator) Escalate(ctx context.Context, verdict domain.Verdict, sourceID string, opts ...EscalateOption) domain.EscalationOutcome {
	req := request{message: DefaultMessage(sourceID, verdict.Probability)}
	for _, opt := range opts {
		opt(&req)
	}

	ctx, span := o.tracer.Start(ctx, "escalation.escalate", trace.WithAttributes(
		attribute.String("guardian.source_id", sourceID),
		attribute.Float64("guardian.probability", verdict.Probability),
	))
	defer span.End()

	out := domain.EscalationOutcome{
		SourceID:  sourceID,
		Verdict:   verdict,
		StartedAt: o.clock(),
	}
	log := o.log.With("source", sourceID)
	log.Info("escalating: %s p=%.2f", verdict.Label, verdict.Probability)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Notification = o.runStep(ctx, StepNotify, func(sctx context.Context) (string, error) {
			return o.notify(sctx, req.message)
		})
	}()
	go func() {
		defer wg.Done()
		if o.content == nil {
			out.Content = domain.StepOutcome{Status: domain.StepSkipped, Reason: "disabled"}
			o.metrics.ObserveStep(StepContent, domain.StepSkipped)
			return
		}
		out.Content = o.runStep(ctx, StepContent, func(sctx context.Context) (string, error) {
			return o.soothe(sctx, sourceID)
		})
	}()
	wg.Wait()

	out.FinishedAt = o.clock()
	if !out.AnySent() {
		span.SetStatus(codes.Error, "no step succeeded")
	} else if out.Partial() {
		span.SetAttributes(attribute.Bool("guardian.partial", true))
	}
	log.Info("escalation finished: notify=%s content=%s (%s)",
		out.Notification, out.Content, out.FinishedAt.Sub(out.StartedAt).Round(time.Millisecond))

	o.history.push(out)
	return out
}

// Recent returns up to n outcomes, newest first.
func (o *Orchestrator) Recent(n int) []domain.EscalationOutcome {
	return o.history.list(n)
}

func (o *Orchestrator) notify(ctx context.Context, body string) (string, error) {
	if o.gateway == nil || o.to == "" {
		return "", errSkip{"no recipient configured"}
	}
	return o.gateway.Send(ctx, o.to, o.from, body)
}

func (o *Orchestrator) soothe(ctx context.Context, sourceID string) (string, error) {
	audio, err := o.content.Generate(ctx, o.topic)
	if err != nil {
		return "", err
	}
	if o.sink == nil {
		return fmt.Sprintf("%d bytes", len(audio)), nil
	}
	return o.sink.KeepGenerated(ctx, sourceID, o.topic, audio, o.content.ContentType())
}

// errSkip marks a step that was not attempted.
type errSkip struct{ reason string }

func (e errSkip) Error() string { return e.reason }

type stepResult struct {
	ref string
	err error
}

// runStep runs fn under the step timeout. A step that ignores its context
// is abandoned at the deadline.
func (o *Orchestrator) runStep(ctx context.Context, name string, fn func(context.Context) (string, error)) domain.StepOutcome {
	ctx, span := o.tracer.Start(ctx, "escalation."+name)
	defer span.End()

	sctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	done := make(chan stepResult, 1)
	go func() {
		ref, err := fn(sctx)
		done <- stepResult{ref: ref, err: err}
	}()

	var res stepResult
	select {
	case res = <-done:
	case <-sctx.Done():
		res = stepResult{err: sctx.Err()}
	}

	outcome := o.classify(sctx, res)
	o.metrics.ObserveStep(name, outcome.Status)
	span.SetAttributes(attribute.String("guardian.step.status", string(outcome.Status)))
	if outcome.Status == domain.StepFailed {
		span.SetStatus(codes.Error, outcome.Reason)
		o.log.Warn("escalation step %s failed: %v", name, res.err)
	}
	return outcome
}

func (o *Orchestrator) classify(sctx context.Context, res stepResult) domain.StepOutcome {
	var skip errSkip
	switch {
	case res.err == nil:
		return domain.StepOutcome{Status: domain.StepSent, Ref: res.ref}
	case errors.As(res.err, &skip):
		return domain.StepOutcome{Status: domain.StepSkipped, Reason: skip.reason}
	case errors.Is(res.err, domain.ErrTimeout),
		errors.Is(res.err, context.DeadlineExceeded),
		errors.Is(sctx.Err(), context.DeadlineExceeded):
		return domain.StepOutcome{Status: domain.StepFailed, Reason: "timeout"}
	default:
		return domain.StepOutcome{Status: domain.StepFailed, Reason: res.err.Error()}
	}
}
