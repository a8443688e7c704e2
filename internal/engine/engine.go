// Package engine wires the detection pipeline: feature extraction,
// classification, the decision policy and escalation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/escalation"
	"github.com/hammamikhairi/guardian/internal/logger"
	"github.com/hammamikhairi/guardian/internal/metrics"
	"github.com/hammamikhairi/guardian/internal/policy"
)

// ErrBelowThreshold rejects a manual escalation for a non-cry probability.
var ErrBelowThreshold = errors.New("probability does not exceed the cry threshold")

// ErrNoLullaby is returned when no content generator is configured.
var ErrNoLullaby = errors.New("lullaby generation is not configured")

// Extractor turns a clip into an embedding.
type Extractor interface {
	Extract(ctx context.Context, clip domain.AudioClip) (domain.Embedding, error)
}

// Classifier turns an embedding into a cry probability.
type Classifier interface {
	Classify(ctx context.Context, embedding domain.Embedding) (float64, error)
}

// Decider applies the threshold and cooldown. Verdict labels without
// consuming a cooldown slot.
type Decider interface {
	Decide(ctx context.Context, probability float64, sourceID string) (policy.Decision, error)
	Verdict(probability float64, sourceID string) domain.Verdict
}

// Escalator runs the reaction workflow.
type Escalator interface {
	Escalate(ctx context.Context, verdict domain.Verdict, sourceID string, opts ...escalation.EscalateOption) domain.EscalationOutcome
}

// ContentGenerator writes and narrates a lullaby.
type ContentGenerator interface {
	Generate(ctx context.Context, topic string) ([]byte, error)
	ContentType() string
}

// Observer is told about every verdict and every finished escalation.
// Callbacks must not block.
type Observer interface {
	OnVerdict(v domain.Verdict, escalated bool)
	OnEscalation(o domain.EscalationOutcome)
}

// Option configures the engine.
type Option func(*Engine)

// WithEscalator enables escalation. Without one, cries are only reported.
func WithEscalator(e Escalator) Option {
	return func(eng *Engine) {
		eng.escalator = e
	}
}

// WithLullabies enables GenerateLullaby.
func WithLullabies(g ContentGenerator) Option {
	return func(eng *Engine) {
		eng.lullabies = g
	}
}

// WithMetrics records verdicts and decisions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(eng *Engine) {
		eng.metrics = m
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(eng *Engine) {
		eng.observers = append(eng.observers, o)
	}
}

// Engine runs one classification per call. It holds no per-request state
// and is safe for concurrent use.
type Engine struct {
	extractor  Extractor
	classifier Classifier
	decider    Decider
	escalator  Escalator
	lullabies  ContentGenerator
	metrics    *metrics.Metrics
	observers  []Observer
	log        *logger.Logger

	inflight sync.WaitGroup
}

// New creates an engine with the given pipeline stages and options.
func New(extractor Extractor, classifier Classifier, decider Decider, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		extractor:  extractor,
		classifier: classifier,
		decider:    decider,
		log:        log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is what a caller of Predict gets back.
type Result struct {
	Verdict   domain.Verdict
	Escalated bool
}

// Predict classifies one clip for a source. When the policy grants an
// escalation it starts in the background and Predict returns immediately.
func (e *Engine) Predict(ctx context.Context, clip domain.AudioClip, sourceID string) (Result, error) {
	start := time.Now()
	log := e.log.With("source", sourceID)

	emb, err := e.extractor.Extract(ctx, clip)
	if err != nil {
		return Result{}, err
	}
	p, err := e.classifier.Classify(ctx, emb)
	if err != nil {
		return Result{}, err
	}

	d, err := e.decide(ctx, p, sourceID)
	if err != nil {
		log.Error("escalation state unavailable, not escalating: %v", err)
		e.metrics.ObserveDecision(metrics.DecisionError)
	} else if d.Verdict.IsCry() {
		if d.Escalate {
			e.metrics.ObserveDecision(metrics.DecisionEscalated)
		} else {
			e.metrics.ObserveDecision(metrics.DecisionSuppressed)
		}
	}
	e.metrics.ObserveVerdict(d.Verdict.Label, time.Since(start))
	log.Info("verdict %s p=%.3f escalate=%v (%s)", d.Verdict.Label, p, d.Escalate, time.Since(start).Round(time.Millisecond))

	escalated := d.Escalate
	for _, o := range e.observers {
		o.OnVerdict(d.Verdict, escalated)
	}
	if escalated {
		e.launch(ctx, d.Verdict, sourceID)
	}
	return Result{Verdict: d.Verdict, Escalated: escalated}, nil
}

// decide gates on the cooldown only when there is something to escalate
// to, so an engine without an escalator never uses up a source's slot.
func (e *Engine) decide(ctx context.Context, p float64, sourceID string) (policy.Decision, error) {
	if e.escalator == nil {
		return policy.Decision{Verdict: e.decider.Verdict(p, sourceID)}, nil
	}
	return e.decider.Decide(ctx, p, sourceID)
}

// launch runs an escalation detached from the request lifetime.
func (e *Engine) launch(ctx context.Context, v domain.Verdict, sourceID string) {
	detached := context.WithoutCancel(ctx)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		out := e.escalator.Escalate(detached, v, sourceID)
		e.publish(out)
	}()
}

// Escalate is the manual path: the caller supplies a probability, which
// must exceed the threshold, and an optional message. It passes through
// the same cooldown gate as Predict. A nil outcome with no error means the
// source is cooling down.
func (e *Engine) Escalate(ctx context.Context, sourceID string, probability float64, message string) (*domain.EscalationOutcome, error) {
	if domain.LabelFor(probability) != domain.LabelCry {
		return nil, fmt.Errorf("%w: %.3f", ErrBelowThreshold, probability)
	}
	if e.escalator == nil {
		return nil, fmt.Errorf("%w: no escalation configured", domain.ErrConfiguration)
	}
	d, err := e.decider.Decide(ctx, probability, sourceID)
	if err != nil {
		e.metrics.ObserveDecision(metrics.DecisionError)
		return nil, err
	}
	if !d.Escalate {
		e.metrics.ObserveDecision(metrics.DecisionSuppressed)
		return nil, nil
	}
	e.metrics.ObserveDecision(metrics.DecisionEscalated)

	var opts []escalation.EscalateOption
	if message != "" {
		opts = append(opts, escalation.WithMessage(message))
	}

	e.inflight.Add(1)
	defer e.inflight.Done()
	out := e.escalator.Escalate(context.WithoutCancel(ctx), d.Verdict, sourceID, opts...)
	e.publish(out)
	return &out, nil
}

// GenerateLullaby narrates a lullaby for a topic, bypassing classification.
func (e *Engine) GenerateLullaby(ctx context.Context, topic string) ([]byte, string, error) {
	if e.lullabies == nil {
		return nil, "", ErrNoLullaby
	}
	data, err := e.lullabies.Generate(ctx, topic)
	e.metrics.ObserveLullaby(err)
	if err != nil {
		return nil, "", err
	}
	return data, e.lullabies.ContentType(), nil
}

// Wait blocks until all in-flight escalations have finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) publish(out domain.EscalationOutcome) {
	for _, o := range e.observers {
		o.OnEscalation(out)
	}
}
