// Package policy turns a cry probability into a verdict and decides
// whether the source may escalate.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
)

// DefaultCooldown applies when no cooldown is configured.
const DefaultCooldown = 5 * time.Minute

// Decision is the policy result for one classification.
type Decision struct {
	Verdict  domain.Verdict
	Escalate bool
}

// Option configures the policy.
type Option func(*Policy)

// WithCooldown sets the minimum time between escalations of one source.
func WithCooldown(d time.Duration) Option {
	return func(p *Policy) {
		p.cooldown = d
	}
}

// WithClock injects a clock, mainly for tests.
func WithClock(c domain.Clock) Option {
	return func(p *Policy) {
		p.clock = c
	}
}

// Policy applies the fixed threshold and the per-source cooldown.
type Policy struct {
	state    domain.EscalationState
	clock    domain.Clock
	cooldown time.Duration
}

// New creates a policy over the given escalation state.
func New(state domain.EscalationState, opts ...Option) *Policy {
	p := &Policy{
		state:    state,
		clock:    domain.SystemClock{},
		cooldown: DefaultCooldown,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cooldown returns the configured window.
func (p *Policy) Cooldown() time.Duration { return p.cooldown }

// Verdict labels the probability without touching the escalation state.
func (p *Policy) Verdict(probability float64, sourceID string) domain.Verdict {
	return domain.Verdict{
		SourceID:    sourceID,
		Label:       domain.LabelFor(probability),
		Probability: probability,
		Timestamp:   p.clock.Now(),
	}
}

// Decide labels the probability and, for cries, tries to take the source's
// escalation slot. On a state error the verdict is still returned with
// Escalate false.
func (p *Policy) Decide(ctx context.Context, probability float64, sourceID string) (Decision, error) {
	d := Decision{Verdict: p.Verdict(probability, sourceID)}
	if !d.Verdict.IsCry() {
		return d, nil
	}

	ok, err := p.state.TryAcquire(ctx, sourceID, d.Verdict.Timestamp, p.cooldown)
	if err != nil {
		return d, fmt.Errorf("policy: escalation state: %w", err)
	}
	d.Escalate = ok
	return d, nil
}
