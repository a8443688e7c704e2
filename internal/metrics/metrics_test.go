package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/hammamikhairi/guardian/internal/domain"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveVerdict(domain.LabelCry, 40*time.Millisecond)
	m.ObserveVerdict(domain.LabelCry, 60*time.Millisecond)
	m.ObserveVerdict(domain.LabelNotCry, 10*time.Millisecond)
	m.ObserveStep("notify", domain.StepSent)
	m.ObserveStep("content", domain.StepFailed)
	m.ObserveDecision(DecisionSuppressed)
	m.ObserveLullaby(nil)
	m.ObserveLullaby(errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.verdicts.WithLabelValues("cry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verdicts.WithLabelValues("not_cry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("content", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalations.WithLabelValues(DecisionSuppressed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lullabies.WithLabelValues("error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveVerdict(domain.LabelCry, time.Second)
	m.ObserveStep("notify", domain.StepSent)
	m.ObserveDecision(DecisionEscalated)
	m.ObserveLullaby(nil)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveVerdict(domain.LabelCry, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `guardian_verdicts_total{label="cry"} 1`), body)
}
