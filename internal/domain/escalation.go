package domain

import "time"

// StepStatus is the outcome of one escalation step.
type StepStatus string

const (
	StepSent    StepStatus = "sent"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepOutcome records what happened to a single side effect.
type StepOutcome struct {
	Status StepStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
	Ref    string     `json:"ref,omitempty"` // message id or content reference
}

// String renders the outcome as "sent" or "failed: <reason>".
func (o StepOutcome) String() string {
	if o.Reason == "" {
		return string(o.Status)
	}
	return string(o.Status) + ": " + o.Reason
}

// EscalationOutcome reports each step individually. The two steps are
// independent, so partial success is a normal result.
type EscalationOutcome struct {
	SourceID     string      `json:"source_id"`
	Verdict      Verdict     `json:"verdict"`
	Notification StepOutcome `json:"notification"`
	Content      StepOutcome `json:"content"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
}

// AnySent reports whether at least one step succeeded.
func (o EscalationOutcome) AnySent() bool {
	return o.Notification.Status == StepSent || o.Content.Status == StepSent
}

// Partial reports whether one step succeeded and the other failed.
func (o EscalationOutcome) Partial() bool {
	return o.AnySent() && (o.Notification.Status == StepFailed || o.Content.Status == StepFailed)
}
