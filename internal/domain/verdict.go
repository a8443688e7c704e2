package domain

import "time"

// Label is the discrete classification outcome.
type Label string

const (
	LabelCry    Label = "cry"
	LabelNotCry Label = "not_cry"
)

// CryThreshold is the policy constant separating cry from not_cry. A
// probability must be strictly greater than it to count as a cry.
const CryThreshold = 0.5

// LabelFor maps a probability to a label. Ties resolve to not_cry.
func LabelFor(probability float64) Label {
	if probability > CryThreshold {
		return LabelCry
	}
	return LabelNotCry
}

// Verdict is the result of one classification call.
type Verdict struct {
	SourceID    string    `json:"source_id"`
	Label       Label     `json:"label"`
	Probability float64   `json:"probability"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsCry reports whether the verdict is positive.
func (v Verdict) IsCry() bool { return v.Label == LabelCry }
