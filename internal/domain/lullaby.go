package domain

import "time"

// LullabyKind distinguishes narrated content from caregiver recordings.
type LullabyKind string

const (
	KindGenerated LullabyKind = "generated"
	KindRecorded  LullabyKind = "recorded"
)

// Valid reports whether k is a known kind.
func (k LullabyKind) Valid() bool {
	return k == KindGenerated || k == KindRecorded
}

// LullabyRecord describes one stored piece of soothing audio. The audio
// itself lives in a BlobStore under ContentRef.
type LullabyRecord struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	DisplayName string        `json:"display_name"`
	Kind        LullabyKind   `json:"kind"`
	Duration    time.Duration `json:"duration"`
	ContentRef  string        `json:"content_reference"`
	ContentType string        `json:"content_type"`
	CreatedAt   time.Time     `json:"created_at"`
}

// RecordFilter narrows a Find. Zero values match everything.
type RecordFilter struct {
	OwnerID string
	Kind    LullabyKind
	Limit   int
}

// Match reports whether rec passes the filter (Limit is not applied here).
func (f RecordFilter) Match(rec *LullabyRecord) bool {
	if f.OwnerID != "" && rec.OwnerID != f.OwnerID {
		return false
	}
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	return true
}
