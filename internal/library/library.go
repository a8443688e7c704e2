// Package library stores caregiver recordings and generated lullabies.
// Record metadata goes to a domain.RecordStore and audio to a
// domain.BlobStore.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/guardian/internal/audio"
	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
	"github.com/hammamikhairi/guardian/internal/metrics"
)

// DefaultOwner is used when a request names no owner.
const DefaultOwner = "default"

// ErrNoGenerator is returned by Generate when no content generator is set.
var ErrNoGenerator = errors.New("lullaby generation is not configured")

// Generator produces narrated audio for a topic.
type Generator interface {
	Generate(ctx context.Context, topic string) ([]byte, error)
	ContentType() string
}

// Option configures the library.
type Option func(*Library)

// WithGenerator enables Generate and KeepGenerated naming.
func WithGenerator(g Generator) Option {
	return func(l *Library) {
		l.gen = g
	}
}

// WithMetrics counts generation attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Library) {
		l.metrics = m
	}
}

// WithClock injects the creation-time source.
func WithClock(c domain.Clock) Option {
	return func(l *Library) {
		l.clock = c
	}
}

// Library is the lullaby record service.
type Library struct {
	records domain.RecordStore
	blobs   domain.BlobStore
	gen     Generator
	metrics *metrics.Metrics
	clock   domain.Clock
	log     *logger.Logger

	// mu orders blob writes against reference checks; blobs are shared
	// between records with identical audio.
	mu sync.Mutex
}

// New creates a library.
func New(records domain.RecordStore, blobs domain.BlobStore, log *logger.Logger, opts ...Option) *Library {
	l := &Library{
		records: records,
		blobs:   blobs,
		clock:   domain.SystemClock{},
		log:     log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Upload is a caregiver recording.
type Upload struct {
	OwnerID     string
	Name        string
	ContentType string
	Data        []byte
}

// Save stores a recording. The audio must decode; its duration is taken
// from the decoded samples. A blank name becomes "Lullaby N".
func (l *Library) Save(ctx context.Context, up Upload) (*domain.LullabyRecord, error) {
	pcm, err := audio.Decode(domain.AudioClip{Data: up.Data, ContentType: up.ContentType})
	if err != nil {
		return nil, err
	}
	owner := ownerOrDefault(up.OwnerID)

	name := strings.TrimSpace(up.Name)
	if name == "" {
		name, err = l.nextName(ctx, owner)
		if err != nil {
			return nil, err
		}
	}

	ct := up.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = "audio/wav"
	}
	return l.store(ctx, owner, name, domain.KindRecorded, pcm.Duration(), up.Data, ct)
}

// GenerateRequest asks for a new narrated lullaby.
type GenerateRequest struct {
	Topic   string
	Name    string
	OwnerID string
}

// Generate narrates a lullaby for the topic and saves it.
func (l *Library) Generate(ctx context.Context, req GenerateRequest) (*domain.LullabyRecord, error) {
	if l.gen == nil {
		return nil, ErrNoGenerator
	}
	data, err := l.gen.Generate(ctx, req.Topic)
	l.metrics.ObserveLullaby(err)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.Topic)
	}
	return l.store(ctx, ownerOrDefault(req.OwnerID), name, domain.KindGenerated,
		durationOf(data, l.gen.ContentType()), data, l.gen.ContentType())
}

// KeepGenerated saves audio produced during an escalation and returns the
// new record id.
func (l *Library) KeepGenerated(ctx context.Context, ownerID, topic string, data []byte, contentType string) (string, error) {
	rec, err := l.store(ctx, ownerOrDefault(ownerID), topic, domain.KindGenerated,
		durationOf(data, contentType), data, contentType)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// List returns records newest first.
func (l *Library) List(ctx context.Context, filter domain.RecordFilter) ([]*domain.LullabyRecord, error) {
	return l.records.Find(ctx, filter)
}

// Get returns one record.
func (l *Library) Get(ctx context.Context, id string) (*domain.LullabyRecord, error) {
	return l.records.Get(ctx, id)
}

// Content returns a record and its audio.
func (l *Library) Content(ctx context.Context, id string) (*domain.LullabyRecord, []byte, error) {
	rec, err := l.records.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := l.blobs.Get(ctx, rec.ContentRef)
	if err != nil {
		return nil, nil, fmt.Errorf("audio for %s: %w", id, err)
	}
	return rec, data, nil
}

// Delete removes the record, and its audio once no other record uses it.
func (l *Library) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := l.records.Delete(ctx, id); err != nil {
		return err
	}

	l.dropUnreferenced(ctx, rec.ContentRef)
	l.log.Info("library: deleted %s (%q)", id, rec.DisplayName)
	return nil
}

func (l *Library) store(ctx context.Context, owner, name string, kind domain.LullabyKind,
	dur time.Duration, data []byte, contentType string) (*domain.LullabyRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ref, err := l.blobs.Put(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("storing audio: %w", err)
	}
	rec := &domain.LullabyRecord{
		ID:          uuid.NewString(),
		OwnerID:     owner,
		DisplayName: name,
		Kind:        kind,
		Duration:    dur,
		ContentRef:  ref,
		ContentType: contentType,
		CreatedAt:   l.clock.Now(),
	}
	if err := l.records.Insert(ctx, rec); err != nil {
		l.dropUnreferenced(ctx, ref)
		return nil, fmt.Errorf("storing record: %w", err)
	}
	l.log.Info("library: saved %s %q for %s (%s)", kind, name, owner, dur.Round(time.Millisecond))
	return rec, nil
}

// dropUnreferenced deletes the blob once no record points at it. Callers
// hold l.mu.
func (l *Library) dropUnreferenced(ctx context.Context, ref string) {
	all, err := l.records.Find(ctx, domain.RecordFilter{})
	if err != nil {
		l.log.Warn("library: keeping blob %s, could not check references: %v", ref, err)
		return
	}
	for _, rec := range all {
		if rec.ContentRef == ref {
			return
		}
	}
	if err := l.blobs.Delete(ctx, ref); err != nil {
		l.log.Warn("library: orphaned blob %s: %v", ref, err)
	}
}

// nextName returns "Lullaby N" with N one past the owner's recording count.
func (l *Library) nextName(ctx context.Context, owner string) (string, error) {
	existing, err := l.records.Find(ctx, domain.RecordFilter{OwnerID: owner, Kind: domain.KindRecorded})
	if err != nil {
		return "", fmt.Errorf("counting recordings: %w", err)
	}
	return fmt.Sprintf("Lullaby %d", len(existing)+1), nil
}

// durationOf decodes generated audio for its length. Formats the decoder
// does not handle report zero.
func durationOf(data []byte, contentType string) time.Duration {
	pcm, err := audio.Decode(domain.AudioClip{Data: data, ContentType: contentType})
	if err != nil {
		return 0
	}
	return pcm.Duration()
}

func ownerOrDefault(owner string) string {
	if o := strings.TrimSpace(owner); o != "" {
		return o
	}
	return DefaultOwner
}
