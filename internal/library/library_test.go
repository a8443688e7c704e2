package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hammamikhairi/guardian/internal/audio"
	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
	"github.com/hammamikhairi/guardian/internal/storage"
)

type stubGen struct {
	data []byte
	err  error
}

func (g stubGen) Generate(context.Context, string) ([]byte, error) { return g.data, g.err }
func (g stubGen) ContentType() string                              { return "audio/wav" }

func newLibrary(t *testing.T, opts ...Option) *Library {
	t.Helper()
	return newLibraryOver(t, nil, opts...)
}

// newLibraryOver builds a library whose record store is wrap applied to a
// memory store.
func newLibraryOver(t *testing.T, wrap func(domain.RecordStore) domain.RecordStore, opts ...Option) *Library {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	blobs, err := storage.NewFileBlobStore("", log)
	if err != nil {
		t.Fatal(err)
	}
	var records domain.RecordStore = storage.NewMemoryStore(log)
	if wrap != nil {
		records = wrap(records)
	}
	return New(records, blobs, log, opts...)
}

// gatedRecords parks the next Insert after arm until release is closed.
type gatedRecords struct {
	domain.RecordStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRecords) arm() {
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedRecords) Insert(ctx context.Context, rec *domain.LullabyRecord) error {
	if g.entered != nil {
		entered := g.entered
		g.entered = nil
		close(entered)
		<-g.release
	}
	return g.RecordStore.Insert(ctx, rec)
}

type failingInsert struct{ domain.RecordStore }

func (failingInsert) Insert(context.Context, *domain.LullabyRecord) error {
	return errors.New("disk full")
}

func seconds(n float64) []byte {
	return audio.EncodeWAV(make([]float32, int(n*16000)), 16000)
}

func TestSaveNamesAndDurations(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()

	first, err := lib.Save(ctx, Upload{OwnerID: "mom", Data: seconds(2), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.DisplayName != "Lullaby 1" || first.Kind != domain.KindRecorded {
		t.Fatalf("first = %+v", first)
	}
	if first.Duration != 2*time.Second {
		t.Fatalf("duration = %s", first.Duration)
	}

	second, err := lib.Save(ctx, Upload{OwnerID: "mom", Data: seconds(1)})
	if err != nil {
		t.Fatal(err)
	}
	if second.DisplayName != "Lullaby 2" {
		t.Fatalf("second name = %q", second.DisplayName)
	}

	named, err := lib.Save(ctx, Upload{Name: "Brahms", Data: seconds(1)})
	if err != nil {
		t.Fatal(err)
	}
	if named.DisplayName != "Brahms" || named.OwnerID != DefaultOwner {
		t.Fatalf("named = %+v", named)
	}
}

func TestSaveRejectsNonAudio(t *testing.T) {
	lib := newLibrary(t)
	_, err := lib.Save(context.Background(), Upload{Data: []byte("<html>")})
	if !errors.Is(err, domain.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestGenerateAndContent(t *testing.T) {
	lib := newLibrary(t, WithGenerator(stubGen{data: seconds(3)}))
	ctx := context.Background()

	rec, err := lib.Generate(ctx, GenerateRequest{Topic: "stars", OwnerID: "crib"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rec.Kind != domain.KindGenerated || rec.DisplayName != "stars" || rec.Duration != 3*time.Second {
		t.Fatalf("record = %+v", rec)
	}

	got, data, err := lib.Content(ctx, rec.ID)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if got.ID != rec.ID || len(data) == 0 {
		t.Fatalf("content mismatch")
	}

	list, _ := lib.List(ctx, domain.RecordFilter{OwnerID: "crib", Kind: domain.KindGenerated})
	if len(list) != 1 {
		t.Fatalf("list = %d", len(list))
	}
}

func TestGenerateWithoutGenerator(t *testing.T) {
	lib := newLibrary(t)
	if _, err := lib.Generate(context.Background(), GenerateRequest{Topic: "stars"}); !errors.Is(err, ErrNoGenerator) {
		t.Fatalf("expected ErrNoGenerator, got %v", err)
	}
}

func TestDeleteKeepsSharedBlob(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	data := seconds(1)

	a, _ := lib.Save(ctx, Upload{Data: data})
	b, _ := lib.Save(ctx, Upload{Data: data})
	if a.ContentRef != b.ContentRef {
		t.Fatal("identical audio should share a blob")
	}

	if err := lib.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := lib.Content(ctx, b.ID); err != nil {
		t.Fatalf("shared blob removed: %v", err)
	}
	if err := lib.Delete(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if err := lib.Delete(ctx, b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKeepGenerated(t *testing.T) {
	lib := newLibrary(t)
	id, err := lib.KeepGenerated(context.Background(), "crib", "moon", []byte("opaque"), "audio/ogg")
	if err != nil {
		t.Fatalf("keep: %v", err)
	}
	rec, err := lib.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.OwnerID != "crib" || rec.Duration != 0 || rec.ContentType != "audio/ogg" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestDeleteWaitsForConcurrentSave(t *testing.T) {
	gate := &gatedRecords{}
	lib := newLibraryOver(t, func(rs domain.RecordStore) domain.RecordStore {
		gate.RecordStore = rs
		return gate
	})
	ctx := context.Background()
	data := seconds(1)

	a, err := lib.Save(ctx, Upload{Data: data})
	if err != nil {
		t.Fatal(err)
	}

	gate.arm()
	entered, release := gate.entered, gate.release
	saved := make(chan *domain.LullabyRecord, 1)
	go func() {
		b, err := lib.Save(ctx, Upload{Data: data})
		if err != nil {
			t.Errorf("save b: %v", err)
		}
		saved <- b
	}()
	<-entered

	deleted := make(chan error, 1)
	go func() { deleted <- lib.Delete(ctx, a.ID) }()

	select {
	case err := <-deleted:
		t.Fatalf("delete finished while save was mid-flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	b := <-saved
	if err := <-deleted; err != nil {
		t.Fatalf("delete: %v", err)
	}
	if b == nil {
		t.FailNow()
	}
	if _, _, err := lib.Content(ctx, b.ID); err != nil {
		t.Fatalf("content of b after deleting a: %v", err)
	}
}

func TestFailedInsertDropsBlob(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	fs, err := storage.NewFileBlobStore("", log)
	if err != nil {
		t.Fatal(err)
	}
	blobs := &refRecorder{BlobStore: fs}
	lib := New(failingInsert{storage.NewMemoryStore(log)}, blobs, log)
	ctx := context.Background()

	if _, err := lib.Save(ctx, Upload{Data: seconds(1)}); err == nil {
		t.Fatal("expected insert failure")
	}
	if blobs.last == "" {
		t.Fatal("save never wrote a blob")
	}
	if _, err := fs.Get(ctx, blobs.last); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("blob left behind: %v", err)
	}
}

type refRecorder struct {
	domain.BlobStore
	last string
}

func (r *refRecorder) Put(ctx context.Context, data []byte) (string, error) {
	ref, err := r.BlobStore.Put(ctx, data)
	r.last = ref
	return ref, err
}
