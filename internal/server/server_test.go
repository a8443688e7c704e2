package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/guardian/internal/audio"
	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/engine"
	"github.com/hammamikhairi/guardian/internal/library"
	"github.com/hammamikhairi/guardian/internal/logger"
	"github.com/hammamikhairi/guardian/internal/lullaby"
	"github.com/hammamikhairi/guardian/internal/storage"
)

type fakeEngine struct {
	mu       sync.Mutex
	clip     domain.AudioClip
	source   string
	result   engine.Result
	err      error
	outcome  *domain.EscalationOutcome
	escErr   error
	audio    []byte
	audioErr error
}

func (f *fakeEngine) Predict(_ context.Context, clip domain.AudioClip, source string) (engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clip, f.source = clip, source
	r := f.result
	r.Verdict.SourceID = source
	return r, f.err
}

func (f *fakeEngine) Escalate(_ context.Context, source string, p float64, _ string) (*domain.EscalationOutcome, error) {
	if domain.LabelFor(p) != domain.LabelCry {
		return nil, engine.ErrBelowThreshold
	}
	return f.outcome, f.escErr
}

func (f *fakeEngine) GenerateLullaby(_ context.Context, topic string) ([]byte, string, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, "", lullaby.ErrEmptyTopic
	}
	return f.audio, "audio/wav", f.audioErr
}

type stubHistory []domain.EscalationOutcome

func (h stubHistory) Recent(n int) []domain.EscalationOutcome {
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}

func newTestLibrary(t *testing.T) *library.Library {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	blobs, err := storage.NewFileBlobStore("", log)
	require.NoError(t, err)
	return library.New(storage.NewMemoryStore(log), blobs, log)
}

func newTestServer(t *testing.T, eng Engine, lib Library, opts ...Option) *httptest.Server {
	t.Helper()
	srv := New(eng, lib, logger.New(logger.LevelOff, nil), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func wavSeconds(n float64) []byte {
	return audio.EncodeWAV(make([]float32, int(n*16000)), 16000)
}

func multipartBody(t *testing.T, field, filename string, data []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestPredictMultipart(t *testing.T) {
	ts0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	eng := &fakeEngine{result: engine.Result{
		Verdict:   domain.Verdict{Label: domain.LabelCry, Probability: 0.91, Timestamp: ts0},
		Escalated: true,
	}}
	ts := newTestServer(t, eng, nil)

	body, ct := multipartBody(t, "file", "clip.wav", wavSeconds(1), nil)
	resp, err := http.Post(ts.URL+"/predict?source=nursery", ct, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[map[string]any](t, resp)
	assert.Equal(t, "cry", got["label"])
	assert.Equal(t, "cry", got["prediction"])
	assert.InDelta(t, 0.91, got["probability"], 1e-9)
	assert.Equal(t, "nursery", got["source_id"])
	assert.Equal(t, true, got["escalated"])
	assert.Equal(t, "nursery", eng.source)
	assert.NotEmpty(t, eng.clip.Data)
}

func TestPredictRawBodyDefaultsSource(t *testing.T) {
	eng := &fakeEngine{result: engine.Result{Verdict: domain.Verdict{Label: domain.LabelNotCry, Probability: 0.2}}}
	ts := newTestServer(t, eng, nil)

	resp, err := http.Post(ts.URL+"/predict", "audio/wav", bytes.NewReader(wavSeconds(1)))
	require.NoError(t, err)
	got := decode[predictResponse](t, resp)
	assert.Equal(t, domain.LabelNotCry, got.Label)
	assert.Equal(t, DefaultSource, got.SourceID)
	assert.False(t, got.Escalated)
	assert.Equal(t, "audio/wav", eng.clip.ContentType)
}

func TestPredictErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"decode", domain.ErrDecode, http.StatusBadRequest},
		{"empty clip", domain.ErrEmptyClip, http.StatusBadRequest},
		{"model", domain.ErrModelUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeEngine{err: tt.err}, nil)
			resp, err := http.Post(ts.URL+"/predict", "audio/wav", strings.NewReader("junk"))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestPredictRejectsMissingAndOversizedUploads(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{}, nil, WithMaxUpload(1024))

	resp, err := http.Post(ts.URL+"/predict", "audio/wav", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ct := multipartBody(t, "other", "x.wav", []byte("abc"), nil)
	resp, err = http.Post(ts.URL+"/predict", ct, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/predict", "audio/wav", bytes.NewReader(make([]byte, 4096)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestEscalate(t *testing.T) {
	out := &domain.EscalationOutcome{
		SourceID:     "nursery",
		Notification: domain.StepOutcome{Status: domain.StepSent, Ref: "SM1"},
		Content:      domain.StepOutcome{Status: domain.StepSkipped, Reason: "disabled"},
	}
	eng := &fakeEngine{outcome: out}
	ts := newTestServer(t, eng, nil)

	post := func(body string) *http.Response {
		resp, err := http.Post(ts.URL+"/escalate", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	resp := post(`{"source_id":"nursery","probability":0.4}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = post(`{"source_id":"nursery","probability":0.9}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[escalatedResponse](t, resp)
	assert.True(t, got.Escalated)
	assert.Equal(t, domain.StepSent, got.Outcome.Notification.Status)

	eng.outcome = nil
	resp = post(`{"probability":0.9}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	sup := decode[suppressedResponse](t, resp)
	assert.False(t, sup.Escalated)
	assert.Equal(t, "cooldown", sup.Reason)

	resp = post(`{not json`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateLullaby(t *testing.T) {
	wav := wavSeconds(0.5)
	ts := newTestServer(t, &fakeEngine{audio: wav}, nil)

	resp, err := http.Post(ts.URL+"/generate-lullaby", "application/json", strings.NewReader(`{"topic":"stars"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, wav, buf.Bytes())

	resp2, err := http.Post(ts.URL+"/generate-lullaby", "application/json", strings.NewReader(`{"topic":"  "}`))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestGenerateLullabyUpstreamFailures(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrService, http.StatusBadGateway},
		{domain.ErrTimeout, http.StatusGatewayTimeout},
		{engine.ErrNoLullaby, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		ts := newTestServer(t, &fakeEngine{audioErr: tt.err}, nil)
		resp, err := http.Post(ts.URL+"/generate-lullaby", "application/json", strings.NewReader(`{"topic":"moon"}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tt.want, resp.StatusCode, tt.err.Error())
	}
}

func TestLullabyLibraryFlow(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{}, newTestLibrary(t))
	wav := wavSeconds(2)

	body, ct := multipartBody(t, "file", "hush.wav", wav, map[string]string{"owner": "mom"})
	resp, err := http.Post(ts.URL+"/lullabies", ct, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decode[domain.LullabyRecord](t, resp)
	assert.Equal(t, "hush", rec.DisplayName)
	assert.Equal(t, "mom", rec.OwnerID)
	assert.Equal(t, domain.KindRecorded, rec.Kind)
	assert.Equal(t, 2*time.Second, rec.Duration)

	resp, err = http.Get(ts.URL + "/lullabies?owner=mom&kind=recorded")
	require.NoError(t, err)
	list := decode[listResponse](t, resp)
	require.Len(t, list.Lullabies, 1)
	assert.Equal(t, rec.ID, list.Lullabies[0].ID)

	resp, err = http.Get(ts.URL + "/lullabies/" + rec.ID + "/audio")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, wav, buf.Bytes())

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/lullabies/"+rec.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/lullabies/" + rec.ID + "/audio")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLullabyLibraryValidation(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{}, newTestLibrary(t))

	for _, q := range []string{"?kind=opera", "?limit=-1", "?limit=abc"} {
		resp, err := http.Get(ts.URL + "/lullabies" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}

	body, ct := multipartBody(t, "file", "noise.wav", []byte("not audio at all"), nil)
	resp, err := http.Post(ts.URL+"/lullabies", ct, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/lullabies/generate", "application/json", strings.NewReader(`{"topic":"moon"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

type wavGenerator struct{}

func (wavGenerator) Generate(context.Context, string) ([]byte, error) { return wavSeconds(2), nil }
func (wavGenerator) ContentType() string                              { return "audio/wav" }

func TestCreateLullabyKeepsOwner(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	blobs, err := storage.NewFileBlobStore("", log)
	require.NoError(t, err)
	lib := library.New(storage.NewMemoryStore(log), blobs, log, library.WithGenerator(wavGenerator{}))
	ts := newTestServer(t, &fakeEngine{}, lib)

	resp, err := http.Post(ts.URL+"/lullabies/generate", "application/json",
		strings.NewReader(`{"topic":"stars","name":"Stars","owner":"nursery"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decode[map[string]any](t, resp)
	assert.Equal(t, "nursery", rec["owner_id"])
	assert.Equal(t, "Stars", rec["display_name"])

	resp, err = http.Get(ts.URL + "/lullabies?owner=nursery")
	require.NoError(t, err)
	list := decode[listResponse](t, resp)
	require.Len(t, list.Lullabies, 1)
	assert.Equal(t, "generated", string(list.Lullabies[0].Kind))
}

func TestLullabyRoutesWithoutLibrary(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{}, nil)
	resp, err := http.Get(ts.URL + "/lullabies")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEscalationHistory(t *testing.T) {
	hist := stubHistory{{SourceID: "a"}, {SourceID: "b"}, {SourceID: "c"}}
	ts := newTestServer(t, &fakeEngine{}, nil, WithHistory(hist))

	resp, err := http.Get(ts.URL + "/escalations?limit=2")
	require.NoError(t, err)
	got := decode[historyResponse](t, resp)
	require.Len(t, got.Escalations, 2)
	assert.Equal(t, "a", got.Escalations[0].SourceID)
}

func TestRateLimit(t *testing.T) {
	eng := &fakeEngine{result: engine.Result{Verdict: domain.Verdict{Label: domain.LabelNotCry}}}
	ts := newTestServer(t, eng, nil, WithRateLimit(0.001, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Post(ts.URL+"/predict", "audio/wav", bytes.NewReader(wavSeconds(0.1)))
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Cheap routes are not limited.
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{}, nil, WithCORSOrigins([]string{"http://app.local"}))

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/predict", nil)
	req.Header.Set("Origin", "http://app.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://app.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set("Origin", "http://evil.local")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHubBroadcastsVerdicts(t *testing.T) {
	hub := NewHub(nil, logger.New(logger.LevelOff, nil))
	ts := newTestServer(t, &fakeEngine{}, nil, WithHub(hub))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.OnVerdict(domain.Verdict{SourceID: "nursery", Label: domain.LabelCry, Probability: 0.8}, true)
	hub.OnEscalation(domain.EscalationOutcome{SourceID: "nursery"})

	var evt Event
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, EventVerdict, evt.Type)
	require.NotNil(t, evt.Verdict)
	assert.Equal(t, domain.LabelCry, evt.Verdict.Label)
	assert.True(t, evt.Escalated)

	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, EventEscalation, evt.Type)
	require.NotNil(t, evt.Outcome)
	assert.Equal(t, "nursery", evt.Outcome.SourceID)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrGateway, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("predict: %w", context.Canceled), statusClientClosed},
		{library.ErrNoGenerator, http.StatusServiceUnavailable},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestCanceledRequestIsNotAnError(t *testing.T) {
	var buf bytes.Buffer
	srv := New(&fakeEngine{}, nil, logger.New(logger.LevelNormal, &buf))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	srv.writeError(rec, req, fmt.Errorf("inference: %w", context.Canceled))

	assert.Equal(t, statusClientClosed, rec.Code)
	assert.Empty(t, buf.String())
}
