package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/library"
)

// DefaultSource is used when a request names no audio source.
const DefaultSource = "default"

const (
	uploadField     = "file"
	defaultHistory  = 20
	maxJSONBody     = 64 << 10
	multipartMemory = 1 << 20
)

type predictResponse struct {
	Label       domain.Label `json:"label"`
	Prediction  domain.Label `json:"prediction"`
	Probability float64      `json:"probability"`
	SourceID    string       `json:"source_id"`
	Escalated   bool         `json:"escalated"`
	Timestamp   time.Time    `json:"timestamp"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	clip, err := s.readClip(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = DefaultSource
	}

	res, err := s.engine.Predict(r.Context(), clip, source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v := res.Verdict
	writeJSON(w, http.StatusOK, predictResponse{
		Label:       v.Label,
		Prediction:  v.Label,
		Probability: v.Probability,
		SourceID:    v.SourceID,
		Escalated:   res.Escalated,
		Timestamp:   v.Timestamp,
	})
}

// readClip accepts either a multipart form with a "file" part or the raw
// audio as the request body.
func (s *Server) readClip(w http.ResponseWriter, r *http.Request) (domain.AudioClip, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		data, ct, _, err := readFormFile(r)
		if err != nil {
			return domain.AudioClip{}, err
		}
		return domain.AudioClip{Data: data, ContentType: ct}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return domain.AudioClip{}, err
	}
	if len(data) == 0 {
		return domain.AudioClip{}, fmt.Errorf("%w: empty body", domain.ErrDecode)
	}
	return domain.AudioClip{Data: data, ContentType: mediaType}, nil
}

// readFormFile returns the bytes, declared type and filename of the upload
// field.
func readFormFile(r *http.Request) ([]byte, string, string, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", "", err
		}
		return nil, "", "", fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	f, hdr, err := r.FormFile(uploadField)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: missing %q field", domain.ErrDecode, uploadField)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", "", err
	}
	if len(data) == 0 {
		return nil, "", "", fmt.Errorf("%w: empty file", domain.ErrDecode)
	}
	return data, hdr.Header.Get("Content-Type"), hdr.Filename, nil
}

type escalateRequest struct {
	SourceID    string  `json:"source_id"`
	Probability float64 `json:"probability"`
	Message     string  `json:"message"`
}

type suppressedResponse struct {
	Escalated bool   `json:"escalated"`
	Reason    string `json:"reason"`
}

type escalatedResponse struct {
	Escalated bool                     `json:"escalated"`
	Outcome   domain.EscalationOutcome `json:"outcome"`
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SourceID == "" {
		req.SourceID = DefaultSource
	}

	out, err := s.engine.Escalate(r.Context(), req.SourceID, req.Probability, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if out == nil {
		writeJSON(w, http.StatusAccepted, suppressedResponse{Escalated: false, Reason: "cooldown"})
		return
	}
	writeJSON(w, http.StatusOK, escalatedResponse{Escalated: true, Outcome: *out})
}

// topicRequest uses "owner" like the upload form and list query.
type topicRequest struct {
	Topic   string `json:"topic"`
	Name    string `json:"name"`
	OwnerID string `json:"owner"`
}

func (s *Server) handleGenerateLullaby(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	data, contentType, err := s.engine.GenerateLullaby(r.Context(), req.Topic)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAudio(w, contentType, data)
}

type listResponse struct {
	Lullabies []*domain.LullabyRecord `json:"lullabies"`
}

func (s *Server) handleListLullabies(w http.ResponseWriter, r *http.Request) {
	if !s.requireLibrary(w) {
		return
	}
	q := r.URL.Query()
	filter := domain.RecordFilter{
		OwnerID: q.Get("owner"),
		Kind:    domain.LullabyKind(q.Get("kind")),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown kind " + strconv.Quote(string(filter.Kind))})
		return
	}
	limit, ok := parseLimit(w, q.Get("limit"), 0)
	if !ok {
		return
	}
	filter.Limit = limit

	recs, err := s.library.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*domain.LullabyRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Lullabies: recs})
}

func (s *Server) handleUploadLullaby(w http.ResponseWriter, r *http.Request) {
	if !s.requireLibrary(w) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	data, ct, filename, err := readFormFile(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	name := r.FormValue("name")
	if name == "" && filename != "" {
		name = strings.TrimSuffix(filename, extOf(filename))
	}
	rec, err := s.library.Save(r.Context(), library.Upload{
		OwnerID:     r.FormValue("owner"),
		Name:        name,
		ContentType: ct,
		Data:        data,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleCreateLullaby(w http.ResponseWriter, r *http.Request) {
	if !s.requireLibrary(w) {
		return
	}
	var req topicRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.library.Generate(r.Context(), library.GenerateRequest{
		Topic:   req.Topic,
		Name:    req.Name,
		OwnerID: req.OwnerID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleLullabyAudio(w http.ResponseWriter, r *http.Request) {
	if !s.requireLibrary(w) {
		return
	}
	rec, data, err := s.library.Content(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(rec.DisplayName))
	writeAudio(w, rec.ContentType, data)
}

func (s *Server) handleDeleteLullaby(w http.ResponseWriter, r *http.Request) {
	if !s.requireLibrary(w) {
		return
	}
	if err := s.library.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type historyResponse struct {
	Escalations []domain.EscalationOutcome `json:"escalations"`
}

func (s *Server) handleEscalations(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"), defaultHistory)
	if !ok {
		return
	}
	out := []domain.EscalationOutcome{}
	if s.history != nil {
		out = append(out, s.history.Recent(limit)...)
	}
	writeJSON(w, http.StatusOK, historyResponse{Escalations: out})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireLibrary(w http.ResponseWriter) bool {
	if s.library == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "lullaby library not configured"})
		return false
	}
	return true
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: invalid json: %v", domain.ErrDecode, err)
	}
	return nil
}

func parseLimit(w http.ResponseWriter, raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit " + strconv.Quote(raw)})
		return 0, false
	}
	return n, true
}

func writeAudio(w http.ResponseWriter, contentType string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}
