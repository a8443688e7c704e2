package messaging

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

func TestTwilioSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC1/Messages.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "tok" {
			t.Errorf("bad basic auth %q/%q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != "+15550001" || r.PostForm.Get("Body") != "crying" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	tw := NewTwilio("AC1", "tok", logger.New(logger.LevelOff, nil), WithTwilioBaseURL(srv.URL))
	sid, err := tw.Send(context.Background(), "+15550001", "+15550002", "crying")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid != "SM1" {
		t.Fatalf("sid = %q", sid)
	}
}

func TestTwilioErrorWrapsGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not valid."}`))
	}))
	defer srv.Close()

	tw := NewTwilio("AC1", "tok", logger.New(logger.LevelOff, nil), WithTwilioBaseURL(srv.URL))
	_, err := tw.Send(context.Background(), "bad", "+1", "x")
	if !errors.Is(err, domain.ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if !strings.Contains(err.Error(), "not valid") {
		t.Fatalf("error lost twilio detail: %v", err)
	}
}

func TestLogGateway(t *testing.T) {
	var buf bytes.Buffer
	g := NewLogGateway(logger.New(logger.LevelNormal, &buf))

	id1, _ := g.Send(context.Background(), "+1", "+2", "first")
	id2, _ := g.Send(context.Background(), "+1", "+2", "second")
	if id1 == id2 {
		t.Fatalf("ids should differ: %s", id1)
	}
	if !strings.Contains(buf.String(), "second") {
		t.Fatalf("log missing body: %q", buf.String())
	}
}
