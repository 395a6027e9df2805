package ping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/splax/adsync/internal/domain"
)

type recordingSink struct {
	lines []string
}

func (r *recordingSink) Log(line string) { r.lines = append(r.lines, line) }

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPingTransportFailure(t *testing.T) {
	sink := &recordingSink{}
	client := doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("Timeout")
	})

	outcome := New("https://example.com/run", client, sink, discardLogger()).Ping(context.Background())

	if outcome.Success {
		t.Fatal("expected failure outcome")
	}
	if outcome.StatusCode != nil {
		t.Fatalf("expected nil status code, got %d", *outcome.StatusCode)
	}
	if outcome.Error == nil || *outcome.Error != "Timeout" {
		t.Fatalf("unexpected error %v", outcome.Error)
	}
	if len(sink.lines) != 1 || sink.lines[0] != "Ping failed: Timeout" {
		t.Fatalf("unexpected log lines %q", sink.lines)
	}
}

func TestPingServerErrorCountsAsSuccess(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		http.Error(w, "db update failed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	outcome := New(srv.URL+"/run-db-update", srv.Client(), sink, discardLogger()).Ping(context.Background())

	if method != http.MethodGet {
		t.Fatalf("expected GET, got %s", method)
	}
	if !outcome.Success {
		t.Fatal("expected success outcome for HTTP 500")
	}
	if outcome.StatusCode == nil || *outcome.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status %v", outcome.StatusCode)
	}
	if outcome.Error != nil {
		t.Fatalf("expected nil error, got %s", *outcome.Error)
	}
	if len(sink.lines) != 1 || sink.lines[0] != "Ping success: 500" {
		t.Fatalf("unexpected log lines %q", sink.lines)
	}
}

func TestPingClosedServerIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	sink := &recordingSink{}
	outcome := New(url, &http.Client{}, sink, discardLogger()).Ping(context.Background())
	if outcome.Success || outcome.Error == nil {
		t.Fatalf("expected transport failure, got %+v", outcome)
	}
	if !strings.HasPrefix(sink.lines[0], "Ping failed: ") {
		t.Fatalf("unexpected log line %q", sink.lines[0])
	}
}

type recorderStub struct {
	err      error
	outcomes []domain.PingOutcome
}

func (r *recorderStub) RecordPing(_ context.Context, o domain.PingOutcome) error {
	r.outcomes = append(r.outcomes, o)
	return r.err
}

func TestPingRecorderFailureDoesNotChangeOutcome(t *testing.T) {
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusNoContent, Body: io.NopCloser(strings.NewReader(""))}, nil
	})
	recorder := &recorderStub{err: errors.New("db unavailable")}
	sink := &recordingSink{}

	outcome := New("https://example.com", client, sink, discardLogger()).WithRecorder(recorder).Ping(context.Background())

	if !outcome.Success || *outcome.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(recorder.outcomes) != 1 || recorder.outcomes[0].URL != "https://example.com" {
		t.Fatalf("expected recorded outcome, got %+v", recorder.outcomes)
	}
}

func TestSlogSinkWritesLineAsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	outcome := New("https://example.com", doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dns lookup failed")
	}), nil, logger).Ping(context.Background())
	if outcome.Success {
		t.Fatal("expected failure")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if entry["msg"] != "Ping failed: dns lookup failed" {
		t.Fatalf("unexpected message %v", entry["msg"])
	}
}
