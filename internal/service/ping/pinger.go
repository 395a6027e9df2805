package ping

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/splax/adsync/internal/domain"
)

const maxDrainBytes = 64 << 10

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// LogSink accepts free-text log lines.
type LogSink interface {
	Log(line string)
}

// OutcomeRecorder persists ping outcomes.
type OutcomeRecorder interface {
	RecordPing(ctx context.Context, outcome domain.PingOutcome) error
}

// Pinger issues a single GET to a fixed URL per invocation.
type Pinger struct {
	url      string
	client   Doer
	sink     LogSink
	recorder OutcomeRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Pinger. A nil client falls back to http.DefaultClient and a
// nil sink logs through logger.
func New(url string, client Doer, sink LogSink, logger *slog.Logger) *Pinger {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	if sink == nil {
		sink = SlogSink{Logger: logger}
	}
	return &Pinger{url: url, client: client, sink: sink, logger: logger, now: time.Now}
}

// WithRecorder attaches an outcome recorder.
func (p *Pinger) WithRecorder(r OutcomeRecorder) *Pinger {
	p.recorder = r
	return p
}

// Ping performs the request and logs the outcome. Any received status code
// counts as success; only transport errors are failures. It never returns an error.
func (p *Pinger) Ping(ctx context.Context) domain.PingOutcome {
	started := p.now()
	outcome := domain.PingOutcome{URL: p.url, CheckedAt: started.UTC()}

	code, err := p.fetch(ctx)
	outcome.Latency = p.now().Sub(started)
	if err != nil {
		msg := err.Error()
		outcome.Error = &msg
		p.sink.Log("Ping failed: " + msg)
	} else {
		outcome.Success = true
		outcome.StatusCode = &code
		p.sink.Log("Ping success: " + strconv.Itoa(code))
	}

	if p.recorder != nil {
		if rerr := p.recorder.RecordPing(ctx, outcome); rerr != nil {
			p.logger.Warn("failed to record ping outcome", "error", rerr)
		}
	}
	return outcome
}

func (p *Pinger) fetch(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build ping request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	return resp.StatusCode, nil
}

// SlogSink writes each line as an info record.
type SlogSink struct {
	Logger *slog.Logger
}

// Log implements LogSink.
func (s SlogSink) Log(line string) {
	s.Logger.Info(line)
}
