package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"golang.org/x/oauth2"

	"github.com/splax/adsync/internal/domain"
)

const (
	defaultTimeout   = time.Minute
	maxErrorBodySize = 4096
)

// Scope is the OAuth scope required by the reporting API.
const Scope = "https://www.googleapis.com/auth/adwords"

// ErrUnauthorized indicates the reporting API rejected the credentials.
var ErrUnauthorized = errors.New("ads api unauthorized")

// ErrInvalidQuery indicates the reporting API rejected the query.
var ErrInvalidQuery = errors.New("ads api invalid query")

// ErrNotFound indicates the customer account does not exist.
var ErrNotFound = errors.New("ads api customer not found")

// ErrInvalidResponse indicates the reporting API returned a malformed payload.
var ErrInvalidResponse = errors.New("ads api invalid response")

// Config identifies the account and credentials for report calls.
// TokenSource is consulted on every request, so expired tokens are refreshed.
type Config struct {
	BaseURL         string
	APIVersion      string
	CustomerID      string
	LoginCustomerID string
	DeveloperToken  string
	TokenSource     oauth2.TokenSource
}

// Client runs report queries against the Google Ads searchStream endpoint.
type Client struct {
	endpoint        string
	developerToken  string
	loginCustomerID string
	client          *http.Client
}

type searchRequest struct {
	Query string `json:"query"`
}

type streamBatch struct {
	Results   []map[string]any `json:"results"`
	FieldMask string           `json:"fieldMask"`
}

// NewClient validates cfg and builds a client. The supplied http client is
// copied, never modified; a nil client or zero timeout gets the default timeout.
func NewClient(cfg Config, client *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("ads api base url required")
	}
	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		return nil, errors.New("ads api version required")
	}
	customerID := normalizeCustomerID(cfg.CustomerID)
	if customerID == "" {
		return nil, errors.New("ads customer id required")
	}
	httpClient := &http.Client{}
	if client != nil {
		copied := *client
		httpClient = &copied
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = defaultTimeout
	}
	if cfg.TokenSource != nil {
		httpClient.Transport = &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, cfg.TokenSource),
			Base:   httpClient.Transport,
		}
	}
	return &Client{
		endpoint:        fmt.Sprintf("%s/%s/customers/%s/googleAds:searchStream", base, version, customerID),
		developerToken:  strings.TrimSpace(cfg.DeveloperToken),
		loginCustomerID: normalizeCustomerID(cfg.LoginCustomerID),
		client:          httpClient,
	}, nil
}

// Report submits the query and flattens the streamed rows in selection order.
func (c *Client) Report(ctx context.Context, query domain.ReportQuery) (domain.ReportResult, error) {
	body, err := json.Marshal(searchRequest{Query: query.String()})
	if err != nil {
		return domain.ReportResult{}, fmt.Errorf("marshal report request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ReportResult{}, fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.developerToken != "" {
		req.Header.Set("developer-token", c.developerToken)
	}
	if c.loginCustomerID != "" {
		req.Header.Set("login-customer-id", c.loginCustomerID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.ReportResult{}, fmt.Errorf("send report request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return domain.ReportResult{}, errorForStatus(resp)
	}

	var batches []streamBatch
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&batches); err != nil {
		return domain.ReportResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return flatten(query, batches), nil
}

func flatten(query domain.ReportQuery, batches []streamBatch) domain.ReportResult {
	columns := selectedFields(query.String())
	if len(columns) == 0 {
		for _, batch := range batches {
			if batch.FieldMask != "" {
				columns = strings.Split(batch.FieldMask, ",")
				break
			}
		}
	}
	result := domain.ReportResult{Columns: columns, Rows: [][]any{}}
	for _, batch := range batches {
		for _, item := range batch.Results {
			row := make([]any, len(columns))
			for i, field := range columns {
				row[i] = lookup(item, field)
			}
			result.Rows = append(result.Rows, row)
		}
	}
	return result
}

// selectedFields returns the field list between SELECT and FROM.
func selectedFields(query string) []string {
	upper := strings.ToUpper(query)
	start := strings.Index(upper, "SELECT ")
	end := strings.Index(upper, " FROM ")
	if start < 0 || end <= start {
		return nil
	}
	var fields []string
	for _, f := range strings.Split(query[start+len("SELECT "):end], ",") {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	return fields
}

// lookup resolves a dotted snake_case field against the camelCase JSON row.
func lookup(item map[string]any, field string) any {
	var current any = item
	for _, part := range strings.Split(strings.TrimSpace(field), ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = obj[lowerCamel(part)]
		if !ok {
			return nil
		}
	}
	return current
}

func lowerCamel(snake string) string {
	var b strings.Builder
	upperNext := false
	for _, r := range snake {
		if r == '_' {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func normalizeCustomerID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

func errorForStatus(resp *http.Response) error {
	limited := io.LimitReader(resp.Body, maxErrorBodySize)
	buf, _ := io.ReadAll(limited)
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, summary)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidQuery, summary)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, summary)
	default:
		return fmt.Errorf("report request failed: %s", summary)
	}
}
