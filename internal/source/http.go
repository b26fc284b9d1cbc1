package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/roach88/ordersync/internal/event"
	"github.com/roach88/ordersync/internal/syncerr"
)

// StatusError is a non-2xx response from the events API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("events api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("events api: status %d: %s", e.StatusCode, e.Body)
}

// Retryable is false for 4xx responses other than 429.
func (e *StatusError) Retryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode < 400 || e.StatusCode >= 500
}

// HTTPSource reads the marketplace events API:
//
//	GET {base}/events?resourceId=<id>&startAfterSequenceId=<n>[&limit=<k>]
//	Authorization: Bearer <token>
//	200 {"data": [<raw record>, ...]}
//
// With a page size set, full pages are followed by requests starting after
// the last sequence id received.
type HTTPSource struct {
	base     *url.URL
	token    string
	client   *http.Client
	pageSize int
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.client = c
	}
}

// WithPageSize sets the limit query parameter. Zero disables paging.
func WithPageSize(n int) HTTPOption {
	return func(s *HTTPSource) {
		s.pageSize = n
	}
}

// NewHTTP creates an HTTPSource for baseURL.
func NewHTTP(baseURL, token string, opts ...HTTPOption) (*HTTPSource, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse events base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("events base url %q: scheme must be http or https", baseURL)
	}
	s := &HTTPSource{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type eventsResponse struct {
	Data []json.RawMessage `json:"data"`
}

// Fetch returns the records of entityID after afterSeq.
// Failures are EXTERNAL_IO errors wrapping the cause.
func (s *HTTPSource) Fetch(ctx context.Context, entityID string, afterSeq int64) ([]event.Raw, error) {
	var out []event.Raw
	cursor := afterSeq
	for {
		page, err := s.fetchPage(ctx, entityID, cursor)
		if err != nil {
			return nil, syncerr.ExternalIO(entityID, "fetch events", err)
		}
		out = append(out, page...)

		if s.pageSize <= 0 || len(page) < s.pageSize {
			return out, nil
		}
		next := cursor
		for _, r := range page {
			if seq, ok := r.Seq(); ok && seq > next {
				next = seq
			}
		}
		if next == cursor {
			return out, nil
		}
		cursor = next
	}
}

func (s *HTTPSource) fetchPage(ctx context.Context, entityID string, after int64) ([]event.Raw, error) {
	u := s.base.JoinPath("events")
	q := u.Query()
	q.Set("resourceId", entityID)
	q.Set("startAfterSequenceId", strconv.FormatInt(after, 10))
	if s.pageSize > 0 {
		q.Set("limit", strconv.Itoa(s.pageSize))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode events response: %w", err)
	}
	out := make([]event.Raw, 0, len(payload.Data))
	for _, rec := range payload.Data {
		out = append(out, decodeRecord(rec))
	}
	return out, nil
}
