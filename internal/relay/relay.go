package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"MatrixConnectionRelay/internal/middleware"
)

/*
RELAY

One inbound POST -> one outbound POST -> answer copied back.

- the inbound body is forwarded byte for byte
- Content-Type towards the upstream is always application/json
- the upstream's status and body come back untouched
- transport failure -> 502 with a plain text body, no retry
*/

const (
	ContentTypeJSON = "application/json"
	badGatewayText  = "upstream unavailable"
)

// PayloadLog receives both sides of every relay. Implementations must not block
// and must swallow their own failures.
type PayloadLog interface {
	Received(requestID string, payload []byte)
	Upstream(requestID string, payload []byte)
}

// Recorder counts relay outcomes.
type Recorder interface {
	RecordForwarded()
	RecordFailed()
}

// Response is the upstream's answer as received.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type Relay struct {
	upstreamURL string
	httpClient  *http.Client
	timeout     time.Duration
	payloads    PayloadLog
	recorder    Recorder
	log         zerolog.Logger
}

type Option func(*Relay)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) {
		r.httpClient = c
	}
}

// WithTimeout bounds each upstream call. Zero leaves the call bounded only by
// the inbound request's context.
func WithTimeout(d time.Duration) Option {
	return func(r *Relay) {
		r.timeout = d
	}
}

func WithPayloadLog(l PayloadLog) Option {
	return func(r *Relay) {
		r.payloads = l
	}
}

func WithRecorder(rec Recorder) Option {
	return func(r *Relay) {
		r.recorder = rec
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Relay) {
		r.log = log
	}
}

// New creates a Relay that forwards to upstreamURL.
func New(upstreamURL string, opts ...Option) (*Relay, error) {
	upstreamURL = strings.TrimSpace(upstreamURL)
	u, err := url.Parse(upstreamURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("relay: invalid upstream URL %q", upstreamURL)
	}

	r := &Relay{
		upstreamURL: upstreamURL,
		httpClient:  &http.Client{},
		payloads:    nopPayloadLog{},
		recorder:    nopRecorder{},
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{}
	}
	return r, nil
}

// UpstreamURL returns the fixed forward target.
func (r *Relay) UpstreamURL() string {
	return r.upstreamURL
}

// Forward posts body to the upstream and returns its full answer.
// Any non-nil error is an *UpstreamError.
func (r *Relay) Forward(ctx context.Context, requestID string, body []byte) (*Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.upstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{URL: r.upstreamURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", ContentTypeJSON)
	if requestID != "" {
		req.Header.Set(middleware.RequestIDHeader, requestID)
	}

	res, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: r.upstreamURL, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	buf, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &UpstreamError{URL: r.upstreamURL, Err: fmt.Errorf("read response body: %w", err)}
	}

	return &Response{
		StatusCode:  res.StatusCode,
		ContentType: res.Header.Get("Content-Type"),
		Body:        buf,
	}, nil
}

// ServeHTTP relays the request body and writes the upstream answer back.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	requestID := middleware.RequestIDFromContext(req.Context())

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	r.payloads.Received(requestID, body)

	res, err := r.Forward(req.Context(), requestID, body)
	if err != nil {
		r.payloads.Upstream(requestID, nil)
		r.recorder.RecordFailed()

		ev := r.log.Warn()
		if errors.Is(err, context.Canceled) {
			ev = r.log.Debug()
		}
		ev.Err(err).Str("request_id", requestID).Msg("relay forward failed")

		http.Error(w, badGatewayText, http.StatusBadGateway)
		return
	}

	r.payloads.Upstream(requestID, res.Body)
	r.recorder.RecordForwarded()

	r.log.Debug().
		Str("request_id", requestID).
		Int("upstream_status", res.StatusCode).
		Int("bytes", len(res.Body)).
		Msg("relayed")

	contentType := res.ContentType
	if contentType == "" {
		contentType = ContentTypeJSON
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}

type nopPayloadLog struct{}

func (nopPayloadLog) Received(string, []byte) {}
func (nopPayloadLog) Upstream(string, []byte) {}

type nopRecorder struct{}

func (nopRecorder) RecordForwarded() {}
func (nopRecorder) RecordFailed()    {}
