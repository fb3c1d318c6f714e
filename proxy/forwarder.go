package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/moddyapp/signproxy/requestid"
	"github.com/moddyapp/signproxy/signing"
)

const (
	// DefaultTimeout bounds one backend call when Config.Timeout is zero.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 10 << 20
)

// Recorder observes forwarded calls. outcome is the backend status code
// or "error".
type Recorder interface {
	RecordForward(outcome string, elapsed time.Duration)
}

// Config configures a Forwarder.
type Config struct {
	// BackendURL is the absolute base URL, e.g. https://api.moddy.app.
	BackendURL string

	// Signer signs each forwarded call. Required.
	Signer *signing.Signer

	// Client sends the backend calls. Defaults to a client with Timeout.
	Client *http.Client

	// Timeout applies when Client is nil.
	Timeout time.Duration

	// IDs generates request ids. Defaults to requestid.Default.
	IDs requestid.Generator

	Recorder Recorder
	Logger   *zerolog.Logger
}

// Response is the backend answer relayed to the browser.
type Response struct {
	Status    int
	Body      json.RawMessage
	RequestID string
}

// Forwarder signs and forwards calls to the backend. It is safe for
// concurrent use.
type Forwarder struct {
	base     *url.URL
	client   *http.Client
	signer   *signing.Signer
	ids      requestid.Generator
	recorder Recorder
	logger   zerolog.Logger
}

// NewForwarder validates cfg and returns a Forwarder.
func NewForwarder(cfg Config) (*Forwarder, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BackendURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackendURL, cfg.BackendURL)
	}

	if cfg.Signer == nil {
		return nil, ErrNoSigner
	}

	f := &Forwarder{
		base:     base,
		client:   cfg.Client,
		signer:   cfg.Signer,
		ids:      cfg.IDs,
		recorder: cfg.Recorder,
		logger:   zerolog.Nop(),
	}

	if f.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		f.client = &http.Client{Timeout: timeout}
	}

	if f.ids == nil {
		f.ids = requestid.Default
	}

	if cfg.Logger != nil {
		f.logger = *cfg.Logger
	}

	return f, nil
}

// BackendURL returns the backend base URL.
func (f *Forwarder) BackendURL() string {
	return f.base.String()
}

// Forward signs body under a fresh request id and POSTs it to
// ${backend}${endpoint}. An empty body is sent as {}.
func (f *Forwarder) Forward(ctx context.Context, endpoint string, body json.RawMessage) (*Response, error) {
	target, err := f.resolve(endpoint)
	if err != nil {
		return nil, err
	}

	payload, err := compactBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}

	id, err := signing.SignRequest(req, f.signer, f.ids)
	if err != nil {
		return nil, fmt.Errorf("proxy: sign request: %w", err)
	}

	log := f.logger.With().Str("request_id", id).Str("endpoint", endpoint).Logger()

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.record("error", start)
		log.Error().Err(err).Msg("backend call failed")
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		f.record("error", start)
		log.Error().Err(err).Msg("reading backend response failed")
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	f.record(strconv.Itoa(resp.StatusCode), start)

	if !json.Valid(data) {
		log.Error().Int("status", resp.StatusCode).Msg("backend response is not JSON")
		return nil, ErrBadGateway
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("forwarded")

	return &Response{
		Status:    resp.StatusCode,
		Body:      data,
		RequestID: id,
	}, nil
}

// resolve joins endpoint onto the backend base, refusing anything that
// would leave the backend host.
func (f *Forwarder) resolve(endpoint string) (string, error) {
	if endpoint == "" {
		return "", ErrEndpointRequired
	}

	if !strings.HasPrefix(endpoint, "/") || strings.HasPrefix(endpoint, "//") || strings.ContainsAny(endpoint, "\\\r\n") {
		return "", ErrInvalidEndpoint
	}

	target := f.base.String() + endpoint

	u, err := url.Parse(target)
	if err != nil || u.Scheme != f.base.Scheme || u.Host != f.base.Host || u.User != nil {
		return "", ErrInvalidEndpoint
	}

	return target, nil
}

func (f *Forwarder) record(outcome string, start time.Time) {
	if f.recorder != nil {
		f.recorder.RecordForward(outcome, time.Since(start))
	}
}

func compactBody(body json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return nil, fmt.Errorf("%w: body is not JSON", ErrValidation)
	}

	return buf.Bytes(), nil
}
