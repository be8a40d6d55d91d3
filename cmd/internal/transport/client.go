package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studydeck/cmd/identity/ids"
	"studydeck/cmd/internal/auth/credstore"
	"studydeck/cmd/security/token"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 8 << 20
	defaultUserAgent        = "studydeck/1.0"

	// HeaderRequestID carries the per-request ULID.
	HeaderRequestID = "X-Request-ID"
)

// ErrAbsoluteURL is returned for request paths that name a scheme or host.
// Credentials are only ever sent to the configured base URL.
var ErrAbsoluteURL = errors.New("transport: path must be relative to the base URL")

// Config is the static client configuration.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	UserAgent        string
	MaxResponseBytes int64
}

// CredentialSource is read on every request.
type CredentialSource interface {
	Get(kind credstore.Kind) (string, bool)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithObservers appends exchange observers, called in the given order.
func WithObservers(obs ...Observer) Option {
	return func(c *Client) {
		for _, o := range obs {
			if o != nil {
				c.observers = append(c.observers, o)
			}
		}
	}
}

// WithLogger sets the client logger. nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRequestIDFunc overrides request id generation.
func WithRequestIDFunc(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// Client issues all backend calls.
type Client struct {
	base      *url.URL
	hc        *http.Client
	creds     CredentialSource
	observers []Observer
	log       *slog.Logger

	userAgent string
	maxBody   int64
	newID     func() string
}

// New builds a Client. creds must not be nil.
func New(cfg Config, creds CredentialSource, opts ...Option) (*Client, error) {
	if creds == nil {
		return nil, errors.New("transport: credential source is required")
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("transport: base url must be http or https, got %q", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("transport: base url has no host: %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	c := &Client{
		base:      base,
		hc:        &http.Client{Timeout: cfg.Timeout},
		creds:     creds,
		log:       slog.Default(),
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxResponseBytes,
		newID:     ids.NewRequestID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.base.String() }

type requestOptions struct {
	noCredential bool
	header       http.Header
	query        url.Values
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

// WithoutCredential sends the request without an Authorization header even when
// a credential is stored. Used for the login, register and refresh endpoints.
func WithoutCredential() RequestOption {
	return func(o *requestOptions) { o.noCredential = true }
}

// WithHeader sets an extra request header. Authorization cannot be set this way.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if http.CanonicalHeaderKey(key) == "Authorization" {
			return
		}
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Set(key, value)
	}
}

// WithQuery adds query parameters.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) { o.query = q }
}

// resolve joins path onto the base URL, keeping any trailing slash.
func (c *Client) resolve(path string, q url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, ErrAbsoluteURL
	}

	u := *c.base
	u.Path = strings.TrimSuffix(c.base.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
	u.RawPath = ""
	values := ref.Query()
	for k, vs := range q {
		for _, v := range vs {
			values.Add(k, v)
		}
	}
	u.RawQuery = values.Encode()
	u.Fragment = ""
	return &u, nil
}

// Request performs one call. body may be nil.
//
// A 2xx returns a *Response. Anything else returns a *Failure; the response, if
// any, is never returned alongside it.
func (c *Client) Request(ctx context.Context, method, path string, body Body, opts ...RequestOption) (*Response, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	u, err := c.resolve(path, ro.query)
	if err != nil {
		return nil, &Failure{Kind: KindValidation, Method: method, Path: path, Code: "invalid_path", Err: err}
	}

	var (
		rc          io.ReadCloser
		contentType string
	)
	if body != nil {
		rc, contentType, err = body.open()
		if err != nil {
			return nil, &Failure{Kind: KindValidation, Method: method, Path: path, Code: "invalid_body", Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rc)
	if err != nil {
		if rc != nil {
			_ = rc.Close()
		}
		return nil, &Failure{Kind: KindValidation, Method: method, Path: path, Code: "invalid_request", Err: err}
	}

	for k, vs := range ro.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	requestID := c.newID()
	req.Header.Set(HeaderRequestID, requestID)

	// The store is read here, per request, so a Set or Clear that completed
	// before this call is always observed.
	var credential string
	if !ro.noCredential {
		if tok, ok := c.creds.Get(credstore.KindAccess); ok {
			credential = tok
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	ex := Exchange{
		Method:     method,
		Path:       path,
		RequestID:  requestID,
		Credential: credential,
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		ex.Duration = time.Since(start)
		ex.Failure = &Failure{Kind: KindTransport, Method: method, Path: path, Code: transportCode(ctx, err), Err: err}
		c.finish(ctx, ex)
		return nil, ex.Failure
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	ex.Duration = time.Since(start)
	ex.Status = resp.StatusCode
	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// The status decides the kind; an oversized or broken body only loses the payload.
		if err != nil || int64(len(data)) > c.maxBody {
			data = nil
		}
		ex.Failure = newStatusFailure(method, path, resp.StatusCode, data)
	case err != nil:
		ex.Failure = &Failure{Kind: KindTransport, Status: resp.StatusCode, Method: method, Path: path, Code: transportCode(ctx, err), Err: err}
	case int64(len(data)) > c.maxBody:
		ex.Failure = &Failure{Kind: KindServer, Status: resp.StatusCode, Method: method, Path: path, Code: "response_too_large",
			Message: fmt.Sprintf("response exceeds %d bytes", c.maxBody)}
	}

	c.finish(ctx, ex)
	if ex.Failure != nil {
		return nil, ex.Failure
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
		method: method,
		path:   path,
	}, nil
}

func (c *Client) finish(ctx context.Context, ex Exchange) {
	attrs := []any{
		"method", ex.Method,
		"path", ex.Path,
		"status", ex.Status,
		"duration_ms", ex.Duration.Milliseconds(),
		"request_id", ex.RequestID,
		"authenticated", ex.Credential != "",
	}
	if ex.Credential != "" {
		attrs = append(attrs, "token_fp", token.Fingerprint(ex.Credential))
	}

	if ex.Failure != nil {
		attrs = append(attrs, "kind", ex.Failure.Kind.String())
		if ex.Failure.Code != "" {
			attrs = append(attrs, "code", ex.Failure.Code)
		}
		if ex.Failure.Err != nil {
			attrs = append(attrs, "err", ex.Failure.Err)
		}
		c.log.WarnContext(ctx, "transport.request.fail", attrs...)
	} else {
		c.log.DebugContext(ctx, "transport.request", attrs...)
	}

	for _, o := range c.observers {
		o.ObserveExchange(ctx, ex)
	}
}

func transportCode(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return "timeout"
	}
	return "network"
}

// Get issues a GET.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil, opts...)
}

// PostJSON issues a POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, v any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, JSON(v), opts...)
}

// PostMultipart issues a POST with a multipart/form-data body.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, files []File, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, Multipart(fields, files...), opts...)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, opts...)
}

// BearerToken returns the bearer credential carried by r, or "".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
