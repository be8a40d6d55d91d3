package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"studydeck/cmd/internal/auth/credstore"
)

// DialStream opens a WebSocket to path under the same egress contract as Request:
// the bearer credential and request id are attached, and a rejected handshake
// becomes a *Failure that observers see.
func (c *Client) DialStream(ctx context.Context, path string, opts ...RequestOption) (*websocket.Conn, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	u, err := c.resolve(path, ro.query)
	if err != nil {
		return nil, &Failure{Kind: KindValidation, Method: http.MethodGet, Path: path, Code: "invalid_path", Err: err}
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	h := make(http.Header)
	for k, vs := range ro.header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	h.Set("User-Agent", c.userAgent)
	requestID := c.newID()
	h.Set(HeaderRequestID, requestID)

	var credential string
	if !ro.noCredential {
		if tok, ok := c.creds.Get(credstore.KindAccess); ok {
			credential = tok
			h.Set("Authorization", "Bearer "+tok)
		}
	}

	ex := Exchange{
		Method:     http.MethodGet,
		Path:       path,
		RequestID:  requestID,
		Credential: credential,
	}

	// websocket.Dial refuses clients with a Timeout; reuse only the transport.
	hc := &http.Client{Transport: c.hc.Transport}

	start := time.Now()
	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: hc,
		HTTPHeader: h,
	})
	ex.Duration = time.Since(start)
	if resp != nil {
		ex.Status = resp.StatusCode
	}

	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols && resp.StatusCode >= 300 {
			var body []byte
			if resp.Body != nil {
				body, _ = io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
				_ = resp.Body.Close()
			}
			f := newStatusFailure(http.MethodGet, path, resp.StatusCode, body)
			f.Err = err
			ex.Failure = f
		} else {
			ex.Failure = &Failure{Kind: KindTransport, Status: ex.Status, Method: http.MethodGet, Path: path, Code: transportCode(ctx, err), Err: err}
		}
		c.finish(ctx, ex)
		return nil, ex.Failure
	}

	c.finish(ctx, ex)
	return conn, nil
}
