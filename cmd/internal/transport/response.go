package transport

import (
	"encoding/json"
	"net/http"
)

// Response is a 2xx response with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	method string
	path   string
}

// Decode unmarshals the JSON body into dst.
// An empty or malformed body is a KindServer failure with code "malformed_response".
func (r *Response) Decode(dst any) error {
	if len(r.Body) == 0 {
		return &Failure{Kind: KindServer, Status: r.Status, Method: r.method, Path: r.path,
			Code: "malformed_response", Message: "empty response body"}
	}
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return &Failure{Kind: KindServer, Status: r.Status, Method: r.method, Path: r.path,
			Code: "malformed_response", Payload: r.Body, Err: err}
	}
	return nil
}
