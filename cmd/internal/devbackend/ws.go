package devbackend

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// handlePing echoes text frames back to an authenticated client until it closes.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Error("devbackend.ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(4096)

	for {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			cancel()
			return
		}
		err = conn.Write(ctx, typ, msg)
		cancel()
		if err != nil {
			return
		}
	}
}
