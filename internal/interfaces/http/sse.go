package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"zia_backend/internal/usecases"
)

// SSEWriter frames server-sent events onto a response writer, flushing after
// every frame so tokens reach the widget as they are generated. It implements
// usecases.Emitter.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the SSE response headers and returns a writer, or an
// error when the underlying writer can not flush.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// event writes one `event: name\ndata: payload\n\n` frame and flushes.
func (s *SSEWriter) event(name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	s.flusher.Flush()
}

// Ping tells the widget the stream is open before the first token arrives.
func (s *SSEWriter) Ping() {
	s.event("ping", map[string]bool{"ok": true})
}

func (s *SSEWriter) Delta(i int, content string) {
	s.event("delta", map[string]interface{}{"i": i, "content": content})
}

func (s *SSEWriter) UI(hint *usecases.UIHint) {
	if hint == nil {
		return
	}
	s.event("ui", hint)
}

func (s *SSEWriter) Done(sessionID string) {
	s.event("done", map[string]interface{}{"done": true, "sessionId": sessionID})
}

func (s *SSEWriter) Error(msg string) {
	s.event("error", map[string]string{"error": msg})
}

var _ usecases.Emitter = (*SSEWriter)(nil)
