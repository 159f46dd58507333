package http

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zia_backend/internal/usecases"
)

func TestSSEWriterFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	require.NoError(t, err)

	sse.Ping()
	sse.Delta(0, "Ho")
	sse.Delta(1, "la")
	sse.UI(&usecases.UIHint{Chips: []string{"WhatsApp"}})
	sse.Done("sess_abc")

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: ping\ndata: {\"ok\":true}\n\n")
	assert.Contains(t, body, "event: delta\ndata: {\"content\":\"Ho\",\"i\":0}\n\n")
	assert.Contains(t, body, "event: delta\ndata: {\"content\":\"la\",\"i\":1}\n\n")
	assert.Contains(t, body, "event: ui\ndata: {\"chips\":[\"WhatsApp\"]}\n\n")
	assert.Contains(t, body, "event: done\ndata: {\"done\":true,\"sessionId\":\"sess_abc\"}\n\n")
}

func TestSSEWriterError(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	require.NoError(t, err)

	sse.Error("model unavailable")
	assert.Contains(t, rec.Body.String(), "event: error\ndata: {\"error\":\"model unavailable\"}\n\n")
}

func TestSSEWriterSkipsNilUI(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	require.NoError(t, err)

	sse.UI(nil)
	assert.Empty(t, rec.Body.String())
}
