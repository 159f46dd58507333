package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"zia_backend/internal/interfaces"
)

const graphAPIBase = "https://graph.facebook.com/v18.0"

// MetaGraphClient talks to the Meta Graph API: comment replies and page DMs.
type MetaGraphClient struct {
	pageToken string
	httpc     *http.Client
	base      string
}

func NewMetaGraphClient(pageToken string) *MetaGraphClient {
	return &MetaGraphClient{
		pageToken: pageToken,
		httpc:     &http.Client{Timeout: 15 * time.Second},
		base:      graphAPIBase,
	}
}

// ReplyToComment posts a reply under a page comment.
func (m *MetaGraphClient) ReplyToComment(ctx context.Context, commentID, content string) error {
	url := fmt.Sprintf("%s/%s/comments", m.base, commentID)
	return m.post(ctx, url, map[string]interface{}{
		"message": content,
	})
}

// SendMessage sends a DM to a PSID via the page inbox.
func (m *MetaGraphClient) SendMessage(ctx context.Context, to, content string) error {
	url := fmt.Sprintf("%s/me/messages", m.base)
	return m.post(ctx, url, map[string]interface{}{
		"recipient": map[string]string{"id": to},
		"message":   map[string]string{"text": content},
	})
}

func (m *MetaGraphClient) post(ctx context.Context, url string, payload map[string]interface{}) error {
	data, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.pageToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph api %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

var (
	_ interfaces.Messenger      = (*MetaGraphClient)(nil)
	_ interfaces.CommentReplier = (*MetaGraphClient)(nil)
)
