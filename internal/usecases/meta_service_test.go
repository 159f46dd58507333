package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zia_backend/internal/infrastructure"
)

type countingReplier struct {
	calls []string
}

func (r *countingReplier) ReplyToComment(_ context.Context, commentID, _ string) error {
	r.calls = append(r.calls, commentID)
	return nil
}

type countingMessenger struct {
	calls []string
	last  string
}

func (m *countingMessenger) SendMessage(_ context.Context, to, content string) error {
	m.calls = append(m.calls, to)
	m.last = content
	return nil
}

func newTestMetaService() (*MetaService, *countingReplier, *countingMessenger) {
	chat, _ := newTestChatService(infrastructure.NewMockAIClient(), nil)
	replier := &countingReplier{}
	messenger := &countingMessenger{}
	svc := NewMetaService(
		nil, chat, replier, messenger,
		infrastructure.NewSeenCache(10*time.Minute, 100),
		infrastructure.NewSeenCache(10*time.Minute, 100),
		nil,
	)
	return svc, replier, messenger
}

func commentPayload(commentID string) MetaWebhookPayload {
	return MetaWebhookPayload{
		Object: "page",
		Entry: []MetaWebhookEntry{{
			ID: "page1",
			Changes: []MetaWebhookChange{{
				Field: "feed",
				Value: MetaWebhookChangeVal{
					Item:      "comment",
					Verb:      "add",
					CommentID: commentID,
					Message:   "precio?",
					From:      MetaUser{ID: "user9"},
				},
			}},
		}},
	}
}

func TestDuplicateCommentDeliveryRepliesOnce(t *testing.T) {
	svc, replier, _ := newTestMetaService()
	ctx := context.Background()

	svc.Process(ctx, commentPayload("c1"))
	svc.Process(ctx, commentPayload("c1")) // Meta retries the delivery

	assert.Equal(t, []string{"c1"}, replier.calls)

	svc.Process(ctx, commentPayload("c2"))
	assert.Equal(t, []string{"c1", "c2"}, replier.calls)
}

func TestSameCommentIDOnAnotherPageNotDeduped(t *testing.T) {
	svc, replier, _ := newTestMetaService()
	ctx := context.Background()

	svc.Process(ctx, commentPayload("c9"))

	other := commentPayload("c9")
	other.Entry[0].ID = "page2"
	svc.Process(ctx, other)

	assert.Equal(t, []string{"c9", "c9"}, replier.calls)
}

func TestOwnCommentIgnored(t *testing.T) {
	svc, replier, _ := newTestMetaService()

	payload := commentPayload("c3")
	payload.Entry[0].Changes[0].Value.From.ID = "page1"
	svc.Process(context.Background(), payload)

	assert.Empty(t, replier.calls)
}

func TestNonCommentChangeIgnored(t *testing.T) {
	svc, replier, _ := newTestMetaService()

	payload := commentPayload("c4")
	payload.Entry[0].Changes[0].Value.Item = "reaction"
	svc.Process(context.Background(), payload)

	assert.Empty(t, replier.calls)
}

func dmPayload(mid, text string) MetaWebhookPayload {
	return MetaWebhookPayload{
		Object: "page",
		Entry: []MetaWebhookEntry{{
			ID: "page1",
			Messaging: []MetaWebhookMessaging{{
				Sender:    MetaUser{ID: "psid42"},
				Recipient: MetaUser{ID: "page1"},
				Message:   MetaWebhookMessage{MID: mid, Text: text},
			}},
		}},
	}
}

func TestDMRunsChatPipelineAndRepliesOnce(t *testing.T) {
	svc, _, messenger := newTestMetaService()
	ctx := context.Background()

	svc.Process(ctx, dmPayload("m1", "hola"))
	require.Equal(t, []string{"psid42"}, messenger.calls)
	assert.Contains(t, messenger.last, "hola")

	// Duplicate mid: no second send.
	svc.Process(ctx, dmPayload("m1", "hola"))
	assert.Len(t, messenger.calls, 1)
}

func TestDMEchoIgnored(t *testing.T) {
	svc, _, messenger := newTestMetaService()

	payload := dmPayload("m2", "soy yo")
	payload.Entry[0].Messaging[0].Message.IsEcho = true
	svc.Process(context.Background(), payload)

	assert.Empty(t, messenger.calls)
}
