package interfaces

import "context"

// ChatMessage is the role/content pair sent to the LLM.
type ChatMessage struct {
	Role    string
	Content string
}

// TokenStream yields incremental completion text. Recv returns io.EOF when
// the stream is exhausted.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// AIClient is the language-model black box: one blocking shape, one streaming.
type AIClient interface {
	Generate(ctx context.Context, msgs []ChatMessage) (string, error)
	Stream(ctx context.Context, msgs []ChatMessage) (TokenStream, error)
}

// Messenger sends a message on an outbound channel (Twilio, Meta DM).
// Calls are fire-and-forget from the caller's perspective.
type Messenger interface {
	SendMessage(ctx context.Context, to, content string) error
}

// CommentReplier replies to a social comment (Meta Graph).
type CommentReplier interface {
	ReplyToComment(ctx context.Context, commentID, content string) error
}

// CheckoutProvider creates a hosted payment session and returns its URL.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, priceID, mode, sessionID, tenantSlug string) (url string, err error)
}
