package infrastructure

import (
	"context"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"zia_backend/internal/interfaces"
)

// OpenAIClient implements interfaces.AIClient against the chat completions
// API, in both blocking and streaming shapes.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func toOpenAI(msgs []interfaces.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *OpenAIClient) Generate(ctx context.Context, msgs []interfaces.ChatMessage) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAI(msgs),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, msgs []interfaces.ChatMessage) (interfaces.TokenStream, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAI(msgs),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	return &openaiTokenStream{stream: stream}, nil
}

type openaiTokenStream struct {
	stream *openai.ChatCompletionStream
}

// Recv skips empty delta chunks so callers only see real text.
func (s *openaiTokenStream) Recv() (string, error) {
	for {
		chunk, err := s.stream.Recv()
		if err != nil {
			return "", err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if piece := chunk.Choices[0].Delta.Content; piece != "" {
			return piece, nil
		}
	}
}

func (s *openaiTokenStream) Close() error {
	return s.stream.Close()
}

var _ interfaces.AIClient = (*OpenAIClient)(nil)

// MockAIClient echoes the last user message, used when USE_MOCK=true so the
// widget can be developed without an API key.
type MockAIClient struct{}

func NewMockAIClient() *MockAIClient {
	return &MockAIClient{}
}

func mockAnswer(msgs []interfaces.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return "(mock) Recibí: " + msgs[i].Content
		}
	}
	return "(mock) Recibí: "
}

func (m *MockAIClient) Generate(_ context.Context, msgs []interfaces.ChatMessage) (string, error) {
	return mockAnswer(msgs), nil
}

func (m *MockAIClient) Stream(_ context.Context, msgs []interfaces.ChatMessage) (interfaces.TokenStream, error) {
	return &mockTokenStream{runes: []rune(mockAnswer(msgs))}, nil
}

type mockTokenStream struct {
	runes []rune
	pos   int
}

// Recv yields the canned answer one character at a time, mirroring the token
// cadence of a real stream.
func (s *mockTokenStream) Recv() (string, error) {
	if s.pos >= len(s.runes) {
		return "", io.EOF
	}
	ch := string(s.runes[s.pos])
	s.pos++
	return ch, nil
}

func (s *mockTokenStream) Close() error { return nil }

var _ interfaces.AIClient = (*MockAIClient)(nil)
