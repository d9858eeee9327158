package claude

import (
	"github.com/Rubenduburck/rgpt/pkg/types"
)

const DefaultModel = "claude-3-5-sonnet-20240620"

// MessageRequest is the Messages API request payload.
type MessageRequest struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	MaxTokens     int       `json:"max_tokens"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Stream        bool      `json:"stream"`
	System        string    `json:"system,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
}

// Message is a single message in the conversation.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content is a single block of message content.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// MessageResponse is the Messages API response payload.
type MessageResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Role         string    `json:"role"`
	Content      []Content `json:"content"`
	Model        string    `json:"model"`
	StopReason   string    `json:"stop_reason,omitempty"`
	StopSequence string    `json:"stop_sequence,omitempty"`
	Usage        Usage     `json:"usage"`
}

// Usage carries billing and rate-limit information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ErrorResponse is the API's error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewMessageRequest translates a provider-agnostic request into the Messages
// API wire format. System messages must already have been extracted into
// request.System.
func NewMessageRequest(request types.Request) *MessageRequest {
	model := request.Model
	if model == "" {
		model = DefaultModel
	}
	messages := make([]Message, 0, len(request.Messages))
	for _, msg := range request.Messages {
		messages = append(messages, Message{
			Role:    string(msg.Role),
			Content: []Content{NewTextContent(msg.Content)},
		})
	}
	return &MessageRequest{
		Model:         model,
		Messages:      messages,
		MaxTokens:     request.MaxTokens,
		StopSequences: request.StopSequences,
		Stream:        request.Stream,
		System:        request.System,
		Temperature:   request.Temperature,
	}
}

// TextEvents republishes a blocking response as the same event sequence a
// streamed reply would have produced, so consumers only deal with one
// taxonomy.
func (r *MessageResponse) TextEvents() []types.TextEvent {
	events := []types.TextEvent{
		{
			Type: types.TextEventMessageStart,
			Message: &types.MessageStart{
				ID:           r.ID,
				Role:         r.Role,
				Model:        r.Model,
				Content:      contentBlocks(r.Content),
				StopReason:   types.StopReason(r.StopReason),
				StopSequence: r.StopSequence,
				Usage:        types.Usage(r.Usage),
			},
		},
	}
	for i, content := range r.Content {
		block := types.ContentBlock{Type: content.Type, Text: content.Text}
		events = append(events, types.TextEvent{
			Type:         types.TextEventContentBlockStart,
			Index:        i,
			ContentBlock: &block,
		})
	}
	events = append(events, types.TextEvent{Type: types.TextEventMessageStop})
	return events
}

func contentBlocks(content []Content) []types.ContentBlock {
	blocks := make([]types.ContentBlock, 0, len(content))
	for _, c := range content {
		blocks = append(blocks, types.ContentBlock{Type: c.Type, Text: c.Text})
	}
	return blocks
}
