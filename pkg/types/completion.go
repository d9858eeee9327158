package types

import "github.com/rs/zerolog"

// Request is the provider-agnostic shape of a completion request. The
// provider layer translates it into its own wire format.
type Request struct {
	Messages      []Message
	Model         string
	MaxTokens     int
	StopSequences []string
	Stream        bool
	System        string
	Temperature   *float64
}

const DefaultMaxTokens = 1024

type RequestBuilder struct {
	request Request
}

func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{
		request: Request{
			MaxTokens: DefaultMaxTokens,
		},
	}
}

func (b *RequestBuilder) Messages(messages []Message) *RequestBuilder {
	b.request.Messages = append(b.request.Messages, messages...)
	return b
}

func (b *RequestBuilder) Model(model string) *RequestBuilder {
	b.request.Model = model
	return b
}

func (b *RequestBuilder) MaxTokens(maxTokens int) *RequestBuilder {
	if maxTokens > 0 {
		b.request.MaxTokens = maxTokens
	}
	return b
}

func (b *RequestBuilder) StopSequences(stopSequences []string) *RequestBuilder {
	b.request.StopSequences = stopSequences
	return b
}

func (b *RequestBuilder) Stream(stream bool) *RequestBuilder {
	b.request.Stream = stream
	return b
}

func (b *RequestBuilder) System(system string) *RequestBuilder {
	b.request.System = system
	return b
}

func (b *RequestBuilder) Temperature(temperature *float64) *RequestBuilder {
	b.request.Temperature = temperature
	return b
}

// Build extracts any system messages into the request's System field so that
// callers can pass a raw message list without worrying about the messages API
// rejecting system roles.
func (b *RequestBuilder) Build() Request {
	request := b.request
	messages := make([]Message, 0, len(request.Messages))
	for _, msg := range request.Messages {
		if msg.Role == RoleSystem {
			if request.System == "" {
				request.System = msg.Content
			}
			continue
		}
		messages = append(messages, msg)
	}
	request.Messages = messages
	return request
}

type StopReason string

const (
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonEndTurn      StopReason = "end_turn"
)

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ContentBlock is a completed block of assistant output. Only text blocks
// exist in this program.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextContent returns the block's text, and false when the block carries no
// text payload.
func (cb ContentBlock) TextContent() (string, bool) {
	if cb.Type != "" && cb.Type != "text" {
		return "", false
	}
	return cb.Text, true
}

// ContentDelta is an incremental extension of a content block.
type ContentDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (cd ContentDelta) TextContent() (string, bool) {
	if cd.Type != "" && cd.Type != "text_delta" {
		return "", false
	}
	return cd.Text, true
}

// MessageStart carries the message envelope that opens a reply.
type MessageStart struct {
	ID           string         `json:"id"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   StopReason     `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

type MessageDelta struct {
	StopReason   StopReason `json:"stop_reason,omitempty"`
	StopSequence string     `json:"stop_sequence,omitempty"`
}

type TextEventType string

const (
	TextEventNull              TextEventType = ""
	TextEventMessageStart      TextEventType = "message_start"
	TextEventContentBlockStart TextEventType = "content_block_start"
	TextEventContentBlockDelta TextEventType = "content_block_delta"
	TextEventContentBlockStop  TextEventType = "content_block_stop"
	TextEventMessageDelta      TextEventType = "message_delta"
	TextEventMessageStop       TextEventType = "message_stop"
)

// TextEvent is the uniform event taxonomy published by the assistant facade,
// independent of whether the underlying request was streamed or blocking.
type TextEvent struct {
	Type         TextEventType `json:"type"`
	Message      *MessageStart `json:"message,omitempty"`
	Index        int           `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *ContentDelta `json:"delta,omitempty"`
	MessageDelta *MessageDelta `json:"message_delta,omitempty"`
}

// Text returns the text payload of block start and delta events. Block stop
// events yield a newline, matching the line-per-block output convention.
func (e TextEvent) Text() (string, bool) {
	switch e.Type {
	case TextEventContentBlockStart:
		if e.ContentBlock == nil {
			return "", false
		}
		return e.ContentBlock.TextContent()
	case TextEventContentBlockDelta:
		if e.Delta == nil {
			return "", false
		}
		return e.Delta.TextContent()
	case TextEventContentBlockStop:
		return "\n", true
	default:
		return "", false
	}
}

// IsStop reports whether the event terminates the reply.
func (e TextEvent) IsStop() bool {
	return e.Type == TextEventMessageStop
}

func (e TextEvent) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type))
	if e.Index != 0 {
		ev.Int("index", e.Index)
	}
	if text, ok := e.Text(); ok {
		ev.Int("text_length", len(text))
	}
	if e.Message != nil {
		ev.Str("message_id", e.Message.ID)
		ev.Str("model", e.Message.Model)
	}
}

var _ zerolog.LogObjectMarshaler = TextEvent{}
