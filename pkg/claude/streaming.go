package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rubenduburck/rgpt/pkg/types"
)

type StreamingEventType string

const (
	PingType              StreamingEventType = "ping"
	MessageStartType      StreamingEventType = "message_start"
	ContentBlockStartType StreamingEventType = "content_block_start"
	ContentBlockDeltaType StreamingEventType = "content_block_delta"
	ContentBlockStopType  StreamingEventType = "content_block_stop"
	MessageDeltaType      StreamingEventType = "message_delta"
	MessageStopType       StreamingEventType = "message_stop"
	ErrorType             StreamingEventType = "error"
)

type StreamingDeltaType string

const (
	TextDeltaType StreamingDeltaType = "text_delta"
)

// StreamingEvent is one parsed SSE event from the Messages API.
type StreamingEvent struct {
	Type         StreamingEventType `json:"type"`
	Message      *MessageResponse   `json:"message,omitempty"`
	Delta        *Delta             `json:"delta,omitempty"`
	Error        *ErrorDetail       `json:"error,omitempty"`
	Index        int                `json:"index,omitempty"`
	Usage        *Usage             `json:"usage,omitempty"`
	ContentBlock *StreamContent     `json:"content_block,omitempty"`
}

type StreamContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Delta struct {
	Type         StreamingDeltaType `json:"type"`
	Text         string             `json:"text,omitempty"`
	StopReason   string             `json:"stop_reason,omitempty"`
	StopSequence string             `json:"stop_sequence,omitempty"`
}

func (s StreamingEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(s.Type))
	if s.Index != 0 {
		e.Int("index", s.Index)
	}
	if s.Delta != nil {
		e.Str("delta_type", string(s.Delta.Type)).Int("delta_length", len(s.Delta.Text))
	}
	if s.ContentBlock != nil {
		e.Str("content_block_type", s.ContentBlock.Type)
	}
	if s.Error != nil {
		e.Str("error_type", s.Error.Type).Str("error_message", s.Error.Message)
	}
}

var _ zerolog.LogObjectMarshaler = StreamingEvent{}

// TextEvent translates a wire event into the facade's uniform taxonomy.
// Ping and error events map to a null event; callers that care about errors
// inspect the wire event first.
func (s StreamingEvent) TextEvent() types.TextEvent {
	switch s.Type {
	case MessageStartType:
		event := types.TextEvent{Type: types.TextEventMessageStart}
		if s.Message != nil {
			event.Message = &types.MessageStart{
				ID:           s.Message.ID,
				Role:         s.Message.Role,
				Model:        s.Message.Model,
				Content:      contentBlocks(s.Message.Content),
				StopReason:   types.StopReason(s.Message.StopReason),
				StopSequence: s.Message.StopSequence,
				Usage:        types.Usage(s.Message.Usage),
			}
		}
		return event
	case ContentBlockStartType:
		event := types.TextEvent{Type: types.TextEventContentBlockStart, Index: s.Index}
		if s.ContentBlock != nil {
			event.ContentBlock = &types.ContentBlock{Type: s.ContentBlock.Type, Text: s.ContentBlock.Text}
		}
		return event
	case ContentBlockDeltaType:
		event := types.TextEvent{Type: types.TextEventContentBlockDelta, Index: s.Index}
		if s.Delta != nil {
			event.Delta = &types.ContentDelta{Type: string(s.Delta.Type), Text: s.Delta.Text}
		}
		return event
	case ContentBlockStopType:
		return types.TextEvent{Type: types.TextEventContentBlockStop, Index: s.Index}
	case MessageDeltaType:
		event := types.TextEvent{Type: types.TextEventMessageDelta}
		if s.Delta != nil {
			event.MessageDelta = &types.MessageDelta{
				StopReason:   types.StopReason(s.Delta.StopReason),
				StopSequence: s.Delta.StopSequence,
			}
		}
		return event
	case MessageStopType:
		return types.TextEvent{Type: types.TextEventMessageStop}
	default:
		return types.TextEvent{Type: types.TextEventNull}
	}
}

// streamEvents reads the SSE body line by line, accumulating lines until an
// empty line terminates an event, and sends each parsed event. It owns the
// response body.
func streamEvents(ctx context.Context, resp *http.Response, events chan<- StreamingEvent) {
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	reader := bufio.NewReader(resp.Body)
	var eventLines [][]byte
	eventCount := 0
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Error().Err(err).Msg("unexpected error reading streaming response")
			}
			log.Debug().Int("total_events", eventCount).Msg("streaming reader finished")
			return
		}
		if len(bytes.TrimSpace(line)) != 0 {
			eventLines = append(eventLines, line)
			continue
		}

		// Empty line terminates the current event.
		var event StreamingEvent
		if parseErr := parseSSEEvent(eventLines, &event); parseErr != nil {
			log.Debug().Err(parseErr).Msg("failed to parse SSE event")
			eventLines = eventLines[:0]
			continue
		}
		eventLines = eventLines[:0]
		eventCount++
		log.Trace().Object("event", event).Int("event_number", eventCount).Msg("parsed streaming event")

		select {
		case events <- event:
		case <-ctx.Done():
			log.Debug().Msg("context cancelled, stopping streaming")
			return
		}
	}
}

// parseSSEEvent parses an SSE event from its accumulated lines.
func parseSSEEvent(lines [][]byte, event *StreamingEvent) error {
	eventData := ""
	for _, line := range lines {
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))

		parts := bytes.SplitN(line, []byte(": "), 2)
		if len(parts) != 2 {
			continue
		}

		field, value := parts[0], parts[1]
		if string(field) == "data" {
			eventData += string(value) + "\n"
		}
	}
	eventData = strings.TrimSuffix(eventData, "\n")

	return json.Unmarshal([]byte(eventData), event)
}
