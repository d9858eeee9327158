package assistant

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Rubenduburck/rgpt/pkg/claude"
	"github.com/Rubenduburck/rgpt/pkg/types"
)

// ErrNoAPIKey is returned at startup when no credentials could be resolved.
var ErrNoAPIKey = errors.New("no API key: set ANTHROPIC_API_KEY")

// Assistant converts message lists into provider requests and republishes
// the provider's replies as a uniform TextEvent stream.
type Assistant struct {
	config Config
	client *claude.Client
}

func New(config Config, options ...claude.ClientOption) (*Assistant, error) {
	if config.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return &Assistant{
		config: config,
		client: claude.NewClient(config.APIKey, options...),
	}, nil
}

func (a *Assistant) Mode() Mode {
	return a.config.Mode
}

// Streaming reports whether replies arrive as incremental deltas rather
// than a single republished response.
func (a *Assistant) Streaming() bool {
	return a.config.Stream
}

// InitMessages returns the configured seed messages for a new session.
func (a *Assistant) InitMessages() []types.Message {
	return append([]types.Message(nil), a.config.Messages...)
}

func (a *Assistant) buildRequest(messages []types.Message) types.Request {
	return types.NewRequestBuilder().
		Messages(messages).
		Model(a.config.Model).
		MaxTokens(a.config.MaxTokens).
		Temperature(a.config.Temperature).
		Stream(a.config.Stream).
		Build()
}

// HandleInput dispatches the messages to the provider on a background
// goroutine and republishes the reply onto events. The channel is not
// closed: a session reuses it across submissions. Every dispatch terminates
// with exactly one MessageStop event, even on failure, so consumers can rely
// on it as an end-of-reply marker.
func (a *Assistant) HandleInput(ctx context.Context, messages []types.Message, events chan<- types.TextEvent) {
	request := a.buildRequest(messages)
	requestID := uuid.New()
	log.Debug().
		Str("request_id", requestID.String()).
		Int("num_messages", len(request.Messages)).
		Bool("stream", request.Stream).
		Msg("dispatching assistant request")

	go func() {
		stopped := false
		send := func(event types.TextEvent) bool {
			select {
			case events <- event:
				if event.IsStop() {
					stopped = true
				}
				return true
			case <-ctx.Done():
				log.Debug().Str("request_id", requestID.String()).Msg("consumer gone, dropping stream")
				return false
			}
		}
		defer func() {
			if !stopped {
				send(types.TextEvent{Type: types.TextEventMessageStop})
			}
		}()

		if request.Stream {
			a.completeStream(ctx, request, requestID, send)
		} else {
			a.complete(ctx, request, requestID, send)
		}
	}()
}

func (a *Assistant) complete(ctx context.Context, request types.Request, requestID uuid.UUID, send func(types.TextEvent) bool) {
	response, err := a.client.SendMessage(ctx, claude.NewMessageRequest(request))
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID.String()).Msg("completion failed")
		return
	}
	log.Debug().
		Str("request_id", requestID.String()).
		Str("stop_reason", response.StopReason).
		Int("output_tokens", response.Usage.OutputTokens).
		Msg("completion finished")
	for _, event := range response.TextEvents() {
		if !send(event) {
			return
		}
	}
}

func (a *Assistant) completeStream(ctx context.Context, request types.Request, requestID uuid.UUID, send func(types.TextEvent) bool) {
	stream, err := a.client.StreamMessage(ctx, claude.NewMessageRequest(request))
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID.String()).Msg("could not open stream")
		return
	}
	for wireEvent := range stream {
		if wireEvent.Type == claude.ErrorType {
			log.Error().Object("event", wireEvent).Str("request_id", requestID.String()).Msg("stream error")
			return
		}
		event := wireEvent.TextEvent()
		if event.Type == types.TextEventNull {
			continue
		}
		if !send(event) {
			return
		}
	}
}
