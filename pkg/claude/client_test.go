package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rubenduburck/rgpt/pkg/types"
)

func testRequest() *MessageRequest {
	return NewMessageRequest(types.NewRequestBuilder().
		Messages([]types.Message{types.NewUserMessage("hello")}).
		Build())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(http.StatusTooManyRequests))
	assert.True(t, isRetryable(http.StatusInternalServerError))
	assert.True(t, isRetryable(http.StatusServiceUnavailable))
	assert.False(t, isRetryable(http.StatusBadRequest))
	assert.False(t, isRetryable(http.StatusUnauthorized))
	assert.False(t, isRetryable(http.StatusNotFound))
}

func TestBackoffDelayIsCapped(t *testing.T) {
	delay := backoffDelay(500*time.Millisecond, 20)
	assert.LessOrEqual(t, delay, maxBackoffDelay+maxBackoffDelay/2)
	assert.GreaterOrEqual(t, delay, maxBackoffDelay)
}

func TestSendMessageSetsHeaders(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		_ = json.NewEncoder(w).Encode(MessageResponse{ID: "msg_1", Role: "assistant"})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	resp, err := client.SendMessage(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "msg_1", resp.ID)

	assert.Equal(t, "test-key", gotHeaders.Get("x-api-key"))
	assert.Equal(t, defaultAPIVersion, gotHeaders.Get("anthropic-version"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
}

func TestSendMessageRetriesRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(ErrorResponse{
				Error: ErrorDetail{Type: "rate_limit_error", Message: "slow down"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(MessageResponse{
			ID:      "msg_1",
			Role:    "assistant",
			Content: []Content{NewTextContent("finally")},
		})
	}))
	defer server.Close()

	client := NewClient("test-key",
		WithBaseURL(server.URL),
		WithInitialDelay(time.Millisecond),
	)
	resp, err := client.SendMessage(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "finally", resp.Content[0].Text)
}

func TestSendMessageGivesUpAfterMaxRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("test-key",
		WithBaseURL(server.URL),
		WithInitialDelay(time.Millisecond),
		WithMaxRetries(2),
	)
	_, err := client.SendMessage(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrTooManyRetries.Error())
}

func TestSendMessageSurfacesPermanentErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorResponse{
			Error: ErrorDetail{Type: "invalid_request_error", Message: "bad payload"},
		})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.SendMessage(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "invalid_request_error")
	assert.Contains(t, err.Error(), "bad payload")
}

func TestStreamMessageDeliversEvents(t *testing.T) {
	body := "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"msg_1","role":"assistant"}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}` + "\n\n" +
		"event: ping\n" +
		`data: {"type":"ping"}` + "\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	stream, err := client.StreamMessage(context.Background(), testRequest())
	require.NoError(t, err)

	var eventTypes []StreamingEventType
	var text string
	for event := range stream {
		eventTypes = append(eventTypes, event.Type)
		if event.Delta != nil {
			text += event.Delta.Text
		}
	}

	assert.Equal(t, []StreamingEventType{
		MessageStartType,
		ContentBlockDeltaType,
		PingType,
		MessageStopType,
	}, eventTypes)
	assert.Equal(t, "Hi", text)
}

func TestStreamMessageStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"type":"ping"}` + "\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	stream, err := client.StreamMessage(ctx, testRequest())
	require.NoError(t, err)

	event := <-stream
	assert.Equal(t, PingType, event.Type)
	cancel()

	// The reader goroutine shuts down and closes the channel.
	for range stream {
	}
}
