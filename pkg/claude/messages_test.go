package claude

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rubenduburck/rgpt/pkg/types"
)

func TestNewMessageRequestDefaultsModel(t *testing.T) {
	req := NewMessageRequest(types.NewRequestBuilder().
		Messages([]types.Message{types.NewUserMessage("hi")}).
		Build())

	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, types.DefaultMaxTokens, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, []Content{NewTextContent("hi")}, req.Messages[0].Content)
}

func TestNewMessageRequestExtractsSystem(t *testing.T) {
	req := NewMessageRequest(types.NewRequestBuilder().
		Messages([]types.Message{
			{Role: types.RoleSystem, Content: "be terse"},
			types.NewUserMessage("hi"),
		}).
		Model("claude-3-haiku-20240307").
		Build())

	assert.Equal(t, "claude-3-haiku-20240307", req.Model)
	assert.Equal(t, "be terse", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
}

func TestTextEventsRepublishBlockingResponse(t *testing.T) {
	resp := &MessageResponse{
		ID:   "msg_1",
		Role: "assistant",
		Content: []Content{
			NewTextContent("first block"),
			NewTextContent("second block"),
		},
		StopReason: "end_turn",
	}

	events := resp.TextEvents()
	require.Len(t, events, 4)

	assert.Equal(t, types.TextEventMessageStart, events[0].Type)
	require.NotNil(t, events[0].Message)
	assert.Equal(t, "msg_1", events[0].Message.ID)

	text, ok := events[1].Text()
	require.True(t, ok)
	assert.Equal(t, "first block", text)
	assert.Equal(t, 1, events[2].Index)

	assert.True(t, events[3].IsStop())
}
