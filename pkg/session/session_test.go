package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rubenduburck/rgpt/pkg/types"
)

func typeText(layout *SessionLayout, text string) {
	for _, input := range InputsFromString(text) {
		layout.Input(input)
	}
}

func deltaEvent(text string) types.TextEvent {
	return types.TextEvent{
		Type:  types.TextEventContentBlockDelta,
		Delta: &types.ContentDelta{Type: "text_delta", Text: text},
	}
}

func TestNewSessionLayoutSeedsEmptyTip(t *testing.T) {
	layout, err := NewSessionLayout(nil, 80)
	require.NoError(t, err)

	assert.Equal(t, AreaUser, layout.ActiveArea())
	node := layout.Tree().Get(layout.CurrentNode())
	require.NotNil(t, node)
	assert.True(t, node.UserArea.IsEmpty())
	assert.True(t, node.UserArea.IsActive())
}

func TestNewSessionLayoutSeedsModeMessages(t *testing.T) {
	layout, err := NewSessionLayout([]types.Message{
		{Role: types.RoleSystem, Content: "be brief"},
		{Role: types.RoleUser, Content: "hello"},
		{Role: types.RoleAssistant, Content: "hi"},
	}, 80)
	require.NoError(t, err)

	msg, ok := layout.Tree().SystemArea().Message()
	require.True(t, ok)
	assert.Equal(t, "be brief", msg.Content)

	// The editing tip is an empty pair under the seeded exchange.
	assert.Equal(t, 2, layout.Tree().HeightOf(layout.CurrentNode()))
	parent := layout.Tree().Parent(layout.CurrentNode())
	require.NotNil(t, parent)
	userContent, ok := parent.UserArea.Message()
	require.True(t, ok)
	assert.Equal(t, "hello", userContent.Content)
}

func TestNewSessionLayoutRejectsBadSeed(t *testing.T) {
	_, err := NewSessionLayout([]types.Message{
		{Role: types.RoleAssistant, Content: "reply without question"},
	}, 80)
	require.Error(t, err)
}

func TestSwitchPaneCycles(t *testing.T) {
	layout, err := NewSessionLayout(nil, 80)
	require.NoError(t, err)

	require.Equal(t, AreaUser, layout.ActiveArea())
	layout.SwitchPane()
	assert.Equal(t, AreaAssistant, layout.ActiveArea())
	layout.SwitchPane()
	assert.Equal(t, AreaSystem, layout.ActiveArea())
	assert.True(t, layout.Tree().SystemArea().IsActive())
	layout.SwitchPane()
	assert.Equal(t, AreaUser, layout.ActiveArea())
}

func TestSubmitLocksNodeAndAdvances(t *testing.T) {
	layout, err := NewSessionLayout(nil, 80)
	require.NoError(t, err)
	submitted := layout.CurrentNode()

	typeText(layout, "what is a monad")
	messages := layout.Submit()

	require.Len(t, messages, 1)
	assert.Equal(t, types.RoleUser, messages[0].Role)
	assert.Equal(t, "what is a monad", messages[0].Content)

	node := layout.Tree().Get(submitted)
	require.NotNil(t, node)
	assert.True(t, node.UserArea.IsLocked())
	assert.True(t, layout.Streaming())

	// Focus moved to a fresh child.
	assert.NotEqual(t, submitted, layout.CurrentNode())
	assert.Equal(t, submitted, layout.Tree().Parent(layout.CurrentNode()).ID)
	assert.Equal(t, AreaUser, layout.ActiveArea())
}

func TestSubmitIncludesSystemAndHistory(t *testing.T) {
	layout, err := NewSessionLayout([]types.Message{
		{Role: types.RoleSystem, Content: "be brief"},
		{Role: types.RoleUser, Content: "q1"},
		{Role: types.RoleAssistant, Content: "a1"},
	}, 80)
	require.NoError(t, err)

	typeText(layout, "q2")
	messages := layout.Submit()

	require.Len(t, messages, 4)
	assert.Equal(t, types.RoleSystem, messages[0].Role)
	assert.Equal(t, "q1", messages[1].Content)
	assert.Equal(t, "a1", messages[2].Content)
	assert.Equal(t, "q2", messages[3].Content)
}

func TestStreamedReplyLandsOnSubmittedNode(t *testing.T) {
	layout, err := NewSessionLayout(nil, 80)
	require.NoError(t, err)
	submitted := layout.CurrentNode()

	typeText(layout, "question")
	layout.Submit()

	layout.HandleAssistantEvent(types.TextEvent{Type: types.TextEventMessageStart})
	layout.HandleAssistantEvent(deltaEvent("streamed "))
	// Navigating away must not redirect the reply.
	layout.NewBranchAtCurrent()
	layout.HandleAssistantEvent(deltaEvent("reply"))
	layout.HandleAssistantEvent(types.TextEvent{Type: types.TextEventMessageStop})

	assert.False(t, layout.Streaming())
	msg, ok := layout.Tree().Get(submitted).AssistantArea.Message()
	require.True(t, ok)
	assert.Equal(t, "streamed reply", msg.Content)
}

func TestEventsWithoutStreamTargetCurrentNode(t *testing.T) {
	layout, err := NewSessionLayout(nil, 80)
	require.NoError(t, err)

	layout.HandleAssistantEvent(deltaEvent("unsolicited"))
	node := layout.Tree().Get(layout.CurrentNode())
	msg, ok := node.AssistantArea.Message()
	require.True(t, ok)
	assert.Equal(t, "unsolicited", msg.Content)
}

func TestBlockStopDoesNotMutateBuffer(t *testing.T) {
	layout, err := NewSessionLayout(nil, 80)
	require.NoError(t, err)

	layout.HandleAssistantEvent(deltaEvent("line"))
	layout.HandleAssistantEvent(types.TextEvent{Type: types.TextEventContentBlockStop})
	layout.HandleAssistantEvent(types.TextEvent{Type: types.TextEventMessageDelta})

	msg, ok := layout.Tree().Get(layout.CurrentNode()).AssistantArea.Message()
	require.True(t, ok)
	assert.Equal(t, "line", msg.Content)
}

func TestInputOnLockedNodeForksBranch(t *testing.T) {
	layout, err := NewSessionLayout(nil, 80)
	require.NoError(t, err)
	submitted := layout.CurrentNode()

	typeText(layout, "original")
	layout.Submit()

	// Walk back to the locked node and edit it.
	layout.DownOne()
	require.Equal(t, submitted, layout.CurrentNode())
	typeText(layout, "x")

	forked := layout.CurrentNode()
	assert.NotEqual(t, submitted, forked)
	assert.Len(t, layout.Tree().Siblings(submitted), 2)

	msg, ok := layout.Tree().Get(forked).UserArea.Message()
	require.True(t, ok)
	assert.Equal(t, "x", msg.Content)

	// The submitted turn is untouched.
	original, ok := layout.Tree().Get(submitted).UserArea.Message()
	require.True(t, ok)
	assert.Equal(t, "original", original.Content)
}

func TestAssistantEditsLandOnCurrentNode(t *testing.T) {
	layout, err := NewSessionLayout([]types.Message{
		{Role: types.RoleUser, Content: "q1"},
		{Role: types.RoleAssistant, Content: "seeded reply"},
	}, 80)
	require.NoError(t, err)
	parent := layout.Tree().Parent(layout.CurrentNode())
	require.NotNil(t, parent)

	// The pane displays the ancestor reply, but edits stay on the tip's
	// own buffer.
	layout.SwitchPane()
	require.Equal(t, AreaAssistant, layout.ActiveArea())
	typeText(layout, "x")

	msg, ok := layout.Tree().Get(layout.CurrentNode()).AssistantArea.Message()
	require.True(t, ok)
	assert.Equal(t, "x", msg.Content)

	ancestorReply, ok := parent.AssistantArea.Message()
	require.True(t, ok)
	assert.Equal(t, "seeded reply", ancestorReply.Content)
}

func TestAssistantEditOnLockedNodeForksAndReplays(t *testing.T) {
	layout, err := NewSessionLayout(nil, 80)
	require.NoError(t, err)
	submitted := layout.CurrentNode()

	typeText(layout, "question")
	layout.Submit()
	layout.HandleAssistantEvent(types.TextEvent{Type: types.TextEventMessageStart})
	layout.HandleAssistantEvent(deltaEvent("reply"))
	layout.HandleAssistantEvent(types.TextEvent{Type: types.TextEventMessageStop})

	// Walk back to the locked turn and edit its reply.
	layout.DownOne()
	require.Equal(t, submitted, layout.CurrentNode())
	layout.SwitchPane()
	require.Equal(t, AreaAssistant, layout.ActiveArea())
	typeText(layout, "x")

	// The edit forks a branch and lands in the fork, not the void.
	forked := layout.CurrentNode()
	require.NotEqual(t, submitted, forked)
	msg, ok := layout.Tree().Get(forked).AssistantArea.Message()
	require.True(t, ok)
	assert.Equal(t, "x", msg.Content)
	assert.Len(t, layout.Tree().Siblings(submitted), 2)

	// The committed reply is untouched.
	original, ok := layout.Tree().Get(submitted).AssistantArea.Message()
	require.True(t, ok)
	assert.Equal(t, "reply", original.Content)
}

func TestBranchNavigation(t *testing.T) {
	layout, err := NewSessionLayout(nil, 80)
	require.NoError(t, err)
	first := layout.CurrentNode()

	layout.NewBranchAtCurrent()
	second := layout.CurrentNode()
	require.NotEqual(t, first, second)

	layout.NextBranch()
	assert.Equal(t, first, layout.CurrentNode())
	layout.PreviousBranch()
	assert.Equal(t, second, layout.CurrentNode())

	layout.NewChildAtCurrent()
	child := layout.CurrentNode()
	assert.Equal(t, second, layout.Tree().Parent(child).ID)

	layout.DownOne()
	assert.Equal(t, second, layout.CurrentNode())
	layout.UpOne()
	assert.Equal(t, child, layout.CurrentNode())
}

func TestDisplayAssistantFollowsStreamThenFallback(t *testing.T) {
	layout, err := NewSessionLayout([]types.Message{
		{Role: types.RoleUser, Content: "q1"},
		{Role: types.RoleAssistant, Content: "a1"},
	}, 80)
	require.NoError(t, err)

	// No reply of its own yet: show the ancestor's.
	display := layout.DisplayAssistant()
	msg, ok := display.Message()
	require.True(t, ok)
	assert.Equal(t, "a1", msg.Content)

	typeText(layout, "q2")
	submitted := layout.CurrentNode()
	layout.Submit()
	layout.HandleAssistantEvent(types.TextEvent{Type: types.TextEventMessageStart})
	layout.HandleAssistantEvent(deltaEvent("a2"))

	assert.Same(t, layout.Tree().Get(submitted).AssistantArea, layout.DisplayAssistant())
}
