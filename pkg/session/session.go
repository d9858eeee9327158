package session

import (
	"github.com/rs/zerolog/log"

	"github.com/Rubenduburck/rgpt/pkg/types"
)

// SessionLayout glues the page tree to an interactive editing session: it
// tracks which node and pane hold focus, where streamed replies land, and
// how submitting a turn advances the tree.
type SessionLayout struct {
	tree        *Root
	currentNode NodeID
	active      AreaID

	// streamNode is the node whose assistant buffer receives in-flight
	// model output, RootID when no response is streaming. It is pinned at
	// submit time so navigation never redirects a stream mid-reply.
	streamNode NodeID
}

// NewSessionLayout seeds a session from an initial message list and appends
// one empty turn-pair as the editing tip, with its user pane focused.
func NewSessionLayout(messages []types.Message, maxLineLength int) (*SessionLayout, error) {
	tree := NewRoot(maxLineLength)
	seed := make([]types.Message, 0, len(messages)+2)
	seed = append(seed, messages...)
	seed = append(seed,
		types.Message{Role: types.RoleUser},
		types.Message{Role: types.RoleAssistant},
	)
	tip, err := tree.InsertMessages(RootID, seed)
	if err != nil {
		return nil, err
	}
	s := &SessionLayout{
		tree:        tree,
		currentNode: tip,
		active:      AreaUser,
		streamNode:  RootID,
	}
	s.tree.Activate(tip, AreaUser)
	return s, nil
}

func (s *SessionLayout) Tree() *Root {
	return s.tree
}

func (s *SessionLayout) CurrentNode() NodeID {
	return s.currentNode
}

func (s *SessionLayout) ActiveArea() AreaID {
	return s.active
}

func (s *SessionLayout) Streaming() bool {
	return s.streamNode != RootID
}

// current returns the focused node. Focus always rests on a real node; a
// dangling id means the layout's own bookkeeping is broken.
func (s *SessionLayout) current() *Node {
	node := s.tree.Get(s.currentNode)
	if node == nil {
		log.Panic().Int("id", int(s.currentNode)).Msg("current node missing from tree")
	}
	return node
}

// activeBuffer resolves the focused pane to its backing buffer. Edits to
// the assistant pane always land on the current node's own buffer: the
// ancestor fallback in ResolveAssistant is a display concern, and routing
// edits through it would rewrite a committed ancestor reply.
func (s *SessionLayout) activeBuffer() *SessionTextArea {
	switch s.active {
	case AreaSystem:
		return s.tree.SystemArea()
	case AreaAssistant:
		return s.current().AssistantArea
	default:
		return s.current().UserArea
	}
}

// DisplayAssistant returns the assistant buffer the session should render:
// the in-flight stream target while a response is streaming, otherwise the
// reply resolved for the focused node.
func (s *SessionLayout) DisplayAssistant() *SessionTextArea {
	if s.streamNode != RootID {
		if node := s.tree.Get(s.streamNode); node != nil {
			return node.AssistantArea
		}
	}
	if node := s.tree.ResolveAssistant(s.currentNode); node != nil {
		return node.AssistantArea
	}
	return s.current().AssistantArea
}

// Input applies an edit to the focused buffer. Editing a locked buffer forks
// a fresh branch at the current node and replays the edit there, so
// submitted turns stay immutable while remaining a natural branching point.
func (s *SessionLayout) Input(event InputEvent) {
	buffer := s.activeBuffer()
	if buffer == nil {
		return
	}
	if buffer.Input(event) {
		return
	}
	log.Debug().Str("area", string(s.active)).Msg("input on locked buffer, forking branch")
	s.NewBranchAtCurrent()
	if buffer := s.activeBuffer(); buffer != nil {
		buffer.Input(event)
	}
}

// SwitchPane cycles focus user -> assistant -> system -> user.
func (s *SessionLayout) SwitchPane() {
	switch s.active {
	case AreaUser:
		s.active = AreaAssistant
	case AreaAssistant:
		s.active = AreaSystem
	default:
		s.active = AreaUser
	}
	s.tree.Activate(s.currentNode, s.active)
}

func (s *SessionLayout) moveTo(id NodeID) {
	if s.tree.Get(id) == nil {
		return
	}
	s.currentNode = id
	s.tree.Activate(id, s.active)
}

// UpOne descends to the current node's first child.
func (s *SessionLayout) UpOne() {
	node := s.current()
	if len(node.Children) == 0 {
		return
	}
	s.moveTo(node.Children[0])
}

// DownOne ascends to the current node's parent.
func (s *SessionLayout) DownOne() {
	if parent := s.tree.Parent(s.currentNode); parent != nil {
		s.moveTo(parent.ID)
	}
}

// NextBranch moves to the next sibling, wrapping around.
func (s *SessionLayout) NextBranch() {
	if sibling := s.tree.NextSibling(s.currentNode); sibling != nil {
		s.moveTo(sibling.ID)
	}
}

// PreviousBranch moves to the previous sibling, wrapping around.
func (s *SessionLayout) PreviousBranch() {
	if sibling := s.tree.PreviousSibling(s.currentNode); sibling != nil {
		s.moveTo(sibling.ID)
	}
}

// NewBranchAtCurrent forks a sibling of the current node and focuses it.
func (s *SessionLayout) NewBranchAtCurrent() {
	s.moveTo(s.tree.Fork(s.currentNode))
}

// NewChildAtCurrent inserts a child under the current node and focuses it.
func (s *SessionLayout) NewChildAtCurrent() {
	s.moveTo(s.tree.InsertChild(s.currentNode))
}

// Submit freezes the current turn and returns the full prompt for it: the
// system message, if any, followed by the root-to-current conversation. The
// submitted node is locked, its assistant buffer becomes the stream target,
// and focus moves to a fresh child for the next turn.
func (s *SessionLayout) Submit() []types.Message {
	node := s.current()
	var messages []types.Message
	if msg, ok := s.tree.SystemArea().Message(); ok {
		messages = append(messages, msg)
	}
	messages = append(messages, s.tree.CollectMessages(s.currentNode, 0)...)

	node.Lock()
	s.streamNode = s.currentNode
	log.Debug().
		Int("node", int(s.currentNode)).
		Int("messages", len(messages)).
		Msg("submitting turn")

	child := s.tree.InsertChild(s.currentNode)
	s.currentNode = child
	s.active = AreaUser
	s.tree.Activate(child, AreaUser)
	return messages
}

// HandleAssistantEvent applies one streamed response event to the pinned
// stream target, or to the current node's assistant buffer when no stream
// target is recorded. Block stop and message delta events are bookkeeping
// only and leave the buffer untouched.
func (s *SessionLayout) HandleAssistantEvent(event types.TextEvent) {
	node := s.tree.Get(s.streamNode)
	if node == nil {
		node = s.current()
	}
	switch event.Type {
	case types.TextEventMessageStart:
		node.AssistantArea.Clear()
	case types.TextEventContentBlockStart, types.TextEventContentBlockDelta:
		text, ok := event.Text()
		if !ok {
			return
		}
		for _, input := range InputsFromString(text) {
			node.AssistantArea.ForceInput(input)
		}
	case types.TextEventMessageStop:
		s.streamNode = RootID
		// refresh focus so an assistant pane showing an ancestor reply
		// picks up the finished one
		s.tree.Activate(s.currentNode, s.active)
	default:
	}
}
