package session

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Rubenduburck/rgpt/pkg/types"
)

// ErrInvalidRole reports a message list whose roles do not follow the
// [system]?, user, [assistant] alternation expected on bulk insertion.
var ErrInvalidRole = errors.New("invalid message role")

// NodeID addresses a node in the page tree's arena. RootID is a sentinel for
// the implicit root, which has no arena entry.
type NodeID int

const RootID NodeID = -1

// Node is one turn-pair in the branching conversation: a user message and
// the assistant reply it produced. Relations are recorded as arena ids, never
// as pointers to other nodes.
type Node struct {
	ID            NodeID
	UserArea      *SessionTextArea
	AssistantArea *SessionTextArea
	Children      []NodeID
	Parent        NodeID
	Height        int
	Active        AreaID
}

func newNode(id, parent NodeID, height, maxLineLength int) *Node {
	return &Node{
		ID:            id,
		UserArea:      NewSessionTextArea(AreaUser, nil, maxLineLength),
		AssistantArea: NewSessionTextArea(AreaAssistant, nil, maxLineLength),
		Parent:        parent,
		Height:        height,
		Active:        AreaNone,
	}
}

// Area returns the buffer for a node-local area. Only user and assistant
// areas live on nodes; asking for anything else is a programming error.
func (n *Node) Area(id AreaID) *SessionTextArea {
	switch id {
	case AreaUser:
		return n.UserArea
	case AreaAssistant:
		return n.AssistantArea
	default:
		panic("invalid area id for node: " + string(id))
	}
}

func (n *Node) Activate(area AreaID) {
	if n.Active != AreaNone {
		n.Area(n.Active).Inactivate()
	}
	if area == AreaSystem {
		n.Active = AreaNone
		return
	}
	n.Area(area).Activate()
	n.Active = area
}

func (n *Node) Inactivate() {
	n.UserArea.Inactivate()
	n.AssistantArea.Inactivate()
	n.Active = AreaNone
}

// Lock locks both buffers for the duration of an in-flight model response.
func (n *Node) Lock() {
	n.UserArea.Lock()
	n.AssistantArea.Lock()
}

func (n *Node) Unlock() {
	n.UserArea.Unlock()
	n.AssistantArea.Unlock()
}

// Messages returns the node's contribution to a linearized prompt in
// bottom-up order (assistant reply before the user message that produced
// it). A node without a user message contributes nothing.
func (n *Node) Messages() []types.Message {
	user, userOk := n.UserArea.Message()
	assistant, assistantOk := n.AssistantArea.Message()
	switch {
	case userOk && assistantOk:
		return []types.Message{assistant, user}
	case userOk:
		return []types.Message{user}
	default:
		return nil
	}
}

// Root owns the node arena, the shared system buffer, and the tree-global
// active pointer. The arena is append-only: node ids are assigned
// monotonically and never reused.
type Root struct {
	nodes      []*Node
	active     NodeID
	systemArea *SessionTextArea
	children   []NodeID

	maxLineLength int
}

func NewRoot(maxLineLength int) *Root {
	return &Root{
		active:        RootID,
		systemArea:    NewSessionTextArea(AreaSystem, nil, maxLineLength),
		maxLineLength: maxLineLength,
	}
}

func (r *Root) SystemArea() *SessionTextArea {
	return r.systemArea
}

// Active returns the id of the node currently holding focus, or RootID when
// focus is on the system buffer (or nowhere).
func (r *Root) Active() NodeID {
	return r.active
}

func (r *Root) Len() int {
	return len(r.nodes)
}

func (r *Root) nextID() NodeID {
	return NodeID(len(r.nodes))
}

// Get returns the node for an arena id, or nil for the root sentinel and
// unknown ids.
func (r *Root) Get(id NodeID) *Node {
	if id < 0 || int(id) >= len(r.nodes) {
		return nil
	}
	return r.nodes[id]
}

func (r *Root) HeightOf(id NodeID) int {
	if node := r.Get(id); node != nil {
		return node.Height
	}
	return 0
}

// InsertChild allocates a new node under parent and returns its id. Both of
// the node's buffers get a breadcrumb title describing the root-to-node
// path.
func (r *Root) InsertChild(parent NodeID) NodeID {
	id := r.nextID()
	node := newNode(id, parent, r.HeightOf(parent)+1, r.maxLineLength)
	r.nodes = append(r.nodes, node)
	if parentNode := r.Get(parent); parentNode != nil {
		parentNode.Children = append(parentNode.Children, id)
	} else {
		r.children = append(r.children, id)
	}

	breadcrumb := r.breadcrumb(id)
	node.UserArea.SetTitle(breadcrumb + " | user")
	node.AssistantArea.SetTitle(breadcrumb + " | assistant")

	log.Trace().Int("id", int(id)).Int("parent", int(parent)).Int("height", node.Height).Msg("inserted node")
	return id
}

// Fork allocates a new sibling of id, sharing its parent.
func (r *Root) Fork(id NodeID) NodeID {
	parent := RootID
	if node := r.Get(id); node != nil {
		parent = node.Parent
	}
	return r.InsertChild(parent)
}

// breadcrumb renders the root-to-node path as each node's position within
// its parent's children, e.g. "root > 0 > 1".
func (r *Root) breadcrumb(id NodeID) string {
	var parts []string
	for cur := id; cur != RootID; {
		node := r.Get(cur)
		if node == nil {
			break
		}
		position := 0
		for i, sibling := range r.Siblings(cur) {
			if sibling == cur {
				position = i
				break
			}
		}
		parts = append(parts, strconv.Itoa(position))
		cur = node.Parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "root > " + strings.Join(parts, " > ")
}

// Parent returns the parent node, or nil when id is top-level or invalid.
func (r *Root) Parent(id NodeID) *Node {
	node := r.Get(id)
	if node == nil {
		return nil
	}
	return r.Get(node.Parent)
}

// Siblings returns the children list id belongs to: its parent's children,
// or the tree's top-level list for top-level nodes.
func (r *Root) Siblings(id NodeID) []NodeID {
	if parent := r.Parent(id); parent != nil {
		return parent.Children
	}
	return r.children
}

// NextSibling returns the next node in the sibling order, wrapping from the
// last sibling back to the first.
func (r *Root) NextSibling(id NodeID) *Node {
	siblings := r.Siblings(id)
	for i, sibling := range siblings {
		if sibling == id {
			return r.Get(siblings[(i+1)%len(siblings)])
		}
	}
	return nil
}

// PreviousSibling returns the previous node in the sibling order, wrapping
// from the first sibling to the last.
func (r *Root) PreviousSibling(id NodeID) *Node {
	siblings := r.Siblings(id)
	for i, sibling := range siblings {
		if sibling == id {
			return r.Get(siblings[(i-1+len(siblings))%len(siblings)])
		}
	}
	return nil
}

// ChildrenOf returns the nodes under id in insertion order. For RootID this
// is the tree's top-level branches.
func (r *Root) ChildrenOf(id NodeID) []*Node {
	ids := r.children
	if id != RootID {
		node := r.Get(id)
		if node == nil {
			return nil
		}
		ids = node.Children
	}
	nodes := make([]*Node, 0, len(ids))
	for _, childID := range ids {
		if child := r.Get(childID); child != nil {
			nodes = append(nodes, child)
		}
	}
	return nodes
}

// ParentAtHeight walks up from id until it reaches a node at exactly height.
func (r *Root) ParentAtHeight(id NodeID, height int) *Node {
	node := r.Get(id)
	for node != nil && node.Height > height {
		node = r.Get(node.Parent)
	}
	return node
}

// ResolveAssistant returns the node whose assistant buffer should display
// for id: the node itself when it has a reply, otherwise the nearest
// ancestor with one. A freshly forked node keeps showing the last ancestor
// reply until it has generated its own.
func (r *Root) ResolveAssistant(id NodeID) *Node {
	node := r.Get(id)
	if node == nil {
		return nil
	}
	if !node.AssistantArea.IsEmpty() {
		return node
	}
	ancestor := r.Parent(id)
	for ancestor != nil && ancestor.AssistantArea.IsEmpty() {
		next := r.Get(ancestor.Parent)
		if next == nil {
			break
		}
		ancestor = next
	}
	return ancestor
}

// Activate moves focus to an area of a node, deactivating whatever held
// focus before. Assistant focus follows ResolveAssistant.
func (r *Root) Activate(id NodeID, area AreaID) {
	if node := r.Get(r.active); node != nil {
		node.Inactivate()
		r.active = RootID
	}
	r.systemArea.Inactivate()

	switch area {
	case AreaSystem:
		r.systemArea.Activate()
	case AreaAssistant:
		if node := r.ResolveAssistant(id); node != nil {
			node.Activate(AreaAssistant)
			r.active = node.ID
		}
	case AreaUser:
		if node := r.Get(id); node != nil {
			node.Activate(AreaUser)
			r.active = id
		}
	}
}

// InsertMessages builds a chain of nodes from a flat message list: at most
// one system message (extracted into the shared system buffer) followed by
// user/assistant pairs starting with user. It returns the deepest node
// created, or parent when the list held no content messages.
func (r *Root) InsertMessages(parent NodeID, messages []types.Message) (NodeID, error) {
	content := make([]types.Message, 0, len(messages))
	systemSeen := false
	for _, msg := range messages {
		if msg.Role == types.RoleSystem && !systemSeen {
			r.systemArea.SetMessage(msg)
			systemSeen = true
			continue
		}
		content = append(content, msg)
	}

	last := parent
	for i := 0; i < len(content); {
		if content[i].Role != types.RoleUser {
			return RootID, errors.Wrapf(ErrInvalidRole, "expected user message at position %d, got %s", i, content[i].Role)
		}
		childID := r.InsertChild(last)
		child := r.Get(childID)
		child.UserArea.SetMessage(content[i])
		i++

		if i < len(content) && content[i].Role != types.RoleUser {
			if content[i].Role != types.RoleAssistant {
				return RootID, errors.Wrapf(ErrInvalidRole, "expected assistant message at position %d, got %s", i, content[i].Role)
			}
			child.AssistantArea.SetMessage(content[i])
			i++
		}
		last = childID
	}
	return last, nil
}

// NodeMessages returns the messages a single tree position contributes to a
// prompt. The root contributes the system message.
func (r *Root) NodeMessages(id NodeID) []types.Message {
	if id == RootID {
		if msg, ok := r.systemArea.Message(); ok {
			return []types.Message{msg}
		}
		return nil
	}
	if node := r.Get(id); node != nil {
		return node.Messages()
	}
	return nil
}

// CollectMessages linearizes the path from id up to (but not including)
// height downTo into chronological order. A trailing assistant message is
// dropped: the caller is about to submit a new user turn, and an incomplete
// tail reply must not be echoed back as context.
func (r *Root) CollectMessages(id NodeID, downTo int) []types.Message {
	log.Trace().Int("id", int(id)).Int("down_to", downTo).Msg("collecting messages")
	var messages []types.Message
	height := r.HeightOf(id)
	for cur := id; height > downTo; height-- {
		messages = append(messages, r.NodeMessages(cur)...)
		if node := r.Get(cur); node != nil {
			cur = node.Parent
		} else {
			cur = RootID
		}
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if len(messages) > 0 && messages[len(messages)-1].Role == types.RoleAssistant {
		messages = messages[:len(messages)-1]
	}
	return messages
}
