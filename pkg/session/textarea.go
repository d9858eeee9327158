package session

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Rubenduburck/rgpt/pkg/types"
)

// AreaID identifies one of the three message roles as a focus target.
type AreaID string

const (
	AreaNone      AreaID = ""
	AreaUser      AreaID = "user"
	AreaAssistant AreaID = "assistant"
	AreaSystem    AreaID = "system"
)

func AreaFromRole(role types.Role) AreaID {
	switch role {
	case types.RoleAssistant:
		return AreaAssistant
	case types.RoleSystem:
		return AreaSystem
	default:
		return AreaUser
	}
}

func (a AreaID) Role() types.Role {
	switch a {
	case AreaAssistant:
		return types.RoleAssistant
	case AreaSystem:
		return types.RoleSystem
	default:
		return types.RoleUser
	}
}

type Key int

const (
	KeyChar Key = iota
	KeyEnter
	KeyBackspace
	KeyDelete
	KeyTab
	KeyNone
)

// InputEvent is one edit operation on a text area. Rune is only meaningful
// for KeyChar.
type InputEvent struct {
	Key  Key
	Rune rune
}

func charInput(r rune) InputEvent {
	if r == '\n' {
		return InputEvent{Key: KeyEnter}
	}
	return InputEvent{Key: KeyChar, Rune: r}
}

// InputsFromString converts text into the per-character edit operations used
// by both bulk seeding and streamed output.
func InputsFromString(s string) []InputEvent {
	inputs := make([]InputEvent, 0, len(s))
	for _, r := range s {
		inputs = append(inputs, charInput(r))
	}
	return inputs
}

// SessionTextArea is a line-oriented editable buffer holding one role's
// message content. Editing appends at the end of the buffer; the area soft
// wraps lines that would reach maxLineLength, locks during an in-flight
// model response, and tracks whether it currently has input focus.
type SessionTextArea struct {
	ID    AreaID
	title string
	lines []string

	maxLineLength int
	locked        bool
	active        bool
}

func NewSessionTextArea(id AreaID, lines []string, maxLineLength int) *SessionTextArea {
	log.Trace().Str("area", string(id)).Int("seed_lines", len(lines)).Msg("creating text area")
	a := &SessionTextArea{
		ID:            id,
		lines:         []string{""},
		maxLineLength: maxLineLength,
	}
	if content := strings.Join(lines, "\n"); content != "" {
		for _, input := range InputsFromString(content) {
			a.Input(input)
		}
		a.Input(InputEvent{Key: KeyEnter})
	}
	a.Inactivate()
	return a
}

func (a *SessionTextArea) Lock()           { a.locked = true }
func (a *SessionTextArea) Unlock()         { a.locked = false }
func (a *SessionTextArea) IsLocked() bool  { return a.locked }
func (a *SessionTextArea) Activate()       { a.active = true }
func (a *SessionTextArea) Inactivate()     { a.active = false }
func (a *SessionTextArea) IsActive() bool  { return a.active }
func (a *SessionTextArea) Title() string   { return a.title }
func (a *SessionTextArea) SetTitle(t string) {
	log.Trace().Str("area", string(a.ID)).Str("title", t).Msg("setting title")
	a.title = t
}

// Lines returns the buffer's logical lines.
func (a *SessionTextArea) Lines() []string {
	return a.lines
}

// Clear resets the buffer to empty content and dimmed state.
func (a *SessionTextArea) Clear() {
	a.lines = []string{""}
	a.Inactivate()
}

func (a *SessionTextArea) IsEmpty() bool {
	if len(a.lines) == 0 {
		return true
	}
	return len(a.lines) == 1 && (a.lines[0] == "" || a.lines[0] == "\n")
}

// Message returns the buffer's content as a role-tagged message, or false
// when the buffer is empty.
func (a *SessionTextArea) Message() (types.Message, bool) {
	if a.IsEmpty() {
		return types.Message{}, false
	}
	return types.Message{
		Role:    a.ID.Role(),
		Content: strings.Join(a.lines, "\n"),
	}, true
}

// SetMessage replaces the content, feeding it through the same per-character
// path as every other edit so wrap rules apply uniformly.
func (a *SessionTextArea) SetMessage(message types.Message) {
	a.Clear()
	for _, input := range InputsFromString(message.Content) {
		a.Input(input)
	}
}

// Input applies one edit operation. Content-mutating operations are rejected
// with false while the buffer is locked; everything else reports true.
func (a *SessionTextArea) Input(input InputEvent) bool {
	switch input.Key {
	case KeyChar:
		if a.locked {
			return false
		}
		// Soft wrap: break the line before it reaches the wrap threshold.
		if len(a.lastLine())+1 >= a.maxLineLength {
			a.pushLine()
		}
		a.appendRune(input.Rune)
	case KeyEnter:
		if a.locked {
			return false
		}
		a.pushLine()
	case KeyBackspace, KeyDelete:
		if a.locked {
			return false
		}
		a.deleteBackward()
	case KeyTab:
		if a.locked {
			return false
		}
		a.appendRune('\t')
	default:
	}
	return true
}

// ForceInput applies an operation regardless of the lock. This is the only
// write path for streamed model output.
func (a *SessionTextArea) ForceInput(input InputEvent) {
	locked := a.locked
	a.locked = false
	a.Input(input)
	a.locked = locked
}

func (a *SessionTextArea) lastLine() string {
	if len(a.lines) == 0 {
		return ""
	}
	return a.lines[len(a.lines)-1]
}

func (a *SessionTextArea) appendRune(r rune) {
	if len(a.lines) == 0 {
		a.lines = []string{""}
	}
	a.lines[len(a.lines)-1] += string(r)
}

func (a *SessionTextArea) pushLine() {
	a.lines = append(a.lines, "")
}

func (a *SessionTextArea) deleteBackward() {
	if len(a.lines) == 0 {
		return
	}
	last := a.lines[len(a.lines)-1]
	if last == "" {
		if len(a.lines) > 1 {
			a.lines = a.lines[:len(a.lines)-1]
		}
		return
	}
	runes := []rune(last)
	a.lines[len(a.lines)-1] = string(runes[:len(runes)-1])
}

// Content returns the buffer's text as displayed, lines joined by newlines.
func (a *SessionTextArea) Content() string {
	return strings.Join(a.lines, "\n")
}
