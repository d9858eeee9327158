package session

import (
	"context"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/Rubenduburck/rgpt/pkg/types"
)

// Responder produces model replies for submitted prompts. Replies arrive as
// a stream of text events on the channel handed to HandleInput; every
// dispatch ends with exactly one message_stop event.
type Responder interface {
	InitMessages() []types.Message
	HandleInput(ctx context.Context, messages []types.Message, events chan<- types.TextEvent)
}

type KeyMap struct {
	SwitchPane     key.Binding
	ForkBranch     key.Binding
	NewChild       key.Binding
	NextBranch     key.Binding
	PreviousBranch key.Binding
	UpOne          key.Binding
	DownOne        key.Binding
	Submit         key.Binding
	Quit           key.Binding
}

var DefaultKeyMap = KeyMap{
	SwitchPane:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
	ForkBranch:     key.NewBinding(key.WithKeys("ctrl+b"), key.WithHelp("ctrl+b", "fork branch")),
	NewChild:       key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "new child")),
	NextBranch:     key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "next branch")),
	PreviousBranch: key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "prev branch")),
	UpOne:          key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "up one")),
	DownOne:        key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "down one")),
	Submit:         key.NewBinding(key.WithKeys("ctrl+j"), key.WithHelp("ctrl+j", "submit")),
	Quit:           key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
}

type Style struct {
	ActivePanel   lipgloss.Style
	InactivePanel lipgloss.Style
	Title         lipgloss.Style
	Help          lipgloss.Style
}

type BorderColors struct {
	Active   string
	Inactive string
}

func DefaultStyles() *Style {
	lightModeColors := BorderColors{
		Active:   "#9955DD",
		Inactive: "#CCCCCC",
	}

	darkModeColors := BorderColors{
		Active:   "#BB88FF",
		Inactive: "#444444",
	}

	return &Style{
		ActivePanel: lipgloss.NewStyle().Border(lipgloss.ThickBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Active,
				Dark:  darkModeColors.Active,
			}),
		InactivePanel: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Inactive,
				Dark:  darkModeColors.Inactive,
			}),
		Title: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#AAAAAA"}),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}),
	}
}

type assistantEventMsg struct {
	event types.TextEvent
}

// waitForEvent blocks on the response channel and republishes the next
// event into the bubbletea loop.
func waitForEvent(events <-chan types.TextEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return assistantEventMsg{event: event}
	}
}

type model struct {
	ctx       context.Context
	layout    *SessionLayout
	responder Responder
	events    chan types.TextEvent
	keyMap    KeyMap

	style  *Style
	width  int
	height int
}

func initialModel(ctx context.Context, layout *SessionLayout, responder Responder) model {
	return model{
		ctx:       ctx,
		layout:    layout,
		responder: responder,
		events:    make(chan types.TextEvent, 64),
		keyMap:    DefaultKeyMap,
		style:     DefaultStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.SwitchPane):
			m.layout.SwitchPane()

		case key.Matches(msg, m.keyMap.ForkBranch):
			m.layout.NewBranchAtCurrent()

		case key.Matches(msg, m.keyMap.NewChild):
			m.layout.NewChildAtCurrent()

		case key.Matches(msg, m.keyMap.NextBranch):
			m.layout.NextBranch()

		case key.Matches(msg, m.keyMap.PreviousBranch):
			m.layout.PreviousBranch()

		case key.Matches(msg, m.keyMap.UpOne):
			m.layout.UpOne()

		case key.Matches(msg, m.keyMap.DownOne):
			m.layout.DownOne()

		case key.Matches(msg, m.keyMap.Submit):
			messages := m.layout.Submit()
			m.responder.HandleInput(m.ctx, messages, m.events)

		default:
			for _, input := range inputsFromKeyMsg(msg) {
				m.layout.Input(input)
			}
		}

	case assistantEventMsg:
		m.layout.HandleAssistantEvent(msg.event)
		return m, waitForEvent(m.events)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	default:
	}

	return m, nil
}

// inputsFromKeyMsg translates a terminal key press into buffer edits.
// Key presses that carry no edit meaning translate to nothing.
func inputsFromKeyMsg(msg tea.KeyMsg) []InputEvent {
	switch msg.Type {
	case tea.KeyRunes:
		inputs := make([]InputEvent, 0, len(msg.Runes))
		for _, r := range msg.Runes {
			inputs = append(inputs, charInput(r))
		}
		return inputs
	case tea.KeySpace:
		return []InputEvent{{Key: KeyChar, Rune: ' '}}
	case tea.KeyEnter:
		return []InputEvent{{Key: KeyEnter}}
	case tea.KeyBackspace:
		return []InputEvent{{Key: KeyBackspace}}
	case tea.KeyDelete:
		return []InputEvent{{Key: KeyDelete}}
	default:
		return nil
	}
}

func (m model) renderPanel(area *SessionTextArea, width, height int, active bool) string {
	style := m.style.InactivePanel
	if active {
		style = m.style.ActivePanel
	}
	title := m.style.Title.Render(area.Title())
	content := title + "\n" + area.Content()
	return style.Width(width).Height(height).Render(content)
}

func (m model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	leftWidth := m.width/2 - 2
	rightWidth := m.width - leftWidth - 4
	systemHeight := m.height / 4
	userHeight := m.height - systemHeight - 7

	active := m.layout.ActiveArea()
	system := m.renderPanel(m.layout.Tree().SystemArea(), leftWidth, systemHeight, active == AreaSystem)
	user := m.renderPanel(m.layout.current().UserArea, leftWidth, userHeight, active == AreaUser)
	assistant := m.renderPanel(m.layout.DisplayAssistant(), rightWidth, systemHeight+userHeight+2, active == AreaAssistant)

	left := lipgloss.JoinVertical(lipgloss.Left, system, user)
	panels := lipgloss.JoinHorizontal(lipgloss.Top, left, assistant)

	bindings := []key.Binding{
		m.keyMap.SwitchPane, m.keyMap.Submit, m.keyMap.ForkBranch,
		m.keyMap.NewChild, m.keyMap.NextBranch, m.keyMap.PreviousBranch,
		m.keyMap.UpOne, m.keyMap.DownOne, m.keyMap.Quit,
	}
	hints := make([]string, 0, len(bindings))
	for _, b := range bindings {
		hints = append(hints, b.Help().Key+" "+b.Help().Desc)
	}
	help := m.style.Help.Render(strings.Join(hints, "  "))

	return panels + "\n" + help
}

// Session runs the interactive branching conversation UI.
type Session struct {
	responder Responder
}

func NewSession(responder Responder) *Session {
	return &Session{responder: responder}
}

// wrapWidth derives the buffer wrap threshold from the terminal: half the
// width minus the panel chrome.
func wrapWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 10 {
		return 70
	}
	return (width - 10) / 2
}

// Start seeds the page tree from the responder's initial messages and runs
// the UI until the user quits.
func (s *Session) Start(ctx context.Context) error {
	layout, err := NewSessionLayout(s.responder.InitMessages(), wrapWidth())
	if err != nil {
		return errors.Wrap(err, "failed to seed session")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Debug().Msg("starting interactive session")
	p := tea.NewProgram(
		initialModel(ctx, layout, s.responder),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "session ui failed")
	}
	return nil
}
