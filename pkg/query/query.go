package query

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"

	"github.com/Rubenduburck/rgpt/pkg/assistant"
	"github.com/Rubenduburck/rgpt/pkg/types"
)

var replyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))

// Query runs a single prompt/reply exchange on the terminal, without the
// interactive tree UI.
type Query struct {
	assistant *assistant.Assistant
	ui        *input.UI
	out       io.Writer
}

func New(a *assistant.Assistant) *Query {
	return &Query{
		assistant: a,
		ui: &input.UI{
			Writer: os.Stderr,
			Reader: os.Stdin,
		},
		out: os.Stdout,
	}
}

// Run sends text as a one-shot prompt and prints the reply. With no text it
// prompts for one first. In bash mode the reply's commands are offered for
// execution.
func (q *Query) Run(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		answer, err := q.ui.Ask(">", &input.Options{Required: true, Loop: true})
		if err != nil {
			return errors.Wrap(err, "failed to read prompt")
		}
		text = answer
	}

	messages := append(q.assistant.InitMessages(), types.NewUserMessage(text))
	events := make(chan types.TextEvent, 64)
	q.assistant.HandleInput(ctx, messages, events)

	tty := isatty.IsTerminal(os.Stdout.Fd())
	// With a complete (non-streamed) reply on a terminal, hold output back
	// and render it as markdown once. Otherwise echo text as it arrives.
	echo := q.assistant.Streaming() || !tty

	var reply strings.Builder
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case event := <-events:
				if event.IsStop() {
					return nil
				}
				chunk, ok := event.Text()
				if !ok {
					continue
				}
				reply.WriteString(chunk)
				if !echo {
					continue
				}
				if tty {
					chunk = replyStyle.Render(chunk)
				}
				fmt.Fprint(q.out, chunk)
			}
		}
	})
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "reply interrupted")
	}

	if echo {
		if !strings.HasSuffix(reply.String(), "\n") {
			fmt.Fprintln(q.out)
		}
	} else {
		styled, err := glamour.Render(reply.String(), "dark")
		if err != nil {
			log.Warn().Err(err).Msg("markdown rendering failed, printing raw reply")
			styled = reply.String()
		}
		fmt.Fprint(q.out, styled)
	}

	if q.assistant.Mode() == assistant.ModeBash {
		return q.offerExecution(ctx, reply.String())
	}
	return nil
}

// offerExecution lists the commands found in a reply and pipes the chosen
// one to bash. Picking "none" skips execution.
func (q *Query) offerExecution(ctx context.Context, reply string) error {
	commands := shellCommands(reply)
	if len(commands) == 0 {
		return nil
	}

	choices := append(commands, "none")
	choice, err := q.ui.Select("Execute?", choices, &input.Options{
		Default:  "none",
		Required: true,
		Loop:     true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to read selection")
	}
	if choice == "none" {
		return nil
	}

	log.Info().Str("command", choice).Msg("executing reply command")
	cmd := exec.CommandContext(ctx, "bash")
	cmd.Stdin = strings.NewReader(choice)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "command failed: %s", choice)
	}
	return nil
}

// shellCommands extracts the executable parts of a reply: its shell code
// blocks, or the whole reply when it carries no fences at all.
func shellCommands(reply string) []string {
	blocks := ExtractCodeBlocks(reply)
	if len(blocks) == 0 {
		trimmed := strings.TrimSpace(reply)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	var commands []string
	for _, block := range blocks {
		switch block.Lang {
		case "", "bash", "sh", "shell", "zsh":
			command := strings.TrimSpace(strings.Join(block.Lines, "\n"))
			if command != "" {
				commands = append(commands, command)
			}
		}
	}
	return commands
}

// CodeBlock is one fenced code block from a markdown reply.
type CodeBlock struct {
	Lang  string
	Lines []string
}

// ExtractCodeBlocks returns the fenced code blocks of text in order. A fence
// left unclosed at the end of the text still yields its block.
func ExtractCodeBlocks(text string) []CodeBlock {
	var blocks []CodeBlock
	var current *CodeBlock
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if current == nil {
				current = &CodeBlock{Lang: strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))}
			} else {
				blocks = append(blocks, *current)
				current = nil
			}
			continue
		}
		if current != nil {
			current.Lines = append(current.Lines, line)
		}
	}
	if current != nil {
		blocks = append(blocks, *current)
	}
	return blocks
}
