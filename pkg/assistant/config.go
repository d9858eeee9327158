package assistant

import (
	_ "embed"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Rubenduburck/rgpt/pkg/types"
)

// Mode selects the seeded system prompt for a session.
type Mode string

const (
	ModeGeneral Mode = "general"
	ModeDev     Mode = "dev"
	ModeBash    Mode = "bash"
)

func ModeFromString(s string) Mode {
	switch s {
	case "dev":
		return ModeDev
	case "bash":
		return ModeBash
	default:
		return ModeGeneral
	}
}

//go:embed modes.yaml
var modesYAML []byte

type modeSeed struct {
	Messages []struct {
		Role    string `yaml:"role"`
		Content string `yaml:"content"`
	} `yaml:"messages"`
}

// SeedMessages returns the mode's initial message list, with host
// placeholders expanded.
func (m Mode) SeedMessages() []types.Message {
	var seeds map[string]modeSeed
	if err := yaml.Unmarshal(modesYAML, &seeds); err != nil {
		log.Error().Err(err).Msg("could not parse embedded mode seeds")
		return nil
	}
	seed, ok := seeds[string(m)]
	if !ok {
		return nil
	}

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "Unknown"
	}
	replacer := strings.NewReplacer("$uname", runtime.GOOS, "$shell", shell)

	messages := make([]types.Message, 0, len(seed.Messages))
	for _, msg := range seed.Messages {
		messages = append(messages, types.Message{
			Role:    types.RoleFromString(msg.Role),
			Content: replacer.Replace(msg.Content),
		})
	}
	return messages
}

// Config holds everything the assistant needs to build provider requests.
type Config struct {
	Messages    []types.Message
	Model       string
	Temperature *float64
	MaxTokens   int
	Stream      bool
	Mode        Mode
	APIKey      string
}

type ConfigBuilder struct {
	mode        Mode
	messages    []types.Message
	model       string
	temperature *float64
	maxTokens   int
	stream      *bool
	apiKey      string
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{mode: ModeGeneral}
}

// Mode sets the mode and replaces the seed messages with the mode's own.
func (b *ConfigBuilder) Mode(mode Mode) *ConfigBuilder {
	b.mode = mode
	b.messages = mode.SeedMessages()
	return b
}

func (b *ConfigBuilder) Messages(messages []types.Message) *ConfigBuilder {
	b.messages = append(b.messages, messages...)
	return b
}

func (b *ConfigBuilder) Model(model string) *ConfigBuilder {
	b.model = model
	return b
}

func (b *ConfigBuilder) Temperature(temperature *float64) *ConfigBuilder {
	b.temperature = temperature
	return b
}

func (b *ConfigBuilder) MaxTokens(maxTokens int) *ConfigBuilder {
	b.maxTokens = maxTokens
	return b
}

func (b *ConfigBuilder) Stream(stream bool) *ConfigBuilder {
	b.stream = &stream
	return b
}

func (b *ConfigBuilder) APIKey(apiKey string) *ConfigBuilder {
	b.apiKey = apiKey
	return b
}

func (b *ConfigBuilder) Build() Config {
	stream := true
	if b.stream != nil {
		stream = *b.stream
	}
	return Config{
		Messages:    b.messages,
		Model:       b.model,
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
		Stream:      stream,
		Mode:        b.mode,
		APIKey:      b.apiKey,
	}
}
