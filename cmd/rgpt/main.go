package main

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Rubenduburck/rgpt/pkg/assistant"
	"github.com/Rubenduburck/rgpt/pkg/logging"
	"github.com/Rubenduburck/rgpt/pkg/query"
	"github.com/Rubenduburck/rgpt/pkg/session"
)

var rootCmd = &cobra.Command{
	Use:   "rgpt [prompt...]",
	Short: "rgpt is a Claude assistant for the terminal",
	Long: `rgpt sends one-shot prompts to Claude, or runs an interactive session
where the conversation is a tree: any turn can be forked into a new branch
and every branch keeps its own history.`,
	Args: cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger now that --log-level and co are parsed
		initLogger()
	},
	SilenceUsage: true,
	RunE:         run,
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}

	err := logging.Init(&logging.Config{
		Level:      logLevel,
		File:       viper.GetString("log-file"),
		Format:     viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

func buildAssistant(cmd *cobra.Command) (*assistant.Assistant, error) {
	var temperature *float64
	if cmd.Flags().Changed("temperature") {
		t := viper.GetFloat64("temperature")
		temperature = &t
	}

	config := assistant.NewConfigBuilder().
		Mode(assistant.ModeFromString(viper.GetString("mode"))).
		Model(viper.GetString("model")).
		Temperature(temperature).
		MaxTokens(viper.GetInt("max-tokens")).
		Stream(!viper.GetBool("no-stream")).
		APIKey(viper.GetString("anthropic-api-key")).
		Build()

	return assistant.New(config)
}

func run(cmd *cobra.Command, args []string) error {
	a, err := buildAssistant(cmd)
	if err != nil {
		return err
	}

	log.Debug().
		Str("mode", string(a.Mode())).
		Bool("session", viper.GetBool("session")).
		Msg("starting")

	if viper.GetBool("session") {
		return session.NewSession(a).Start(cmd.Context())
	}
	return query.New(a).Run(cmd.Context(), strings.Join(args, " "))
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.Flags().BoolP("session", "s", false, "Run an interactive branching session")
	rootCmd.Flags().StringP("mode", "m", "general", "Assistant mode (general, dev, bash)")
	rootCmd.Flags().String("model", "", "Model to use (default: the client's default model)")
	rootCmd.Flags().Float64P("temperature", "t", 0, "Sampling temperature")
	rootCmd.Flags().Int("max-tokens", 0, "Maximum tokens to generate")
	rootCmd.Flags().Bool("no-stream", false, "Wait for the complete reply instead of streaming")
	rootCmd.Flags().String("anthropic-api-key", "", "Anthropic API key (default: $ANTHROPIC_API_KEY)")

	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "rgpt.log", "Log file")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cobra.CheckErr(viper.BindPFlags(rootCmd.Flags()))
	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))

	initLogger()
}
