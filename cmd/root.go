package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/learnintake/internal/config"
)

// v holds defaults, the config file, LEARNINTAKE_* env vars and the
// persistent flags bound below, in ascending priority.
var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "learnintake",
	Short: "Conversational learner assessment",
	Long: "learnintake interviews a learner in five confirmed stages (topic, goal, time, budget, level)\n" +
		"and hands the finished profile to a curriculum generator.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file (default ./learnintake.yaml when present)")
	pf.String("db", "", "Path to SQLite database file (overrides LEARNINTAKE_DB env var)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("provider", "", "LLM provider (auto, anthropic, openai, gemini, openrouter, mock)")
	pf.String("store", "", "Session backend (sqlite, memory, redis)")

	_ = v.BindPFlag("store.db_path", pf.Lookup("db"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("llm.provider", pf.Lookup("provider"))
	_ = v.BindPFlag("store.backend", pf.Lookup("store"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(terminateCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads and validates the configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
