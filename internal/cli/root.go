package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath, port string

	cmd := &cobra.Command{
		Use:          "quizcraft",
		Short:        "AI-generated quizzes, shared leaderboards and live multiplayer rooms",
		SilenceUsage: true,
	}

	// An empty port defers to server.port in the config file.
	flags := cmd.PersistentFlags()
	flags.StringVar(&configPath, "config", envOr("CONFIG_PATH", "config/config.yaml"), "path to YAML config")
	flags.StringVar(&port, "port", os.Getenv("PORT"), "port to listen on, overrides server.port")

	cmd.AddCommand(NewStartCmd(&configPath, &port), NewMigrateCmd(&configPath))
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
