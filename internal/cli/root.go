// Package cli implements the enjinmel-relay command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shineum/enjinmel-relay/internal/config"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	envFile    string
	logLevel   string

	cfg *config.Config
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "enjinmel-relay",
		Short: "Relay mail to the EnjinMel REST API",
		Long: `enjinmel-relay accepts mail over SMTP and submits it to the EnjinMel
REST API, keeping a searchable log of every send.

Example:
  enjinmel-relay serve --config relay.yaml
  enjinmel-relay encrypt "$API_KEY"
  enjinmel-relay send --to ops@example.com --subject Test --body Hello
  enjinmel-relay logs list --status failed`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration file (optional)")
	flags.StringVar(&opts.envFile, "env-file", "", "path to a dotenv file loaded before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(opts),
		newSendCommand(opts),
		newPurgeCommand(opts),
		newEncryptCommand(opts),
		newLogsCommand(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// load reads the env file and configuration and sets up logging.
func (o *options) load(cmd *cobra.Command) error {
	if o.envFile != "" {
		// Variables already in the environment win over the file.
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", o.configPath, "env_file", o.envFile)

	o.cfg = cfg
	return nil
}
