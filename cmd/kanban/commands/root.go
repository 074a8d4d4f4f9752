package commands

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/config"
	"github.com/AnirudhanSS/kanban-app-sub000/internal/printer"
	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

var (
	version string
	commit  string
	date    string

	// --config, shared by all subcommands
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kanban",
	Short: "Kanban - real-time board collaboration server",
	Long: `Kanban serves shared task boards to concurrent users: WebSocket
sessions, per-entity locking, optimistic versioning, gap-based card
ordering, and Redis-backed fan-out across server instances.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Errors are printed with colors by the printer package.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to kanban.yml (default ./kanban.yml)")
}

// loadConfig loads the shared configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error("Invalid configuration", err.Error(), []string{
			"Fix kanban.yml, or unset the conflicting KANBAN_* variables",
		})
	}
	return cfg, nil
}

// newCollabClient connects the coordination client from a loaded config.
func newCollabClient(cfg *config.Config) (*collab.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, printer.Error("Invalid Redis URL", err.Error(), []string{
			"Set redis_url to something like redis://localhost:6379",
		})
	}
	client, err := collab.NewClient(opts, cfg.Instance)
	if err != nil {
		return nil, printer.Error("Failed to create Redis client", err.Error(), nil)
	}
	return client, nil
}

// newLogger builds the process logger at the configured level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}
