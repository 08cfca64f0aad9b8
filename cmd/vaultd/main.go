package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/vaultd/internal"
	pkgconfig "github.com/starford/vaultd/pkg/config"
)

func run(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	// Flags and their env vars win over the file.
	if cmd.IsSet("vault") {
		cfg.Vault.Path = cmd.String("vault")
	}
	if cmd.IsSet("log-level") {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}
	if cmd.IsSet("transport") {
		cfg.App.Transport = cmd.String("transport")
	}
	if cmd.IsSet("watch") {
		cfg.Vault.Watch = cmd.Bool("watch")
	}
	if cmd.IsSet("notify-changes") {
		cfg.App.NotifyChanges = cmd.Bool("notify-changes")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "vaultd",
		Usage:  "Index a Markdown vault of tasks and daily logs and answer queries over stdio",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("VAULTD_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "vault",
				Aliases: []string{"v"},
				Usage:   "Path to the vault directory",
				Sources: cli.EnvVars("NOTE_VAULT_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("NOTE_DAEMON_LOG"),
			},
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Usage:   "Stdio protocol: jsonrpc or mcp",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Reindex notes when files change on disk",
			},
			&cli.BoolFlag{
				Name:  "notify-changes",
				Usage: "Send core.note_changed notifications for watcher updates",
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
