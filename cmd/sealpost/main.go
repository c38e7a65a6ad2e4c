// Package main is the entry point for the sealpost command line tool.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/shineum/sealpost/internal/config"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, cancelling", "signal", sig)
		cancel()
	}()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// runner carries the configuration loaded before any command runs.
type runner struct {
	cfg *config.Config
}

func newApp() *cli.App {
	r := &runner{}

	return &cli.App{
		Name:  "sealpost",
		Usage: "build encrypted send requests and answer calendar invitations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to YAML configuration file (optional)",
				EnvVars: []string{"SEALPOST_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return cli.Exit("failed to load configuration: "+err.Error(), 1)
			}

			setupLogger(c.App.ErrWriter, cfg.Logging.Level)
			r.cfg = cfg

			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "eml",
				Usage: "print the MIME document of an HTML body and its attachments",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: "body", Usage: "HTML body file", Required: true},
					&cli.StringSliceFlag{Name: "attach", Usage: "attachment file, may be repeated"},
				},
				Action: r.eml,
			},
			{
				Name:  "package",
				Usage: "build the send request described by a YAML file and print it as JSON",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: "request", Usage: "YAML request file", Required: true},
				},
				Action: r.pack,
			},
			{
				Name:  "reply",
				Usage: "answer a calendar invitation and notify its organizer",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: "invitation", Usage: "invitation email (.eml)", Required: true},
					&cli.StringFlag{Name: "answer", Usage: "yes, no or maybe", Required: true},
					&cli.StringSliceFlag{Name: "address", Usage: "one of your addresses, may be repeated", Required: true},
					&cli.PathFlag{Name: "key-packet", Usage: "YAML file sharing the event's address key packet with its calendar"},
				},
				Action: r.reply,
			},
		},
	}
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level. Logs go to w so that command output stays parseable.
func setupLogger(w io.Writer, level string) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
