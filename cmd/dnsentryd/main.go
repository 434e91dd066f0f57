// Command dnsentryd is the passive DNS monitoring agent: it captures DNS
// query traffic off an interface, classifies domains against an upstream
// classifier, and caches verdicts for in-line enforcement elsewhere.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sentrydns/classifierd/internal/agent"
	"github.com/sentrydns/classifierd/internal/config"
	"github.com/sentrydns/classifierd/internal/logger"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dnsentryd",
		Short:         "Passive DNS monitoring agent",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newRunCmd(), newHealthcheckCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <interface>",
		Short: "Capture DNS traffic on the given network interface and run the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), args[0])
		},
	}
}

func runAgent(parentCtx context.Context, iface string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.CaptureInterface = iface

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := agent.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("construct agent: %w", err)
	}

	log.Info().Str("interface", iface).Msg("starting dnsentryd")
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("agent run: %w", err)
	}
	log.Info().Msg("dnsentryd shut down cleanly")
	return nil
}

// newLogger builds a zerolog.Logger whose output is wrapped in a
// logger.RedactWriter so credentials never reach stdout, formatted as JSON
// or a human-readable console writer per cfg.LogFormat.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.LogFormat == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(logger.NewRedactWriter(out)).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func newHealthcheckCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Query the agent's local health endpoint and exit non-zero if unhealthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 2 * time.Second}
			resp, err := client.Get("http://" + addr + "/healthz")
			if err != nil {
				return fmt.Errorf("healthcheck request: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "address of the agent's health endpoint")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dnsentryd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}
