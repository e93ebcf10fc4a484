// Command vchat syncs a Gmail mailbox into chat-style conversations and
// serves them over a local HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/99designs/keyring"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"github.com/vdavid/vchat/internal/auth"
	"github.com/vdavid/vchat/internal/config"
	"github.com/vdavid/vchat/internal/logging"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyLogger
	contextKeyKeyring
)

func getConfig(ctx *cli.Context) *config.Config {
	return ctx.Context.Value(contextKeyConfig).(*config.Config)
}

func getLogger(ctx *cli.Context) zerolog.Logger {
	return ctx.Context.Value(contextKeyLogger).(zerolog.Logger)
}

func getKeyring(ctx *cli.Context) keyring.Keyring {
	return ctx.Context.Value(contextKeyKeyring).(keyring.Keyring)
}

// prepareApp loads the configuration, sets up logging and opens the keyring.
// Tests put their own values in the context first.
func prepareApp(ctx *cli.Context) error {
	if ctx.Context.Value(contextKeyConfig) != nil {
		return nil
	}

	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}
	logger := logging.Default(cfg.LogLevel, cfg.LogPretty || ctx.Bool("pretty"))
	log.Logger = logger

	ring, err := auth.OpenKeyring(cfg.KeyringDir, cfg.KeyringPassword)
	if err != nil {
		return err
	}

	newCtx := context.WithValue(ctx.Context, contextKeyConfig, cfg)
	newCtx = context.WithValue(newCtx, contextKeyLogger, logger)
	newCtx = context.WithValue(newCtx, contextKeyKeyring, ring)
	ctx.Context = newCtx
	return nil
}

// loadApp wires the full component graph for commands that use the mailbox.
func loadApp(ctx *cli.Context) (*App, error) {
	return newApp(ctx.Context, getConfig(ctx), getKeyring(ctx), getLogger(ctx))
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "vchat",
		Usage: "Read and write email as chat conversations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override VCHAT_LOG_LEVEL",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Human-readable log output",
			},
		},
		Before: prepareApp,
		Commands: []*cli.Command{
			serveCommand,
			syncCommand,
			sendCommand,
			loginCommand,
			logoutCommand,
			whoamiCommand,
		},
	}
}

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
