package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/charadev96/ledgerchat/internal/shared/log"
)

func main() {
	cmd := &cli.Command{
		Name:  "ledgerchat",
		Usage: "direct and group messaging over a ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Sources: cli.EnvVars("LEDGERCHAT_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "network name from the registry",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "ledger backend (evm, local)",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "approve every signature without prompting",
			},
		},
		Commands: []*cli.Command{
			signInCommand(),
			signOutCommand(),
			whoamiCommand(),
			dmCommand(),
			groupCommand(),
			watchCommand(),
			nameCommand(),
			ledgerCommand(),
			networkCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New("cli")
	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error().
			Err(err).
			Msg("command failed")
		stop()
		os.Exit(1)
	}
}
