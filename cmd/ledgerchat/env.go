package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v3"

	"github.com/charadev96/ledgerchat/internal/client"
	"github.com/charadev96/ledgerchat/internal/client/evm"
	"github.com/charadev96/ledgerchat/internal/client/poller"
	"github.com/charadev96/ledgerchat/internal/client/repository"
	"github.com/charadev96/ledgerchat/internal/client/wallet"
	"github.com/charadev96/ledgerchat/internal/server"
	"github.com/charadev96/ledgerchat/internal/server/service"
	"github.com/charadev96/ledgerchat/internal/shared"
	shareddomain "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

type env struct {
	cfg     shared.Config
	network shared.NetworkInfo
	logger  zerolog.Logger
	signer  *wallet.KeySigner
	ledger  shareddomain.Ledger
	local   *service.LedgerService
	db      *bun.DB
	client  *client.Client
	closers []func()
}

func loadConfig(ctx context.Context, cmd *cli.Command) (shared.Config, error) {
	cfg, err := shared.LoadConfig(ctx, cmd.String("config"))
	if err != nil {
		return cfg, err
	}
	if cmd.IsSet("network") {
		cfg.Network = cmd.String("network")
	}
	if cmd.IsSet("backend") {
		cfg.Backend = cmd.String("backend")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if err := shared.ConfigureLogging(cfg.LogLevel); err != nil {
		return cfg, err
	}
	return cfg, os.MkdirAll(cfg.DataDir, 0700)
}

// openEnv loads the configuration, the signing key and the ledger backend,
// and assembles a client for the local identity.
func openEnv(ctx context.Context, cmd *cli.Command) (*env, error) {
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: log.New("client")}

	e.network, err = cfg.ResolveNetwork()
	if err != nil {
		return nil, err
	}

	key, err := wallet.EnsureSigningKey(cfg.KeyFile, &e.logger)
	if err != nil {
		return nil, err
	}
	confirm := wallet.TerminalConfirm
	if cmd.Bool("yes") {
		confirm = wallet.AutoConfirm
	}
	e.signer = &wallet.KeySigner{Key: key, Confirm: confirm, Logger: &e.logger}

	domain := cfg.SignInDomain(e.network)
	switch cfg.Backend {
	case shared.BackendLocal:
		err = e.openLocal(ctx)
	default:
		err = e.openEVM(ctx)
	}
	if err != nil {
		e.close()
		return nil, err
	}

	e.client, err = client.New(client.Config{
		Ledger:      e.ledger,
		Signer:      e.signer,
		Domain:      domain,
		Credentials: repository.NewTOMLCredentialRepository(cfg.CredentialsFile()),
		Names:       repository.NewTOMLNameRepository(cfg.NamesFile()),
		Poll: poller.Config{
			Interval:         cfg.PollInterval,
			FailureThreshold: cfg.FailureThreshold,
			OnError: func(key poller.Key, err error) {
				e.logger.Warn().
					Str("key", key.String()).
					Err(err).
					Msg("ledger reads keep failing, showing cached data")
			},
		},
		Logger: &e.logger,
	})
	if err != nil {
		e.close()
		return nil, err
	}
	e.closers = append(e.closers, e.client.Close)
	return e, nil
}

func (e *env) openEVM(ctx context.Context) error {
	eth, err := evm.Dial(ctx, e.network.RPC)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, eth.Close)

	chainID := e.network.ChainID
	transact := func(ctx context.Context) (*bind.TransactOpts, error) {
		return e.signer.Transactor(ctx, chainID)
	}
	contract := evm.NewContract(e.network.Contract, eth, transact, &e.logger)
	if err := contract.CheckDomain(ctx, e.cfg.SignInDomain(e.network)); err != nil {
		e.logger.Warn().
			Err(err).
			Msg("contract may reject sign-in credentials")
	}
	e.ledger = contract
	return nil
}

func (e *env) openLocal(ctx context.Context) error {
	db, err := server.OpenDB(e.cfg.LedgerDB)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, func() { db.Close() })

	logger := log.New("ledger")
	l, err := server.NewLedger(ctx, db, server.LedgerConfig{
		Domain:    e.cfg.SignInDomain(e.network),
		Freshness: e.cfg.FreshnessWindow,
		Logger:    &logger,
	})
	if err != nil {
		return err
	}
	e.db = db
	e.local = l
	e.ledger = l
	return nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// withEnv runs fn with an opened environment and closes it afterwards.
func withEnv(fn func(ctx context.Context, cmd *cli.Command, e *env) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		e, err := openEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer e.close()
		return report(fn(ctx, cmd, e))
	}
}

// report turns ledger rejections and declined signatures into notices.
func report(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shareddomain.ErrUserRejected) {
		fmt.Fprintln(os.Stderr, client.Notice(err))
		return nil
	}
	var le *shareddomain.Error
	if errors.As(err, &le) {
		return cli.Exit(client.Notice(err), 2)
	}
	return err
}
