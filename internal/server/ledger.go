package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/charadev96/ledgerchat/internal/server/repository"
	"github.com/charadev96/ledgerchat/internal/server/service"
	"github.com/charadev96/ledgerchat/internal/shared/eip712"
	"github.com/charadev96/ledgerchat/internal/shared/infra"
)

// OpenDB opens the sqlite database at dsn. A single connection is used so
// that writers never contend for the database lock.
func OpenDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

type LedgerConfig struct {
	Domain    eip712.Domain
	Freshness time.Duration
	Logger    *zerolog.Logger
}

// NewLedger creates the ledger tables in db if needed and returns the
// ledger service backed by them.
func NewLedger(ctx context.Context, db *bun.DB, cfg LedgerConfig) (*service.LedgerService, error) {
	runner := infra.NewBunTransactionRunner(db)
	s := &service.LedgerService{
		Domain:    cfg.Domain,
		Freshness: cfg.Freshness,
		TXRunner:  runner,
		Logger:    cfg.Logger,
	}
	err := runner.Exec(ctx, func(ctx context.Context) error {
		var err error
		if s.Groups, err = repository.NewBunGroupRepository(ctx, db); err != nil {
			return err
		}
		if s.Memberships, err = repository.NewBunMembershipRepository(ctx, db); err != nil {
			return err
		}
		if s.Messages, err = repository.NewBunMessageRepository(ctx, db); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
