package server

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	"github.com/charadev96/ledgerchat/internal/server/service"
)

type ApproverConfig struct {
	Enabled bool
	Approver
}

// Node hosts a local ledger and the background workers serving it.
type Node struct {
	DB       *bun.DB
	Ledger   *service.LedgerService
	Approver ApproverConfig
	Logger   *zerolog.Logger
}

// Serve runs the workers until ctx is done.
func (n *Node) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if n.Approver.Enabled {
		a := n.Approver.Approver
		if a.Ledger == nil {
			a.Ledger = n.Ledger
		}
		g.Go(func() error {
			return a.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

func (n *Node) Close() error {
	if n.DB == nil {
		return nil
	}
	return n.DB.Close()
}
