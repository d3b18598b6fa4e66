package domain

import (
	"context"
)

// TransactionRunner runs fn atomically. Nested calls join the outer
// transaction carried by ctx.
type TransactionRunner interface {
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
}
