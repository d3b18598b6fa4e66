package repository

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	server "github.com/charadev96/ledgerchat/internal/server/domain"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/infra"
)

type BunMessageRepository struct {
	db *bun.DB
}

func NewBunMessageRepository(ctx context.Context, db *bun.DB) (*BunMessageRepository, error) {
	r := &BunMessageRepository{
		db: db,
	}
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewCreateTable().
		Model((*message)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to create repository: %w", err)
	}
	return r, nil
}

func (r *BunMessageRepository) Append(ctx context.Context, m server.MessageRecord) (uint64, error) {
	tx := infra.ExtractTx(ctx, r.db)
	row := new(message)
	if err := copyRow(row, &m); err != nil {
		return 0, err
	}
	row.Seq = 0
	_, err := tx.NewInsert().
		Model(row).
		Returning("seq").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}
	return uint64(row.Seq), nil
}

func (r *BunMessageRepository) ListDirect(ctx context.Context, a, b shared.Identity) ([]server.MessageRecord, error) {
	tx := infra.ExtractTx(ctx, r.db)
	ka, kb := shared.IdentityKey(a), shared.IdentityKey(b)
	var rows []message
	err := tx.NewSelect().
		Model(&rows).
		Where("kind = ?", server.MessageDirect).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("sender = ?", ka).Where("recipient = ?", kb)
				}).
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("sender = ?", kb).Where("recipient = ?", ka)
				})
		}).
		Order("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list direct messages: %w", err)
	}
	return toRecords(rows)
}

func (r *BunMessageRepository) ListGroup(ctx context.Context, groupID uint64) ([]server.MessageRecord, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var rows []message
	err := tx.NewSelect().
		Model(&rows).
		Where("kind = ?", server.MessageGroup).
		Where("group_id = ?", int64(groupID)).
		Order("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list group messages: %w", err)
	}
	return toRecords(rows)
}

func (r *BunMessageRepository) Contacts(ctx context.Context, id shared.Identity) ([]shared.Identity, error) {
	tx := infra.ExtractTx(ctx, r.db)
	key := shared.IdentityKey(id)
	var rows []message
	err := tx.NewSelect().
		Model(&rows).
		Column("seq", "sender", "recipient").
		Where("kind = ?", server.MessageDirect).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("sender = ?", key).WhereOr("recipient = ?", key)
		}).
		Order("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	seen := make(map[string]bool)
	var contacts []shared.Identity
	for _, row := range rows {
		other := row.Recipient
		if other == key {
			other = row.Sender
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		contacts = append(contacts, common.HexToAddress(other))
	}
	return contacts, nil
}

func toRecords(rows []message) ([]server.MessageRecord, error) {
	records := make([]server.MessageRecord, 0, len(rows))
	if err := copyRow(&records, &rows); err != nil {
		return nil, err
	}
	return records, nil
}

type message struct {
	bun.BaseModel `bun:"table:messages"`

	Seq       int64              `bun:",pk,autoincrement"`
	Kind      server.MessageKind `bun:",notnull"`
	GroupID   int64              `bun:",nullzero"`
	Sender    string             `bun:",notnull"`
	Recipient string             `bun:",nullzero"`
	Content   string             `bun:",notnull"`
	Timestamp int64              `bun:",notnull"`
}
