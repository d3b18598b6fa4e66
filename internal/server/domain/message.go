package domain

import (
	"context"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

type MessageKind int

const (
	MessageDirect MessageKind = iota + 1
	MessageGroup
)

// MessageRecord is a stored message. Seq orders messages by insertion.
type MessageRecord struct {
	Seq       uint64
	Kind      MessageKind
	GroupID   uint64
	Sender    shared.Identity
	Recipient shared.Identity
	Content   string
	Timestamp int64
}

func (m MessageRecord) Message() shared.Message {
	return shared.Message{
		Sender:    m.Sender,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

type MessageRepository interface {
	Append(ctx context.Context, m MessageRecord) (uint64, error)
	ListDirect(ctx context.Context, a, b shared.Identity) ([]MessageRecord, error)
	ListGroup(ctx context.Context, groupID uint64) ([]MessageRecord, error)
	// Contacts lists the counterparts of id's direct messages in order of
	// first exchange.
	Contacts(ctx context.Context, id shared.Identity) ([]shared.Identity, error)
}
