// Package channel resolves direct and group message streams and submits
// messages and group administration writes.
package channel

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	client "github.com/charadev96/ledgerchat/internal/client/domain"
	"github.com/charadev96/ledgerchat/internal/client/poller"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

const (
	OpContacts = "getDirectMessageContacts"
	OpHistory  = "getMessages"
	OpGroups   = "getAllGroups"
	OpMyGroups = "getUserGroups"
)

type Resolver struct {
	Ledger shared.Ledger
	Auth   client.Authorizer
	Poller *poller.Poller
	Logger *zerolog.Logger
}

func (r *Resolver) self() shared.Identity {
	return r.Auth.Identity()
}

// ListDirectContacts lists the identities the authorized identity exchanged
// direct messages with, without duplicates.
func (r *Resolver) ListDirectContacts(ctx context.Context) ([]shared.Identity, error) {
	var contacts []shared.Identity
	err := r.Auth.Do(ctx, func(ctx context.Context, auth shared.SignIn) (err error) {
		contacts, err = r.Ledger.GetDirectMessageContacts(ctx, auth)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dedupe(contacts), nil
}

// DirectHistory returns the conversation with other, oldest first.
func (r *Resolver) DirectHistory(ctx context.Context, other shared.Identity) ([]shared.Message, error) {
	var msgs []shared.Message
	err := r.Auth.Do(ctx, func(ctx context.Context, auth shared.SignIn) (err error) {
		msgs, err = r.Ledger.GetDirectMessages(ctx, auth, other)
		return err
	})
	return msgs, err
}

// GroupHistory returns the messages of a group, oldest first. Reading as a
// non-member fails with shared.ErrNotGroupMember.
func (r *Resolver) GroupHistory(ctx context.Context, groupID uint64) ([]shared.Message, error) {
	var msgs []shared.Message
	err := r.Auth.Do(ctx, func(ctx context.Context, auth shared.SignIn) (err error) {
		msgs, err = r.Ledger.GetGroupMessages(ctx, auth, groupID)
		return err
	})
	return msgs, err
}

func (r *Resolver) History(ctx context.Context, ch client.Channel) ([]shared.Message, error) {
	if ch.Kind == client.ChannelGroup {
		return r.GroupHistory(ctx, ch.GroupID)
	}
	return r.DirectHistory(ctx, ch.Peer)
}

func (r *Resolver) SendDirect(ctx context.Context, to shared.Identity, content string) (shared.Receipt, error) {
	if to == (shared.Identity{}) {
		return shared.Receipt{}, shared.ErrInvalidRecipient
	}
	if to == r.self() {
		return shared.Receipt{}, shared.ErrCannotMessageSelf
	}
	if strings.TrimSpace(content) == "" {
		return shared.Receipt{}, shared.ErrEmptyMessage
	}
	var rcpt shared.Receipt
	err := r.Auth.Do(ctx, func(ctx context.Context, auth shared.SignIn) (err error) {
		rcpt, err = r.Ledger.SendDirectMessage(ctx, auth, to, content)
		return err
	})
	if err != nil {
		return rcpt, err
	}
	r.logSent(client.DirectChannel(to), rcpt)
	r.refresh(HistoryKey(client.DirectChannel(to), r.self()), ContactsKey(r.self()))
	return rcpt, nil
}

func (r *Resolver) SendGroup(ctx context.Context, groupID uint64, content string) (shared.Receipt, error) {
	if strings.TrimSpace(content) == "" {
		return shared.Receipt{}, shared.ErrEmptyMessage
	}
	var rcpt shared.Receipt
	err := r.Auth.Do(ctx, func(ctx context.Context, auth shared.SignIn) (err error) {
		rcpt, err = r.Ledger.SendGroupMessage(ctx, auth, groupID, content)
		return err
	})
	if err != nil {
		return rcpt, err
	}
	r.logSent(client.GroupChannel(groupID), rcpt)
	r.refresh(HistoryKey(client.GroupChannel(groupID), r.self()))
	return rcpt, nil
}

func (r *Resolver) Send(ctx context.Context, ch client.Channel, content string) (shared.Receipt, error) {
	if ch.Kind == client.ChannelGroup {
		return r.SendGroup(ctx, ch.GroupID, content)
	}
	return r.SendDirect(ctx, ch.Peer, content)
}

func (r *Resolver) logSent(ch client.Channel, rcpt shared.Receipt) {
	log.OrNop(r.Logger).Info().
		Str("channel", ch.Key()).
		Str("tx", rcpt.TxHash.Hex()).
		Msg("message sent")
}

func HistoryKey(ch client.Channel, id shared.Identity) poller.Key {
	return poller.Key{Op: OpHistory, Channel: ch.Key(), Identity: id}
}

func ContactsKey(id shared.Identity) poller.Key {
	return poller.Key{Op: OpContacts, Identity: id}
}

func GroupsKey() poller.Key {
	return poller.Key{Op: OpGroups}
}

func MyGroupsKey(id shared.Identity) poller.Key {
	return poller.Key{Op: OpMyGroups, Identity: id}
}

// WatchHistory polls the history of ch until cancel is called.
func (r *Resolver) WatchHistory(ctx context.Context, ch client.Channel) (cancel func()) {
	return r.Poller.Subscribe(ctx, HistoryKey(ch, r.self()), func(ctx context.Context) (any, error) {
		return r.History(ctx, ch)
	})
}

// WatchDirectory polls the contact list and the group listings.
func (r *Resolver) WatchDirectory(ctx context.Context) (cancel func()) {
	self := r.self()
	cancels := []func(){
		r.Poller.Subscribe(ctx, ContactsKey(self), func(ctx context.Context) (any, error) {
			return r.ListDirectContacts(ctx)
		}),
		r.Poller.Subscribe(ctx, GroupsKey(), func(ctx context.Context) (any, error) {
			return r.Groups(ctx)
		}),
		r.Poller.Subscribe(ctx, MyGroupsKey(self), func(ctx context.Context) (any, error) {
			return r.MyGroups(ctx)
		}),
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func (r *Resolver) refresh(keys ...poller.Key) {
	if r.Poller == nil {
		return
	}
	for _, k := range keys {
		r.Poller.Refresh(k)
	}
}

func dedupe(ids []shared.Identity) []shared.Identity {
	seen := make(map[shared.Identity]bool, len(ids))
	out := make([]shared.Identity, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
