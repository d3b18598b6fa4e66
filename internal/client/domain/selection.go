package domain

import (
	"fmt"
	"strconv"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

type View int

const (
	ViewNone View = iota
	ViewDirect
	ViewGroup
)

func (v View) String() string {
	switch v {
	case ViewDirect:
		return "dm"
	case ViewGroup:
		return "group"
	default:
		return "none"
	}
}

// Selection is the locally chosen view and the id shown in it.
type Selection struct {
	View View
	ID   string
}

func NewSelection(view View, id string) Selection {
	if view == ViewNone {
		return Selection{}
	}
	return Selection{View: view, ID: id}
}

type ChannelKind int

const (
	ChannelDirect ChannelKind = iota + 1
	ChannelGroup
)

// Channel is a resolved direct or group message stream.
type Channel struct {
	Kind    ChannelKind
	Peer    shared.Identity
	GroupID uint64
}

func DirectChannel(peer shared.Identity) Channel {
	return Channel{Kind: ChannelDirect, Peer: peer}
}

func GroupChannel(id uint64) Channel {
	return Channel{Kind: ChannelGroup, GroupID: id}
}

func (c Channel) Key() string {
	switch c.Kind {
	case ChannelDirect:
		return "dm:" + shared.IdentityKey(c.Peer)
	case ChannelGroup:
		return "group:" + strconv.FormatUint(c.GroupID, 10)
	default:
		return ""
	}
}

// Channel resolves the selection. ok is false when nothing is selected.
func (s Selection) Channel() (Channel, bool, error) {
	if s.View == ViewNone || s.ID == "" {
		return Channel{}, false, nil
	}
	switch s.View {
	case ViewDirect:
		peer, err := shared.ParseIdentity(s.ID)
		if err != nil {
			return Channel{}, false, err
		}
		return DirectChannel(peer), true, nil
	case ViewGroup:
		id, err := strconv.ParseUint(s.ID, 10, 64)
		if err != nil {
			return Channel{}, false, fmt.Errorf("invalid group id %q: %w", s.ID, err)
		}
		return GroupChannel(id), true, nil
	default:
		return Channel{}, false, fmt.Errorf("unknown view %d", s.View)
	}
}
