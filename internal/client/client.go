package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/charadev96/ledgerchat/internal/client/access"
	"github.com/charadev96/ledgerchat/internal/client/channel"
	"github.com/charadev96/ledgerchat/internal/client/domain"
	"github.com/charadev96/ledgerchat/internal/client/poller"
	"github.com/charadev96/ledgerchat/internal/client/session"
	"github.com/charadev96/ledgerchat/internal/client/signin"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/eip712"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

type Config struct {
	Ledger      shared.Ledger
	Signer      domain.Signer
	Domain      eip712.Domain
	Credentials domain.CredentialRepository
	Names       domain.NameRepository
	Poll        poller.Config
	Now         func() time.Time
	Logger      *zerolog.Logger
}

// Client ties the active identity's session to the ledger and keeps the
// selected channel polled.
type Client struct {
	Session  *session.Manager
	Gate     *access.Gate
	Resolver *channel.Resolver
	Poller   *poller.Poller
	Names    domain.NameRepository
	Logger   *zerolog.Logger

	mu        sync.Mutex
	selection domain.Selection
	channel   domain.Channel
	unwatch   func()
	directory func()
}

func New(cfg Config) (*Client, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	logger := log.OrNop(cfg.Logger)
	sub := func(component string) *zerolog.Logger {
		l := log.Sub(*logger, component)
		return &l
	}

	if cfg.Poll.Logger == nil {
		cfg.Poll.Logger = sub("poller")
	}
	p, err := poller.New(cfg.Poll)
	if err != nil {
		return nil, err
	}

	var user shared.Identity
	if cfg.Signer != nil {
		user = cfg.Signer.Identity()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	sess := &session.Manager{
		User:  user,
		Store: cfg.Credentials,
		Issuer: &signin.Issuer{
			Signer: cfg.Signer,
			Domain: cfg.Domain,
			Now:    now,
			Logger: sub("signin"),
		},
		Logger: sub("session"),
	}

	return &Client{
		Session: sess,
		Gate: &access.Gate{
			Ledger: cfg.Ledger,
			Auth:   sess,
			Poller: p,
			Logger: sub("access"),
		},
		Resolver: &channel.Resolver{
			Ledger: cfg.Ledger,
			Auth:   sess,
			Poller: p,
			Logger: sub("channel"),
		},
		Poller: p,
		Names:  cfg.Names,
		Logger: logger,
	}, nil
}

func (c *Client) Identity() shared.Identity {
	return c.Session.Identity()
}

// Start polls the contact list and group listings until Close.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.directory != nil {
		return
	}
	c.directory = c.Resolver.WatchDirectory(ctx)
}

// Select switches the polled channel. The previous channel's polling is
// cancelled, including fetches in flight. A selection without an id keeps
// its view but polls nothing.
func (c *Client) Select(ctx context.Context, sel domain.Selection) error {
	ch, ok, err := sel.Channel()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	c.selection = sel
	c.channel = domain.Channel{}
	if !ok {
		return nil
	}
	c.channel = ch
	switch ch.Kind {
	case domain.ChannelGroup:
		gate := c.Gate.Watch(ctx, ch.GroupID, c.Identity())
		history := c.Poller.Subscribe(ctx, channel.HistoryKey(ch, c.Identity()), func(ctx context.Context) (any, error) {
			return c.groupHistory(ctx, ch.GroupID)
		})
		c.unwatch = func() {
			history()
			gate()
		}
	default:
		c.unwatch = c.Resolver.WatchHistory(ctx, ch)
	}

	c.Logger.Debug().
		Str("view", sel.View.String()).
		Str("channel", ch.Key()).
		Msg("selected")
	return nil
}

// groupHistory reads group history only once the identity is known to be a
// member, so non-members are never asked to sign.
func (c *Client) groupHistory(ctx context.Context, groupID uint64) ([]shared.Message, error) {
	state := c.Gate.Status(groupID, c.Identity()).State()
	if state == access.StateUnknown {
		var err error
		if state, err = c.Gate.State(ctx, groupID, c.Identity()); err != nil {
			return nil, err
		}
	}
	if state != access.StateMember {
		return nil, shared.ErrNotGroupMember
	}
	return c.Resolver.GroupHistory(ctx, groupID)
}

func (c *Client) Selection() domain.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// Snapshot is what the selected channel currently shows.
type Snapshot struct {
	Selection domain.Selection
	Channel   domain.Channel
	Access    access.State
	Messages  []shared.Message
	Loaded    bool
	UpdatedAt time.Time
	Err       error
	Declined  bool
}

func (s Snapshot) Notice() string {
	if s.Declined {
		return Notice(shared.ErrUserRejected)
	}
	return Notice(s.Err)
}

func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{Selection: c.selection, Channel: c.channel}
	c.mu.Unlock()

	snap.Declined = c.Session.Declined()
	if snap.Channel.Kind == 0 {
		return snap
	}
	if snap.Channel.Kind == domain.ChannelGroup {
		snap.Access = c.Gate.Status(snap.Channel.GroupID, c.Identity()).State()
	}
	if e, ok := c.Poller.Get(channel.HistoryKey(snap.Channel, c.Identity())); ok {
		if msgs, ok := e.Value.([]shared.Message); ok {
			snap.Messages = msgs
		}
		snap.Loaded = e.Loaded
		snap.UpdatedAt = e.UpdatedAt
		snap.Err = e.Err
	}
	return snap
}

// Send posts content to the selected channel.
func (c *Client) Send(ctx context.Context, content string) (shared.Receipt, error) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch.Kind == 0 {
		return shared.Receipt{}, fmt.Errorf("no channel selected")
	}
	return c.Resolver.Send(ctx, ch, content)
}

// SignIn issues a fresh credential, prompting even after a decline.
func (c *Client) SignIn(ctx context.Context) error {
	if _, err := c.Session.SignIn(ctx); err != nil {
		return err
	}
	c.refreshSelection()
	return nil
}

func (c *Client) SignOut() error {
	return c.Session.SignOut()
}

func (c *Client) refreshSelection() {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch.Kind == 0 {
		return
	}
	c.Poller.Refresh(channel.HistoryKey(ch, c.Identity()))
}

// DisplayName returns the local name override of id, falling back to the
// shortened address.
func (c *Client) DisplayName(id shared.Identity) string {
	if c.Names != nil {
		name, err := c.Names.Get(id)
		if err == nil {
			return name
		}
		if !errors.Is(err, shared.ErrNotExist) {
			c.Logger.Warn().
				Err(err).
				Msg("failed to read display names")
		}
	}
	return shared.ShortIdentity(id)
}

func (c *Client) SetDisplayName(id shared.Identity, name string) error {
	if c.Names == nil {
		return fmt.Errorf("no name store configured")
	}
	return c.Names.Set(id, name)
}

// Close stops all polling.
func (c *Client) Close() {
	c.mu.Lock()
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	if c.directory != nil {
		c.directory()
		c.directory = nil
	}
	c.mu.Unlock()
	c.Poller.Close()
}

// Notice renders err for the user. Declined signing reads as a notice,
// not a failure.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	var e *shared.Error
	if !errors.As(err, &e) {
		return "ledger unavailable: " + err.Error()
	}
	switch e.Kind {
	case shared.KindDeclined:
		return "you declined to sign"
	case shared.KindUnavailable:
		return "no signing capability connected"
	case shared.KindCredential:
		return "sign-in rejected (" + e.Reason + "), sign in again"
	default:
		return e.Reason
	}
}
