package channel

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charadev96/ledgerchat/internal/client/clienttest"
	client "github.com/charadev96/ledgerchat/internal/client/domain"
	"github.com/charadev96/ledgerchat/internal/client/poller"
	"github.com/charadev96/ledgerchat/internal/client/wallet"
	"github.com/charadev96/ledgerchat/internal/server/ledgertest"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

var token = common.HexToAddress("0x00000000000000000000000000000000000070c3")

// countingLedger records credentialed history reads.
type countingLedger struct {
	shared.Ledger
	directReads atomic.Int32
}

func (l *countingLedger) GetDirectMessages(ctx context.Context, auth shared.SignIn, other shared.Identity) ([]shared.Message, error) {
	l.directReads.Add(1)
	return l.Ledger.GetDirectMessages(ctx, auth, other)
}

func newResolver(t *testing.T, ledger shared.Ledger, acct *clienttest.Account) *Resolver {
	p, err := poller.New(poller.Config{Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return &Resolver{Ledger: ledger, Auth: acct.Session, Poller: p}
}

func newGroup(name string) shared.NewGroup {
	return shared.NewGroup{
		Name: name,
		Criteria: shared.GroupCriteria{
			ChainID:        0x5afd,
			TokenAddress:   token,
			RequiredAmount: big.NewInt(1),
		},
	}
}

func TestDeclinedSigningMakesNoHistoryRequest(t *testing.T) {
	ledger := &countingLedger{Ledger: ledgertest.New(t)}
	prompts := 0
	alice := clienttest.NewAccount(t, func(context.Context, wallet.Request) (bool, error) {
		prompts++
		return false, nil
	})
	bob := clienttest.NewAccount(t, nil)
	r := newResolver(t, ledger, alice)

	_, err := r.DirectHistory(context.Background(), bob.ID())
	require.ErrorIs(t, err, shared.ErrUserRejected)
	assert.Equal(t, shared.KindDeclined, shared.KindOf(err))
	assert.Equal(t, int32(0), ledger.directReads.Load())
	assert.Equal(t, 1, prompts)

	_, err = alice.Store.Load(alice.ID())
	require.ErrorIs(t, err, shared.ErrNotExist)

	_, err = r.DirectHistory(context.Background(), bob.ID())
	require.ErrorIs(t, err, shared.ErrUserRejected)
	assert.Equal(t, 1, prompts)
	assert.Equal(t, int32(0), ledger.directReads.Load())
}

func TestFirstReadIssuesCredential(t *testing.T) {
	ledger := &countingLedger{Ledger: ledgertest.New(t)}
	alice := clienttest.NewAccount(t, nil)
	bob := clienttest.NewAccount(t, nil)
	r := newResolver(t, ledger, alice)

	msgs, err := r.DirectHistory(context.Background(), bob.ID())
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, int32(1), ledger.directReads.Load())

	cred, err := alice.Store.Load(alice.ID())
	require.NoError(t, err)
	assert.Equal(t, alice.ID(), cred.User)
}

func TestExpiredCredentialIsReissued(t *testing.T) {
	l := ledgertest.New(t)
	alice := clienttest.NewAccount(t, nil)
	r := newResolver(t, l, alice)

	stale := ledgertest.SignIn(t, alice.Key, time.Now().Add(-48*time.Hour))
	require.NoError(t, alice.Store.Save(alice.ID(), stale))

	_, err := r.ListDirectContacts(context.Background())
	require.NoError(t, err)

	cred, err := alice.Store.Load(alice.ID())
	require.NoError(t, err)
	assert.NotEqual(t, stale, cred)
}

func TestSendDirectValidation(t *testing.T) {
	ledger := &countingLedger{Ledger: ledgertest.New(t)}
	alice := clienttest.NewAccount(t, nil)
	bob := clienttest.NewAccount(t, nil)
	r := newResolver(t, ledger, alice)
	ctx := context.Background()

	for _, content := range []string{"", "hi"} {
		_, err := r.SendDirect(ctx, alice.ID(), content)
		require.ErrorIs(t, err, shared.ErrCannotMessageSelf)
	}
	_, err := r.SendDirect(ctx, shared.Identity{}, "hi")
	require.ErrorIs(t, err, shared.ErrInvalidRecipient)
	_, err = r.SendDirect(ctx, bob.ID(), "   ")
	require.ErrorIs(t, err, shared.ErrEmptyMessage)

	_, err = alice.Store.Load(alice.ID())
	require.ErrorIs(t, err, shared.ErrNotExist)
}

func TestDirectConversation(t *testing.T) {
	l := ledgertest.New(t)
	alice := clienttest.NewAccount(t, nil)
	bob := clienttest.NewAccount(t, nil)
	ra := newResolver(t, l, alice)
	rb := newResolver(t, l, bob)
	ctx := context.Background()

	_, err := ra.SendDirect(ctx, bob.ID(), "hi bob")
	require.NoError(t, err)
	_, err = rb.SendDirect(ctx, alice.ID(), "hi alice")
	require.NoError(t, err)
	_, err = ra.SendDirect(ctx, bob.ID(), "how are you")
	require.NoError(t, err)

	msgs, err := rb.DirectHistory(ctx, alice.ID())
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"hi bob", "hi alice", "how are you"}, contents(msgs))
	assert.Equal(t, alice.ID(), msgs[0].Sender)

	contacts, err := ra.ListDirectContacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []shared.Identity{bob.ID()}, contacts)
}

func TestGroupRoundTrip(t *testing.T) {
	l := ledgertest.New(t)
	owner := clienttest.NewAccount(t, nil)
	outsider := clienttest.NewAccount(t, nil)
	r := newResolver(t, l, owner)
	ro := newResolver(t, l, outsider)
	ctx := context.Background()

	rcpt, err := r.CreateGroup(ctx, newGroup(" friends "))
	require.NoError(t, err)
	g := rcpt.GroupID

	_, err = r.SendGroup(ctx, g, "first")
	require.NoError(t, err)
	_, err = r.SendGroup(ctx, g, "hello")
	require.NoError(t, err)

	msgs, err := r.GroupHistory(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "hello"}, contents(msgs))
	assert.Equal(t, owner.ID(), msgs[1].Sender)

	_, err = ro.GroupHistory(ctx, g)
	require.ErrorIs(t, err, shared.ErrNotGroupMember)
	assert.Equal(t, shared.KindAuthorization, shared.KindOf(err))

	groups, err := r.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "friends", groups[0].Name)

	mine, err := r.MyGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{g}, mine)
}

func TestGroupAdministration(t *testing.T) {
	l := ledgertest.New(t)
	owner := clienttest.NewAccount(t, nil)
	joiner := clienttest.NewAccount(t, nil)
	r := newResolver(t, l, owner)
	ctx := context.Background()

	rcpt, err := r.CreateGroup(ctx, newGroup("g"))
	require.NoError(t, err)
	g := rcpt.GroupID

	_, err = l.RequestToJoinGroup(ctx, joiner.SignIn(t), g)
	require.NoError(t, err)
	pending, err := r.PendingMembers(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, []shared.Identity{joiner.ID()}, pending)

	_, err = r.AddMember(ctx, g, joiner.ID())
	require.NoError(t, err)
	details, err := r.GroupDetails(ctx, g)
	require.NoError(t, err)
	assert.Contains(t, details.Members, joiner.ID())

	_, err = r.RemoveMember(ctx, g, owner.ID())
	require.ErrorIs(t, err, shared.ErrCannotRemoveSelf)
	_, err = r.AddMember(ctx, g, shared.Identity{})
	require.ErrorIs(t, err, shared.ErrInvalidMemberAddress)

	_, err = r.RemoveMember(ctx, g, joiner.ID())
	require.NoError(t, err)
	details, err = r.GroupDetails(ctx, g)
	require.NoError(t, err)
	assert.NotContains(t, details.Members, joiner.ID())
}

func TestCreateGroupValidation(t *testing.T) {
	r := newResolver(t, ledgertest.New(t), clienttest.NewAccount(t, nil))
	ctx := context.Background()

	_, err := r.CreateGroup(ctx, newGroup(""))
	require.ErrorIs(t, err, shared.ErrEmptyGroupName)

	g := newGroup("g")
	g.Criteria.TokenAddress = shared.Identity{}
	_, err = r.CreateGroup(ctx, g)
	require.ErrorIs(t, err, shared.ErrInvalidTokenAddress)

	g = newGroup("g")
	g.Criteria.RequiredAmount = nil
	_, err = r.CreateGroup(ctx, g)
	require.ErrorIs(t, err, shared.ErrInvalidRequiredAmount)
}

func TestWatchHistory(t *testing.T) {
	l := ledgertest.New(t)
	alice := clienttest.NewAccount(t, nil)
	bob := clienttest.NewAccount(t, nil)
	r := newResolver(t, l, alice)
	ctx := context.Background()
	ch := client.DirectChannel(bob.ID())

	cancel := r.WatchHistory(ctx, ch)
	defer cancel()

	_, err := l.SendDirectMessage(ctx, bob.SignIn(t), alice.ID(), "ping")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs, ok := poller.Value[[]shared.Message](r.Poller, HistoryKey(ch, alice.ID()))
		return ok && len(msgs) == 1 && msgs[0].Content == "ping"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDedupe(t *testing.T) {
	a, b := common.HexToAddress("0xa"), common.HexToAddress("0xb")
	assert.Equal(t, []shared.Identity{a, b}, dedupe([]shared.Identity{a, b, a, b}))
}

func contents(msgs []shared.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
