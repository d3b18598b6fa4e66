// Package evm binds the messaging ledger deployed as an EVM contract.
package evm

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/eip712"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

//go:embed messaging.abi.json
var abiJSON string

var contractABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid messaging ABI: %v", err))
	}
	return parsed
}

// Backend is what the contract needs from a node connection. ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// TransactorFunc yields signing options for a single write.
type TransactorFunc func(ctx context.Context) (*bind.TransactOpts, error)

var _ shared.Ledger = (*Contract)(nil)

type Contract struct {
	address  common.Address
	backend  Backend
	bound    *bind.BoundContract
	transact TransactorFunc
	logger   *zerolog.Logger
}

func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return c, nil
}

func NewContract(address common.Address, backend Backend, transact TransactorFunc, logger *zerolog.Logger) *Contract {
	return &Contract{
		address:  address,
		backend:  backend,
		bound:    bind.NewBoundContract(address, contractABI, backend, backend, backend),
		transact: transact,
		logger:   log.OrNop(logger),
	}
}

func (c *Contract) Address() common.Address {
	return c.address
}

// CheckDomain compares the contract's domain separator with the one the
// client signs credentials for.
func (c *Contract) CheckDomain(ctx context.Context, d eip712.Domain) error {
	want, err := eip712.Separator(d)
	if err != nil {
		return err
	}
	var out []any
	if err := c.call(ctx, &out, "DOMAIN_SEPARATOR"); err != nil {
		return err
	}
	got := *abi.ConvertType(out[0], new([32]byte)).(*[32]byte)
	if common.Hash(got) != want {
		return fmt.Errorf("sign-in domain mismatch: contract %s, client %s", common.Hash(got).Hex(), want.Hex())
	}
	return nil
}

type sigTuple struct {
	R [32]byte
	S [32]byte
	V *big.Int
}

type signInTuple struct {
	User common.Address
	Time uint32
	Rsv  sigTuple
}

func packSignIn(auth shared.SignIn) signInTuple {
	return signInTuple{
		User: auth.User,
		Time: auth.Time,
		Rsv: sigTuple{
			R: auth.RSV.R,
			S: auth.RSV.S,
			V: big.NewInt(int64(auth.RSV.V)),
		},
	}
}

type criteriaTuple struct {
	ChainId        *big.Int
	TokenAddress   common.Address
	RequiredAmount *big.Int
}

type groupTuple struct {
	GroupId  *big.Int
	Name     string
	Members  []common.Address
	Criteria criteriaTuple
	Exists   bool
}

type messageTuple struct {
	Sender    common.Address
	Content   string
	Timestamp *big.Int
}

type pendingTuple struct {
	GroupId *big.Int
	Member  common.Address
}

type groupCreatedEvent struct {
	GroupId *big.Int
	Name    string
	Creator common.Address
}

func groupID(id uint64) *big.Int {
	return new(big.Int).SetUint64(id)
}

func (c *Contract) call(ctx context.Context, out *[]any, method string, params ...any) error {
	opts := &bind.CallOpts{Context: ctx}
	if err := c.bound.Call(opts, out, method, params...); err != nil {
		return fmt.Errorf("%s: %w", method, decodeRevert(err))
	}
	return nil
}

func (c *Contract) IsGroupMember(ctx context.Context, id uint64, user shared.Identity) (bool, error) {
	var out []any
	if err := c.call(ctx, &out, "isGroupMember", groupID(id), user); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *Contract) IsPendingMember(ctx context.Context, id uint64, user shared.Identity) (bool, error) {
	var out []any
	if err := c.call(ctx, &out, "isPendingMember", groupID(id), user); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *Contract) GetAllGroups(ctx context.Context) ([]shared.Group, error) {
	var out []any
	if err := c.call(ctx, &out, "getAllGroups"); err != nil {
		return nil, err
	}
	rows := *abi.ConvertType(out[0], new([]groupTuple)).(*[]groupTuple)
	groups := make([]shared.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, shared.Group{
			ID:      r.GroupId.Uint64(),
			Name:    r.Name,
			Members: r.Members,
			Criteria: shared.GroupCriteria{
				ChainID:        r.Criteria.ChainId.Uint64(),
				TokenAddress:   r.Criteria.TokenAddress,
				RequiredAmount: r.Criteria.RequiredAmount,
			},
			Exists: r.Exists,
		})
	}
	return groups, nil
}

func (c *Contract) GetGroupDetails(ctx context.Context, id uint64) (shared.GroupDetails, error) {
	var out []any
	if err := c.call(ctx, &out, "getGroupDetails", groupID(id)); err != nil {
		return shared.GroupDetails{}, err
	}
	return shared.GroupDetails{
		Name:    *abi.ConvertType(out[0], new(string)).(*string),
		Members: *abi.ConvertType(out[1], new([]common.Address)).(*[]common.Address),
	}, nil
}

func (c *Contract) GetPendingMembers(ctx context.Context, id uint64) ([]shared.Identity, error) {
	return c.addresses(ctx, "getPendingMembers", groupID(id))
}

func (c *Contract) GetAllPendingMemberships(ctx context.Context) ([]shared.PendingMembership, error) {
	var out []any
	if err := c.call(ctx, &out, "getAllPendingMemberships"); err != nil {
		return nil, err
	}
	rows := *abi.ConvertType(out[0], new([]pendingTuple)).(*[]pendingTuple)
	pending := make([]shared.PendingMembership, 0, len(rows))
	for _, r := range rows {
		pending = append(pending, shared.PendingMembership{GroupID: r.GroupId.Uint64(), Member: r.Member})
	}
	return pending, nil
}

func (c *Contract) GetUserGroupsByAddress(ctx context.Context, user shared.Identity) ([]uint64, error) {
	return c.ids(ctx, "getUserGroupsByAddress", user)
}

func (c *Contract) GetDirectMessageContacts(ctx context.Context, auth shared.SignIn) ([]shared.Identity, error) {
	return c.addresses(ctx, "getDirectMessageContacts", packSignIn(auth))
}

func (c *Contract) GetDirectMessages(ctx context.Context, auth shared.SignIn, other shared.Identity) ([]shared.Message, error) {
	return c.messages(ctx, "getDirectMessages", packSignIn(auth), other)
}

func (c *Contract) GetGroupMessages(ctx context.Context, auth shared.SignIn, id uint64) ([]shared.Message, error) {
	return c.messages(ctx, "getGroupMessages", packSignIn(auth), groupID(id))
}

func (c *Contract) GetUserGroups(ctx context.Context, auth shared.SignIn) ([]uint64, error) {
	return c.ids(ctx, "getUserGroups", packSignIn(auth))
}

func (c *Contract) addresses(ctx context.Context, method string, params ...any) ([]common.Address, error) {
	var out []any
	if err := c.call(ctx, &out, method, params...); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

func (c *Contract) ids(ctx context.Context, method string, params ...any) ([]uint64, error) {
	var out []any
	if err := c.call(ctx, &out, method, params...); err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}

func (c *Contract) messages(ctx context.Context, method string, params ...any) ([]shared.Message, error) {
	var out []any
	if err := c.call(ctx, &out, method, params...); err != nil {
		return nil, err
	}
	rows := *abi.ConvertType(out[0], new([]messageTuple)).(*[]messageTuple)
	msgs := make([]shared.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, shared.Message{
			Sender:    r.Sender,
			Content:   r.Content,
			Timestamp: r.Timestamp.Int64(),
		})
	}
	return msgs, nil
}

func (c *Contract) CreateGroup(ctx context.Context, auth shared.SignIn, g shared.NewGroup) (shared.Receipt, error) {
	amount := g.Criteria.RequiredAmount
	if amount == nil {
		amount = new(big.Int)
	}
	receipt, tx, err := c.write(ctx, "createGroup",
		packSignIn(auth), g.Name, new(big.Int).SetUint64(g.Criteria.ChainID), g.Criteria.TokenAddress, amount,
	)
	if err != nil {
		return shared.Receipt{}, err
	}
	res := shared.Receipt{TxHash: tx.Hash()}
	for _, l := range receipt.Logs {
		if l.Address != c.address || len(l.Topics) == 0 || l.Topics[0] != contractABI.Events["GroupCreated"].ID {
			continue
		}
		var ev groupCreatedEvent
		if err := c.bound.UnpackLog(&ev, "GroupCreated", *l); err != nil {
			return res, fmt.Errorf("failed to decode GroupCreated: %w", err)
		}
		res.GroupID = ev.GroupId.Uint64()
		break
	}
	return res, nil
}

func (c *Contract) RequestToJoinGroup(ctx context.Context, auth shared.SignIn, id uint64) (shared.Receipt, error) {
	return c.receipt(c.write(ctx, "requestToJoinGroup", packSignIn(auth), groupID(id)))
}

func (c *Contract) AddGroupMember(ctx context.Context, auth shared.SignIn, id uint64, member shared.Identity) (shared.Receipt, error) {
	return c.receipt(c.write(ctx, "addGroupMember", packSignIn(auth), groupID(id), member))
}

func (c *Contract) RemoveGroupMember(ctx context.Context, auth shared.SignIn, id uint64, member shared.Identity) (shared.Receipt, error) {
	return c.receipt(c.write(ctx, "removeGroupMember", packSignIn(auth), groupID(id), member))
}

func (c *Contract) SendDirectMessage(ctx context.Context, auth shared.SignIn, to shared.Identity, content string) (shared.Receipt, error) {
	return c.receipt(c.write(ctx, "sendDirectMessage", packSignIn(auth), to, content))
}

func (c *Contract) SendGroupMessage(ctx context.Context, auth shared.SignIn, id uint64, content string) (shared.Receipt, error) {
	return c.receipt(c.write(ctx, "sendGroupMessage", packSignIn(auth), groupID(id), content))
}

func (c *Contract) receipt(_ *types.Receipt, tx *types.Transaction, err error) (shared.Receipt, error) {
	if err != nil {
		return shared.Receipt{}, err
	}
	return shared.Receipt{TxHash: tx.Hash()}, nil
}

// write simulates the call first so a rejected write surfaces its reason
// before anything is signed. A transaction reverted once mined is replayed
// as a call at its block to recover the reason.
func (c *Contract) write(ctx context.Context, method string, params ...any) (*types.Receipt, *types.Transaction, error) {
	if c.transact == nil {
		return nil, nil, shared.ErrSigningUnavailable
	}
	opts, err := c.transact(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts.Context = ctx

	input, err := contractABI.Pack(method, params...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{From: opts.From, To: &c.address, Data: input}
	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", method, decodeRevert(err))
	}

	tx, err := c.bound.RawTransact(opts, input)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", method, decodeRevert(err))
	}
	c.logger.Debug().
		Str("method", method).
		Str("tx", tx.Hash().Hex()).
		Msg("transaction submitted")

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, tx, fmt.Errorf("%s: failed waiting for %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, tx, fmt.Errorf("%s: %w", method, c.replay(ctx, opts.From, tx, receipt))
	}
	return receipt, tx, nil
}

func (c *Contract) replay(ctx context.Context, from common.Address, tx *types.Transaction, receipt *types.Receipt) error {
	msg := ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	_, err := c.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if err != nil {
		if reason := decodeRevert(err); shared.KindOf(reason) != shared.KindTransient {
			return reason
		}
	}
	return fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
}

// decodeRevert maps revert data carrying a contract custom error or a
// revert string to the matching ledger error. Other errors pass through.
func decodeRevert(err error) error {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return err
	}
	data, ok := revertData(de.ErrorData())
	if !ok {
		return err
	}
	if reason, ok := revertReason(data); ok {
		return shared.ReasonError(reason)
	}
	return err
}

func revertData(v any) ([]byte, bool) {
	switch d := v.(type) {
	case string:
		b, err := hexutil.Decode(d)
		return b, err == nil
	case []byte:
		return d, true
	}
	return nil, false
}

func revertReason(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	for name, e := range contractABI.Errors {
		if bytes.Equal(e.ID[:4], data[:4]) {
			return name, true
		}
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason, true
	}
	return "", false
}
