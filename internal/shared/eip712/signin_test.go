package eip712_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/eip712"
)

var testDomain = eip712.Domain{
	Name:              "Messaging.SignIn",
	Version:           "1",
	ChainID:           0x5afd,
	VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
}

func sign(t *testing.T, d eip712.Domain, ts uint32) domain.SignIn {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	user := crypto.PubkeyToAddress(key.PublicKey)

	hash, err := eip712.Digest(d, user, ts)
	require.NoError(t, err)
	raw, err := crypto.Sign(hash, key)
	require.NoError(t, err)
	rsv, err := eip712.SplitSignature(raw)
	require.NoError(t, err)

	return domain.SignIn{User: user, Time: ts, RSV: rsv}
}

func TestRecover_RoundTrip(t *testing.T) {
	auth := sign(t, testDomain, 1_700_000_000)

	signer, err := eip712.Recover(testDomain, auth)
	require.NoError(t, err)
	assert.Equal(t, auth.User, signer)
	assert.True(t, eip712.Verify(testDomain, auth))
	assert.Contains(t, []uint8{27, 28}, auth.RSV.V)
}

func TestVerify_TamperedTime(t *testing.T) {
	auth := sign(t, testDomain, 1_700_000_000)
	auth.Time++

	assert.False(t, eip712.Verify(testDomain, auth))
}

func TestVerify_OtherDomainRejected(t *testing.T) {
	auth := sign(t, testDomain, 1_700_000_000)

	otherChain := testDomain
	otherChain.ChainID = 0x5afe
	assert.False(t, eip712.Verify(otherChain, auth))

	otherContract := testDomain
	otherContract.VerifyingContract = common.HexToAddress("0x0000000000000000000000000000000000000001")
	assert.False(t, eip712.Verify(otherContract, auth))
}

func TestDigest_DependsOnDomain(t *testing.T) {
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")

	a, err := eip712.Digest(testDomain, user, 10)
	require.NoError(t, err)
	b, err := eip712.Digest(testDomain, user, 10)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other := testDomain
	other.Version = "2"
	c, err := eip712.Digest(other, user, 10)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSplitSignature(t *testing.T) {
	raw := make([]byte, 65)
	raw[0] = 0xaa
	raw[32] = 0xbb
	raw[64] = 1

	sig, err := eip712.SplitSignature(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0xaa), sig.R[0])
	assert.Equal(t, byte(0xbb), sig.S[0])
	assert.Equal(t, uint8(28), sig.V)

	_, err = eip712.SplitSignature(raw[:64])
	assert.Error(t, err)

	raw[64] = 5
	_, err = eip712.SplitSignature(raw)
	assert.Error(t, err)
}

func TestSeparator_PrefixesDigest(t *testing.T) {
	user := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	sep, err := eip712.Separator(testDomain)
	require.NoError(t, err)

	td := testDomain.TypedData(user, 42)
	msg, err := td.HashStruct(eip712.PrimaryType, td.Message)
	require.NoError(t, err)

	digest, err := eip712.Digest(testDomain, user, 42)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256([]byte{0x19, 0x01}, sep.Bytes(), msg), digest)

	other := testDomain
	other.VerifyingContract = common.HexToAddress("0x0000000000000000000000000000000000000001")
	otherSep, err := eip712.Separator(other)
	require.NoError(t, err)
	assert.NotEqual(t, sep, otherSep)
}
