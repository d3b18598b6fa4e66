// Package eip712 builds and verifies the structured, domain separated payload
// signed into a SignIn credential.
package eip712

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/charadev96/ledgerchat/internal/shared/domain"
)

const PrimaryType = "SignIn"

var types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryType: {
		{Name: "user", Type: "address"},
		{Name: "time", Type: "uint32"},
	},
}

// Domain binds a signature to one application and one ledger deployment.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract common.Address
}

func (d Domain) TypedData(user domain.Identity, t uint32) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       types,
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           math.NewHexOrDecimal256(int64(d.ChainID)),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"user": user.Hex(),
			"time": new(big.Int).SetUint64(uint64(t)),
		},
	}
}

// Digest returns the EIP-712 hash that is signed for (user, t).
func Digest(d Domain, user domain.Identity, t uint32) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(d.TypedData(user, t))
	if err != nil {
		return nil, fmt.Errorf("failed to hash sign-in payload: %w", err)
	}
	return hash, nil
}

// Separator returns the EIP-712 domain separator of d.
func Separator(d Domain) (common.Hash, error) {
	td := d.TypedData(common.Address{}, 0)
	hash, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash sign-in domain: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// SplitSignature decomposes a 65 byte [R || S || V] signature. V may be
// given as 0/1 or 27/28 and is normalized to 27/28.
func SplitSignature(sig []byte) (domain.Signature, error) {
	var s domain.Signature
	if len(sig) != crypto.SignatureLength {
		return s, fmt.Errorf("invalid signature length %d, expected %d", len(sig), crypto.SignatureLength)
	}
	copy(s.R[:], sig[:32])
	copy(s.S[:], sig[32:64])
	v := sig[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return s, fmt.Errorf("invalid signature recovery id %d", sig[64])
	}
	s.V = v
	return s, nil
}

// Recover returns the identity that produced the credential's signature.
// It does not compare it with auth.User.
func Recover(d Domain, auth domain.SignIn) (domain.Identity, error) {
	hash, err := Digest(d, auth.User, auth.Time)
	if err != nil {
		return domain.Identity{}, err
	}
	if auth.RSV.V != 27 && auth.RSV.V != 28 {
		return domain.Identity{}, fmt.Errorf("invalid signature recovery id %d", auth.RSV.V)
	}
	sig := auth.RSV.Bytes()
	sig[64] -= 27
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether auth carries a valid signature by auth.User.
func Verify(d Domain, auth domain.SignIn) bool {
	signer, err := Recover(d, auth)
	return err == nil && signer == auth.User
}
