package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is the externally verifiable account reference of a ledger user.
type Identity = common.Address

var identityPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

func IsValidIdentity(s string) bool {
	return identityPattern.MatchString(s)
}

func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if !IsValidIdentity(s) {
		return Identity{}, fmt.Errorf("invalid identity %q, expected 0x followed by 40 hex digits", s)
	}
	id := common.HexToAddress(s)
	if id == (Identity{}) {
		return Identity{}, fmt.Errorf("invalid identity %q, zero address", s)
	}
	return id, nil
}

// ShortIdentity renders an identity as 0x1234...abcd.
func ShortIdentity(id Identity) string {
	s := id.Hex()
	return s[:6] + "..." + s[len(s)-4:]
}

// IdentityKey is the canonical map/storage key of an identity.
func IdentityKey(id Identity) string {
	return strings.ToLower(id.Hex())
}
