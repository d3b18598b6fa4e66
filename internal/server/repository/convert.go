package repository

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jinzhu/copier"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

// copyOption converts between domain values and their column encodings:
// identities as lowercase hex and amounts as decimal strings.
var copyOption = copier.Option{
	Converters: []copier.TypeConverter{
		{
			SrcType: common.Address{},
			DstType: copier.String,
			Fn: func(src any) (any, error) {
				return shared.IdentityKey(src.(common.Address)), nil
			},
		},
		{
			SrcType: copier.String,
			DstType: common.Address{},
			Fn: func(src any) (any, error) {
				s := src.(string)
				if s == "" {
					return common.Address{}, nil
				}
				if !common.IsHexAddress(s) {
					return nil, fmt.Errorf("invalid stored address %q", s)
				}
				return common.HexToAddress(s), nil
			},
		},
		{
			SrcType: &big.Int{},
			DstType: copier.String,
			Fn: func(src any) (any, error) {
				n := src.(*big.Int)
				if n == nil {
					return "0", nil
				}
				return n.String(), nil
			},
		},
		{
			SrcType: copier.String,
			DstType: &big.Int{},
			Fn: func(src any) (any, error) {
				n, ok := new(big.Int).SetString(src.(string), 10)
				if !ok {
					return nil, fmt.Errorf("invalid stored amount %q", src)
				}
				return n, nil
			},
		},
	},
}

func copyRow(to, from any) error {
	if err := copier.CopyWithOption(to, from, copyOption); err != nil {
		return fmt.Errorf("failed to convert row: %w", err)
	}
	return nil
}
