package genesis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

const (
	// VanityLength is the zero-filled prefix of the clique extra-data field.
	VanityLength = 32
	// SealLength is the zero-filled signature placeholder suffix.
	SealLength = 65
	// AuthorityFieldLength is vanity + one signer + seal.
	AuthorityFieldLength = VanityLength + common.AddressLength + SealLength
)

// AuthorityField is the clique extra-data naming the single genesis signer:
// 32 zero bytes, the validator address, then 65 zero bytes.
type AuthorityField []byte

// NewAuthorityField lays out the field for validator.
func NewAuthorityField(validator types.Address) AuthorityField {
	f := make(AuthorityField, AuthorityFieldLength)
	copy(f[VanityLength:], validator.Bytes())
	return f
}

// ParseAuthorityField decodes a prefixed hex field and checks its length.
func ParseAuthorityField(s string) (AuthorityField, error) {
	bz, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decoding extra data: %w", err)
	}
	if len(bz) != AuthorityFieldLength {
		return nil, fmt.Errorf("extra data is %d bytes, want %d", len(bz), AuthorityFieldLength)
	}
	return AuthorityField(bz), nil
}

// Hex returns the prefixed lowercase hex encoding.
func (f AuthorityField) Hex() string { return hexutil.Encode(f) }

// Signer returns the embedded validator address.
func (f AuthorityField) Signer() types.Address {
	return types.Address(types.NormalizeAddress(common.BytesToAddress(f[VanityLength : VanityLength+common.AddressLength]).Hex()))
}
