package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AddressPrefix is the marker that precedes the hex digits of an address in
// wallet-facing text such as allocation maps and command line flags.
const AddressPrefix = "0x"

// Address is a 20-byte account address held in canonical form: exactly 40
// lowercase hex characters with no prefix. Use ParseAddress to construct one.
type Address string

// ParseAddress validates s and returns its canonical form. Input may carry the
// prefix, surrounding whitespace and mixed case.
func ParseAddress(s string) (Address, error) {
	norm := NormalizeAddress(s)
	if len(norm) != 2*common.AddressLength || !common.IsHexAddress(norm) {
		return "", fmt.Errorf("invalid address %q: want %d hex characters", s, 2*common.AddressLength)
	}
	return Address(norm), nil
}

// MustParseAddress is like ParseAddress but panics on invalid input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NormalizeAddress trims whitespace, strips any leading prefix markers and
// lowercases the remainder. It does not validate.
func NormalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	for hasPrefix(s) {
		s = s[len(AddressPrefix):]
	}
	return strings.ToLower(s)
}

// WithPrefix returns s with exactly one prefix marker. Strings that already
// carry one are returned unchanged.
func WithPrefix(s string) string {
	if hasPrefix(s) {
		return s
	}
	return AddressPrefix + s
}

func hasPrefix(s string) bool {
	return len(s) >= len(AddressPrefix) && strings.EqualFold(s[:len(AddressPrefix)], AddressPrefix)
}

// Unprefixed returns the canonical 40 character form.
func (a Address) Unprefixed() string { return string(a) }

// Hex returns the lowercase prefixed form, e.g. 0xaaaa...
func (a Address) Hex() string { return WithPrefix(string(a)) }

// String implements fmt.Stringer using the prefixed form.
func (a Address) String() string { return a.Hex() }

// Bytes returns the raw 20 bytes.
func (a Address) Bytes() []byte { return a.Common().Bytes() }

// Common converts the address to its go-ethereum representation.
func (a Address) Common() common.Address { return common.HexToAddress(string(a)) }

// Role tags the purpose of a provisioned identity.
type Role string

const (
	// RoleValidator is the block producing authority.
	RoleValidator Role = "validator"
	// RoleRelayer is the funded account used by off-chain infrastructure.
	RoleRelayer Role = "relayer"
)

// Identity is an address bound to the role it was provisioned for.
type Identity struct {
	Role    Role
	Address Address
}
