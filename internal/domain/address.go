package domain

import (
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Address is a normalized account principal.
// EVM accounts are stored as checksummed 0x-hex, Solana wallets as base58.
type Address string

// ParseAddress validates and normalizes a principal.
// Solana keys must lie on the ed25519 curve: program-derived addresses
// cannot sign and are rejected as investors or treasury wallets.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if !common.IsHexAddress(s) {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		addr := common.HexToAddress(s)
		if addr == (common.Address{}) {
			return "", fmt.Errorf("%w: zero address", ErrInvalidAddress)
		}
		return Address(addr.Hex()), nil
	}

	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return "", fmt.Errorf("%w: %q is off-curve", ErrInvalidAddress, s)
	}
	return Address(base58.Encode(raw)), nil
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the string representation of Address.
func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}

// IsEVM reports whether the address is an EVM account.
func (a Address) IsEVM() bool {
	return strings.HasPrefix(string(a), "0x")
}
