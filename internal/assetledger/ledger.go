// Package assetledger provides access to the external fungible-balance
// ledgers the presale moves funds and sale tokens through.
package assetledger

import (
	"context"
	"errors"
	"math/big"

	"presale-ledger/internal/domain"
)

// Ledger is a fungible-balance ledger (ERC-20 style).
type Ledger interface {
	// Transfer moves amount from `from` to `to`. The caller must be authorized
	// to move funds of `from`.
	Transfer(ctx context.Context, from, to domain.Address, amount *big.Int) error

	// TransferFrom moves amount from `from` to `to` on behalf of spender,
	// consuming spender's allowance.
	TransferFrom(ctx context.Context, spender, from, to domain.Address, amount *big.Int) error

	// BalanceOf returns the balance of owner.
	BalanceOf(ctx context.Context, owner domain.Address) (*big.Int, error)

	// Allowance returns what spender may still move out of owner's balance.
	Allowance(ctx context.Context, owner, spender domain.Address) (*big.Int, error)
}

// Ledger errors.
var (
	ErrInsufficientBalance   = errors.New("asset ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("asset ledger: insufficient allowance")
	ErrInvalidAmount         = errors.New("asset ledger: invalid amount")

	// ErrOutcomeUnknown wraps a transfer failure that may have happened after
	// the ledger applied the movement, such as a timeout reading the reply.
	ErrOutcomeUnknown = errors.New("asset ledger: transfer outcome unknown")
)

// Registry maps each payment asset to its ledger.
type Registry struct {
	ledgers map[domain.Asset]Ledger
}

// NewRegistry creates a registry. Every asset in domain.Assets must be present.
func NewRegistry(ledgers map[domain.Asset]Ledger) (*Registry, error) {
	r := &Registry{ledgers: make(map[domain.Asset]Ledger, len(domain.Assets))}
	for _, a := range domain.Assets {
		l, ok := ledgers[a]
		if !ok || l == nil {
			return nil, errors.New("asset ledger registry: missing ledger for " + a.String())
		}
		r.ledgers[a] = l
	}
	return r, nil
}

// Ledger returns the ledger of asset.
func (r *Registry) Ledger(a domain.Asset) (Ledger, bool) {
	l, ok := r.ledgers[a]
	return l, ok
}
