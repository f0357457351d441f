package assetledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"presale-ledger/internal/domain"
)

// TransferHook is invoked after a transfer is applied, outside the ledger lock.
// A hook error is returned to the transfer caller; the movement stays applied.
type TransferHook func(ctx context.Context, from, to domain.Address, amount *big.Int) error

// Memory is an in-memory Ledger with allowances.
type Memory struct {
	name string

	mu         sync.RWMutex
	balances   map[domain.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	hook       TransferHook
}

type allowanceKey struct {
	owner   domain.Address
	spender domain.Address
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(name string) *Memory {
	return &Memory{
		name:       name,
		balances:   make(map[domain.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

var _ Ledger = (*Memory)(nil)

// Name returns the ledger name.
func (m *Memory) Name() string {
	return m.name
}

// SetTransferHook installs a hook run after every successful movement.
func (m *Memory) SetTransferHook(h TransferHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = h
}

// Mint credits amount to owner.
func (m *Memory) Mint(owner domain.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[owner] = new(big.Int).Add(m.balance(owner), amount)
}

// Approve sets spender's allowance over owner's balance.
func (m *Memory) Approve(owner, spender domain.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
}

// Transfer moves amount from `from` to `to`.
func (m *Memory) Transfer(ctx context.Context, from, to domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	if err := m.move(from, to, amount); err != nil {
		m.mu.Unlock()
		return err
	}
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		return hook(ctx, from, to, amount)
	}
	return nil
}

// TransferFrom moves amount on behalf of spender, consuming its allowance.
func (m *Memory) TransferFrom(ctx context.Context, spender, from, to domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	key := allowanceKey{from, spender}
	allowance := m.allowances[key]
	if allowance == nil || allowance.Cmp(amount) < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", m.name, ErrInsufficientAllowance)
	}
	if err := m.move(from, to, amount); err != nil {
		m.mu.Unlock()
		return err
	}
	m.allowances[key] = new(big.Int).Sub(allowance, amount)
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		return hook(ctx, from, to, amount)
	}
	return nil
}

// BalanceOf returns the balance of owner.
func (m *Memory) BalanceOf(_ context.Context, owner domain.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.balance(owner)), nil
}

// Allowance returns spender's remaining allowance over owner's balance.
func (m *Memory) Allowance(_ context.Context, owner, spender domain.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.CloneAmount(m.allowances[allowanceKey{owner, spender}]), nil
}

// move must be called with mu held.
func (m *Memory) move(from, to domain.Address, amount *big.Int) error {
	fromBal := m.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%s: %w", m.name, ErrInsufficientBalance)
	}
	m.balances[from] = new(big.Int).Sub(fromBal, amount)
	m.balances[to] = new(big.Int).Add(m.balance(to), amount)
	return nil
}

func (m *Memory) balance(owner domain.Address) *big.Int {
	if v, ok := m.balances[owner]; ok {
		return v
	}
	return new(big.Int)
}
