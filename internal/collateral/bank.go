// Package collateral provides the fungible-token ledgers that back markets:
// an in-memory bank for paper trading and tests, and an ERC-20 adapter for
// on-chain settlement.
package collateral

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// Bank is an in-memory fungible-token ledger with ERC-20 transfer and
// allowance semantics. It is the collateral asset for paper mode, where no
// chain is configured.
type Bank struct {
	// operator is the address Transfer debits, normally the pool address
	// the engine custodies reserves under.
	operator string

	mu         sync.Mutex
	balances   map[string]*big.Int
	allowances map[string]map[string]*big.Int // owner -> spender -> amount
}

var _ domain.CollateralAsset = (*Bank)(nil)

// NewBank creates an empty bank whose Transfer calls spend from operator.
func NewBank(operator string) *Bank {
	return &Bank{
		operator:   operator,
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]map[string]*big.Int),
	}
}

// Mint credits an address out of thin air. Test and paper-mode setup only.
func (b *Bank) Mint(addr string, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(addr, amount)
}

// Approve grants the operator an allowance over the owner's balance. In
// paper mode the operator is always the pool, mirroring a trader approving
// the market contract on chain.
func (b *Bank) Approve(owner string, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	spenders, ok := b.allowances[owner]
	if !ok {
		spenders = make(map[string]*big.Int)
		b.allowances[owner] = spenders
	}
	spenders[b.operator] = new(big.Int).Set(amount)
}

// BalanceOf returns an address's balance.
func (b *Bank) BalanceOf(_ context.Context, addr string) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

// Allowance returns what spender may pull from owner.
func (b *Bank) Allowance(_ context.Context, owner, spender string) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if spenders, ok := b.allowances[owner]; ok {
		if a, ok := spenders[spender]; ok {
			return new(big.Int).Set(a), nil
		}
	}
	return new(big.Int), nil
}

// TransferFrom pulls amount from the owner into to, consuming the
// operator's allowance. Insufficient balance or allowance aborts with an
// error wrapping ErrTransfer.
func (b *Bank) TransferFrom(_ context.Context, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("collateral: invalid transfer amount: %w", domain.ErrTransfer)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	allowance := b.allowanceOf(from, b.operator)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("collateral: allowance %s below transfer %s from %s: %w", allowance, amount, from, domain.ErrTransfer)
	}
	if err := b.debit(from, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	b.credit(to, amount)
	return nil
}

// Transfer pushes amount from the operator's balance to to.
func (b *Bank) Transfer(_ context.Context, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("collateral: invalid transfer amount: %w", domain.ErrTransfer)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.debit(b.operator, amount); err != nil {
		return err
	}
	b.credit(to, amount)
	return nil
}

// debit and credit assume b.mu is held.

func (b *Bank) debit(addr string, amount *big.Int) error {
	bal, ok := b.balances[addr]
	if !ok || bal.Cmp(amount) < 0 {
		have := new(big.Int)
		if ok {
			have = bal
		}
		return fmt.Errorf("collateral: balance %s of %s below transfer %s: %w", have, addr, amount, domain.ErrTransfer)
	}
	bal.Sub(bal, amount)
	return nil
}

func (b *Bank) credit(addr string, amount *big.Int) {
	bal, ok := b.balances[addr]
	if !ok {
		bal = new(big.Int)
		b.balances[addr] = bal
	}
	bal.Add(bal, amount)
}

func (b *Bank) allowanceOf(owner, spender string) *big.Int {
	spenders, ok := b.allowances[owner]
	if !ok {
		spenders = make(map[string]*big.Int)
		b.allowances[owner] = spenders
	}
	a, ok := spenders[spender]
	if !ok {
		a = new(big.Int)
		spenders[spender] = a
	}
	return a
}
