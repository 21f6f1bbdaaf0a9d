package domain

import (
	"context"
	"math/big"
)

// CollateralAsset is the fungible-token ledger that backs every market. The
// engine is the spender: deposits are pulled with TransferFrom against a
// prior allowance, payouts are pushed with Transfer from the pool's own
// balance. Any failure (insufficient balance or allowance, rejected call)
// must abort the enclosing operation; implementations return errors that
// wrap ErrTransfer.
type CollateralAsset interface {
	BalanceOf(ctx context.Context, addr string) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender string) (*big.Int, error)
	TransferFrom(ctx context.Context, from, to string, amount *big.Int) error
	Transfer(ctx context.Context, to string, amount *big.Int) error
}
