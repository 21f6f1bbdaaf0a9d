package collateral

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

func TestBankMintAndBalance(t *testing.T) {
	b := NewBank("pool")
	ctx := context.Background()

	bal, err := b.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Sign())

	b.Mint("alice", big.NewInt(1_000))
	b.Mint("alice", big.NewInt(500))
	bal, err = b.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_500), bal)
}

func TestBankTransferFromConsumesAllowance(t *testing.T) {
	b := NewBank("pool")
	ctx := context.Background()
	b.Mint("alice", big.NewInt(1_000))
	b.Approve("alice", big.NewInt(600))

	require.NoError(t, b.TransferFrom(ctx, "alice", "pool", big.NewInt(400)))

	bal, err := b.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), bal)
	bal, err = b.BalanceOf(ctx, "pool")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(400), bal)

	allowance, err := b.Allowance(ctx, "alice", "pool")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), allowance)

	err = b.TransferFrom(ctx, "alice", "pool", big.NewInt(300))
	assert.ErrorIs(t, err, domain.ErrTransfer, "exhausted allowance must refuse the pull")
}

func TestBankTransferFromInsufficientBalance(t *testing.T) {
	b := NewBank("pool")
	ctx := context.Background()
	b.Mint("alice", big.NewInt(100))
	b.Approve("alice", big.NewInt(1_000))

	err := b.TransferFrom(ctx, "alice", "pool", big.NewInt(500))
	assert.ErrorIs(t, err, domain.ErrTransfer)

	// The failed pull must not burn allowance.
	allowance, err := b.Allowance(ctx, "alice", "pool")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000), allowance)
}

func TestBankTransferDebitsOperator(t *testing.T) {
	b := NewBank("pool")
	ctx := context.Background()

	err := b.Transfer(ctx, "alice", big.NewInt(100))
	assert.ErrorIs(t, err, domain.ErrTransfer, "empty operator account")

	b.Mint("pool", big.NewInt(1_000))
	require.NoError(t, b.Transfer(ctx, "alice", big.NewInt(100)))

	bal, err := b.BalanceOf(ctx, "pool")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(900), bal)
	bal, err = b.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), bal)
}

func TestBankRejectsInvalidAmounts(t *testing.T) {
	b := NewBank("pool")
	ctx := context.Background()

	assert.ErrorIs(t, b.Transfer(ctx, "alice", nil), domain.ErrTransfer)
	assert.ErrorIs(t, b.Transfer(ctx, "alice", big.NewInt(-1)), domain.ErrTransfer)
	assert.ErrorIs(t, b.TransferFrom(ctx, "alice", "pool", big.NewInt(-1)), domain.ErrTransfer)
}
