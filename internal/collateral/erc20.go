package collateral

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// erc20ABI covers the four calls the adapter makes. Parsed once at startup.
const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ERC20 adapts an on-chain ERC-20 token to the CollateralAsset interface.
// The operator key is the account that holds token approvals from traders
// and custodies the pool balance; every transfer is signed with it and
// waits for inclusion, so a reverted transaction surfaces as an error
// before the enclosing market operation commits.
type ERC20 struct {
	client   *ethclient.Client
	token    common.Address
	parsed   abi.ABI
	key      *ecdsa.PrivateKey
	operator common.Address
	chainID  *big.Int

	// nonceMu serializes transaction submission so two payouts cannot race
	// for the same pending nonce.
	nonceMu sync.Mutex
}

var _ domain.CollateralAsset = (*ERC20)(nil)

// NewERC20 dials nothing itself; the caller supplies a connected client.
// operatorKeyHex is the hex-encoded private key of the operator account.
func NewERC20(client *ethclient.Client, tokenAddr string, operatorKeyHex string, chainID int64) (*ERC20, error) {
	if !common.IsHexAddress(tokenAddr) {
		return nil, fmt.Errorf("collateral: invalid token address %q", tokenAddr)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("collateral: parsing erc20 abi: %w", err)
	}
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("collateral: invalid operator key: %w", err)
	}
	return &ERC20{
		client:   client,
		token:    common.HexToAddress(tokenAddr),
		parsed:   parsed,
		key:      key,
		operator: ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(chainID),
	}, nil
}

// Operator returns the address transfers are signed with.
func (e *ERC20) Operator() string {
	return e.operator.Hex()
}

// BalanceOf reads the token balance of an address.
func (e *ERC20) BalanceOf(ctx context.Context, addr string) (*big.Int, error) {
	return e.readUint256(ctx, "balanceOf", common.HexToAddress(addr))
}

// Allowance reads what spender may pull from owner.
func (e *ERC20) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	return e.readUint256(ctx, "allowance", common.HexToAddress(owner), common.HexToAddress(spender))
}

// TransferFrom pulls amount from an approving account. The operator must
// hold an on-chain allowance from the sender.
func (e *ERC20) TransferFrom(ctx context.Context, from, to string, amount *big.Int) error {
	return e.send(ctx, "transferFrom", common.HexToAddress(from), common.HexToAddress(to), amount)
}

// Transfer pays amount out of the operator's own balance.
func (e *ERC20) Transfer(ctx context.Context, to string, amount *big.Int) error {
	return e.send(ctx, "transfer", common.HexToAddress(to), amount)
}

func (e *ERC20) readUint256(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := e.parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("collateral: packing %s: %w", method, err)
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("collateral: calling %s: %w", method, err)
	}
	results, err := e.parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("collateral: unpacking %s: %w", method, err)
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("collateral: %s returned unexpected type %T", method, results[0])
	}
	return value, nil
}

// send submits a signed token transaction and waits for its receipt. Any
// failure along the way, including an on-chain revert, wraps ErrTransfer so
// the engine aborts the enclosing operation.
func (e *ERC20) send(ctx context.Context, method string, args ...any) error {
	data, err := e.parsed.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("collateral: packing %s: %v: %w", method, err, domain.ErrTransfer)
	}

	e.nonceMu.Lock()
	signed, err := e.buildAndSign(ctx, data)
	if err != nil {
		e.nonceMu.Unlock()
		return fmt.Errorf("collateral: %s: %v: %w", method, err, domain.ErrTransfer)
	}
	err = e.client.SendTransaction(ctx, signed)
	e.nonceMu.Unlock()
	if err != nil {
		return fmt.Errorf("collateral: sending %s: %v: %w", method, err, domain.ErrTransfer)
	}

	receipt, err := bind.WaitMined(ctx, e.client, signed)
	if err != nil {
		return fmt.Errorf("collateral: waiting for %s: %v: %w", method, err, domain.ErrTransfer)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("collateral: %s reverted in tx %s: %w", method, signed.Hash().Hex(), domain.ErrTransfer)
	}
	return nil
}

// buildAndSign assembles a transaction for data against the token contract.
// Callers hold nonceMu.
func (e *ERC20) buildAndSign(ctx context.Context, data []byte) (*types.Transaction, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.operator)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggesting gas price: %w", err)
	}
	gasLimit, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: e.operator,
		To:   &e.token,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimating gas: %w", err)
	}

	tx := types.NewTransaction(nonce, e.token, new(big.Int), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	return signed, nil
}
