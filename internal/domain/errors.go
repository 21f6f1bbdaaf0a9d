package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrState        = errors.New("invalid state for operation")
	ErrSlippage     = errors.New("slippage limit exceeded")
	ErrTransfer     = errors.New("collateral transfer failed")
	ErrNoLiquidity  = errors.New("insufficient liquidity")
	ErrNoWinnings   = errors.New("no winnings to claim")
	ErrPaused       = errors.New("engine paused")
	ErrLockHeld     = errors.New("lock already held")
)
