// Package sweep moves a deposit from its per-customer derived wallet to the
// merchant, net of a clamped commission, forwarding gas first since the
// customer wallet holds no native coin of its own.
package sweep

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Chain is the subset of evmchain.Client the sweeper needs. Declared as an
// interface here so settlement tests can fake it without a live RPC.
type Chain interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	TokenTotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	EstimateGas(ctx context.Context, from, to common.Address, data []byte) (uint64, error)
	SendNative(ctx context.Context, priv *ecdsa.PrivateKey, to common.Address, value, gasPrice *big.Int) (common.Hash, error)
	CallApprove(ctx context.Context, priv *ecdsa.PrivateKey, token, spender common.Address, amount, gasPrice *big.Int, gasLimit uint64) (common.Hash, error)
	CallTransferFrom(ctx context.Context, priv *ecdsa.PrivateKey, token, owner, to common.Address, amount, gasPrice *big.Int, gasLimit uint64) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Commission bounds the fee taken on a sweep, all in the token's atomic
// units. Rate is a whole-number percentage (e.g. 2 means 2%).
type Commission struct {
	Rate int64
	Min  *big.Int
	Max  *big.Int
}

// Result is the outcome of a successful sweep: the amount that reached the
// merchant and the transaction that carried it.
type Result struct {
	MerchantAmount *big.Int
	TxHash         common.Hash
}

const approveGasLimit = 100_000
const transferGasLimit = 100_000

var fallbackApproveAmount = big.NewInt(100_000_000_000_000) // used if totalSupply() is unavailable

// Sweep transfers a deposit held at customerWallet's address to merchant,
// minus a commission sent to admin, gas-forwarded from admin first if an
// approval is needed. It mirrors, in order: balance check, allowance check,
// commission computation, gas-forward + approve (only if needed), transfer
// to merchant, transfer of the fee to admin.
func Sweep(ctx context.Context, chain Chain, token, customer, merchant, admin common.Address, customerKey, adminKey *ecdsa.PrivateKey, commission Commission) (Result, error) {
	zero := big.NewInt(0)

	gasPrice, err := chain.SuggestGasPrice(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("sweep: gas price: %w", err)
	}
	gasPrice = new(big.Int).Quo(new(big.Int).Mul(gasPrice, big.NewInt(105)), big.NewInt(100))

	balance, err := chain.BalanceOf(ctx, token, customer)
	if err != nil {
		return Result{}, fmt.Errorf("sweep: balance: %w", err)
	}
	if balance.Cmp(zero) == 0 {
		return Result{}, fmt.Errorf("sweep: no balance")
	}

	allowance, err := chain.Allowance(ctx, token, customer, admin)
	if err != nil {
		return Result{}, fmt.Errorf("sweep: allowance: %w", err)
	}
	needApprove := allowance.Cmp(balance) < 0

	fee := zero
	if commission.Rate > 0 {
		rate := new(big.Int).Quo(new(big.Int).Mul(balance, big.NewInt(commission.Rate)), big.NewInt(100))
		rate = minBig(rate, commission.Max)
		fee = maxBig(rate, commission.Min)
	}
	// commission.Min can exceed balance for a small deposit; clamp so the fee
	// never eats more than the customer actually holds.
	fee = minBig(fee, balance)
	real := new(big.Int).Sub(balance, fee)

	if needApprove {
		approveData := approveCalldata(admin, fallbackApproveAmount)
		gas, err := chain.EstimateGas(ctx, customer, token, approveData)
		if err != nil {
			gas = approveGasLimit
		}
		approveGasCost := new(big.Int).Mul(new(big.Int).Quo(new(big.Int).Mul(big.NewInt(int64(gas)), big.NewInt(105)), big.NewInt(100)), gasPrice)

		if _, err := chain.SendNative(ctx, adminKey, customer, approveGasCost, gasPrice); err != nil {
			return Result{}, fmt.Errorf("sweep: forward gas: %w", err)
		}

		total, err := chain.TokenTotalSupply(ctx, token)
		if err != nil || total.Cmp(zero) == 0 {
			total = fallbackApproveAmount
		}
		if _, err := chain.CallApprove(ctx, customerKey, token, admin, total, gasPrice, approveGasLimit); err != nil {
			return Result{}, fmt.Errorf("sweep: approve: %w", err)
		}
	}

	var txHash common.Hash
	if real.Cmp(zero) > 0 {
		txHash, err = chain.CallTransferFrom(ctx, adminKey, token, customer, merchant, real, gasPrice, transferGasLimit)
		if err != nil {
			return Result{}, fmt.Errorf("sweep: transfer to merchant: %w", err)
		}
		if _, err := chain.WaitMined(ctx, txHash); err != nil {
			return Result{}, fmt.Errorf("sweep: wait merchant transfer: %w", err)
		}
	}

	if fee.Cmp(zero) > 0 {
		feeTxHash, err := chain.CallTransferFrom(ctx, adminKey, token, customer, admin, fee, gasPrice, transferGasLimit)
		if err != nil {
			return Result{}, fmt.Errorf("sweep: transfer commission: %w", err)
		}
		if _, err := chain.WaitMined(ctx, feeTxHash); err != nil {
			return Result{}, fmt.Errorf("sweep: wait commission transfer: %w", err)
		}
		if real.Cmp(zero) == 0 {
			txHash = feeTxHash
		}
	}

	return Result{MerchantAmount: real, TxHash: txHash}, nil
}

func approveCalldata(spender common.Address, amount *big.Int) []byte {
	selector := crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	data := append(append([]byte{}, selector...), common.LeftPadBytes(spender.Bytes(), 32)...)
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) > 0 {
		return a
	}
	return b
}
