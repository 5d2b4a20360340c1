package evmscheme

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"x402facilitator/internal/eip712"
	"x402facilitator/internal/facilitator"
)

// parsedAuth is the request's authorization fields decoded into on-chain
// types, alongside the asset it claims to pay with.
type parsedAuth struct {
	asset       Asset
	sig         []byte
	from        common.Address
	to          common.Address
	value       *big.Int
	validAfter  *big.Int
	validBefore *big.Int
	nonce       [32]byte
}

func (s *Scheme) parse(req facilitator.VerifyRequest) (parsedAuth, facilitator.ErrorCode) {
	tokenAddr := common.HexToAddress(req.PaymentRequirements.Asset)
	asset, ok := s.assets[tokenAddr]
	if !ok {
		return parsedAuth{}, facilitator.ErrInvalidPaymentReqs
	}

	auth := req.PaymentPayload.Payload.Authorization
	if auth.From == "" || auth.To == "" || auth.Value == "" {
		return parsedAuth{}, facilitator.ErrInvalidPayload
	}

	sig, err := hexutil.Decode(req.PaymentPayload.Payload.Signature)
	if err != nil || len(sig) != 65 {
		return parsedAuth{}, facilitator.ErrInvalidSignature
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return parsedAuth{}, facilitator.ErrInvalidPayload
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return parsedAuth{}, facilitator.ErrInvalidPayload
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return parsedAuth{}, facilitator.ErrInvalidPayload
	}

	nonceBytes, err := hexutil.Decode(auth.Nonce)
	if err != nil || len(nonceBytes) != 32 {
		return parsedAuth{}, facilitator.ErrInvalidPayload
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	return parsedAuth{
		asset:       asset,
		sig:         sig,
		from:        common.HexToAddress(auth.From),
		to:          common.HexToAddress(auth.To),
		value:       value,
		validAfter:  validAfter,
		validBefore: validBefore,
		nonce:       nonce,
	}, ""
}

// Verify executes, in order, failing on the first violated condition:
// registration, signature recovery, balance, amount, time window,
// recipient match, and nonce freshness.
func (s *Scheme) Verify(ctx context.Context, req facilitator.VerifyRequest) facilitator.VerifyResponse {
	payer := req.PaymentPayload.Payload.Authorization.From

	parsed, errCode := s.parse(req)
	if errCode != "" {
		return invalid(errCode, payer)
	}

	auth := eip712.Authorization{
		From:        parsed.from,
		To:          parsed.to,
		Value:       parsed.value,
		ValidAfter:  parsed.validAfter,
		ValidBefore: parsed.validBefore,
		Nonce:       parsed.nonce,
	}
	recovered, err := eip712.Verify(parsed.asset.Domain, auth, parsed.sig)
	if err != nil || recovered != parsed.from {
		return invalid(facilitator.ErrInvalidSignature, payer)
	}

	balance, err := s.chain.BalanceOf(ctx, parsed.asset.Address, parsed.from)
	if err != nil {
		return invalid(facilitator.ErrUnexpectedVerify, payer)
	}
	if balance.Cmp(parsed.value) < 0 {
		return invalid(facilitator.ErrInsufficientFunds, payer)
	}

	required, ok := new(big.Int).SetString(req.PaymentRequirements.MaxAmountRequired, 10)
	if !ok {
		return invalid(facilitator.ErrInvalidPaymentReqs, payer)
	}
	if parsed.value.Cmp(required) < 0 {
		return invalid(facilitator.ErrAuthValue, payer)
	}

	now := big.NewInt(s.nowFunc())
	if now.Cmp(parsed.validAfter) < 0 {
		return invalid(facilitator.ErrAuthValidAfter, payer)
	}
	if now.Cmp(parsed.validBefore) > 0 {
		return invalid(facilitator.ErrAuthValidBefore, payer)
	}

	if !sameAddress(parsed.to.Hex(), req.PaymentRequirements.PayTo) {
		return invalid(facilitator.ErrRecipientMismatch, payer)
	}

	used, err := s.chain.AuthorizationState(ctx, parsed.asset.Address, parsed.from, parsed.nonce)
	if err != nil {
		return invalid(facilitator.ErrUnexpectedVerify, payer)
	}
	if used {
		return invalid(facilitator.ErrInvalidSignature, payer)
	}

	return facilitator.VerifyResponse{IsValid: true, Payer: parsed.from.Hex()}
}

func sameAddress(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// Settle re-verifies asset registration then calls
// transferWithAuthorization from the facilitator's admin signer, waiting
// for the receipt.
func (s *Scheme) Settle(ctx context.Context, req facilitator.VerifyRequest) facilitator.SettlementResponse {
	payer := req.PaymentPayload.Payload.Authorization.From

	parsed, errCode := s.parse(req)
	if errCode != "" {
		return facilitator.SettlementResponse{Success: false, ErrorReason: string(errCode), Network: s.network, Payer: payer}
	}

	v := parsed.sig[64]
	var r, sVal [32]byte
	copy(r[:], parsed.sig[:32])
	copy(sVal[:], parsed.sig[32:64])

	gasPrice, err := s.chain.SuggestGasPrice(ctx)
	if err != nil {
		return facilitator.SettlementResponse{Success: false, ErrorReason: string(facilitator.ErrInvalidTransactionState), Network: s.network, Payer: payer}
	}

	txHash, err := s.chain.CallTransferWithAuthorization(ctx, s.admin, parsed.asset.Address, parsed.from, parsed.to,
		parsed.value, parsed.validAfter, parsed.validBefore, parsed.nonce, v, r, sVal, gasPrice, settleGasLimit)
	if err != nil {
		return facilitator.SettlementResponse{Success: false, ErrorReason: string(facilitator.ErrInvalidTransactionState), Network: s.network, Payer: payer}
	}

	receipt, err := s.chain.WaitMined(ctx, txHash)
	if err != nil || receipt.Status == 0 {
		return facilitator.SettlementResponse{Success: false, ErrorReason: string(facilitator.ErrInvalidTransactionState), Network: s.network, Payer: payer}
	}

	return facilitator.SettlementResponse{Success: true, Transaction: txHash.Hex(), Network: s.network, Payer: parsed.from.Hex()}
}
