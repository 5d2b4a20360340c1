// Package eip712 signs and verifies EIP-3009 TransferWithAuthorization
// messages under EIP-712 typed-data hashing, the scheme stablecoins use for
// gasless transfer authorizations.
package eip712

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrInvalidSignature is returned when a signature does not recover to the
// authorization's claimed sender.
var ErrInvalidSignature = errors.New("eip712: signature does not match authorization.From")

// Domain binds a signature to one token contract on one chain. Unlike a
// single hardcoded stablecoin, Name and Version vary per configured token.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Authorization is an EIP-3009 TransferWithAuthorization message.
type Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
}

func typedData(domain Domain, auth Authorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       (*math.HexOrDecimal256)(auth.Value),
			"validAfter":  (*math.HexOrDecimal256)(auth.ValidAfter),
			"validBefore": (*math.HexOrDecimal256)(auth.ValidBefore),
			"nonce":       hexutil.Encode(auth.Nonce[:]),
		},
	}
}

// Sign produces a 65-byte r‖s‖v signature over auth under domain, with v
// normalized to the 27/28 convention used on the wire and by viem/ethers.
func Sign(domain Domain, auth Authorization, priv *ecdsa.PrivateKey) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData(domain, auth))
	if err != nil {
		return nil, fmt.Errorf("eip712: hash typed data: %w", err)
	}

	sig, err := crypto.Sign(hash, priv)
	if err != nil {
		return nil, fmt.Errorf("eip712: sign: %w", err)
	}

	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// Verify recovers the signer of sig over auth under domain and confirms it
// matches auth.From.
func Verify(domain Domain, auth Authorization, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("%w: want 65 bytes, got %d", ErrInvalidSignature, len(sig))
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData(domain, auth))
	if err != nil {
		return common.Address{}, fmt.Errorf("eip712: hash typed data: %w", err)
	}

	sigForRecovery := make([]byte, 65)
	copy(sigForRecovery, sig)
	if sigForRecovery[64] >= 27 {
		sigForRecovery[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, sigForRecovery)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != auth.From {
		return common.Address{}, fmt.Errorf("%w: recovered %s, want %s", ErrInvalidSignature, recovered.Hex(), auth.From.Hex())
	}
	return recovered, nil
}
