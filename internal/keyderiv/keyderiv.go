// Package keyderiv deterministically derives per-(merchant,customer) EVM
// keypairs from a single BIP-39 mnemonic, so no per-customer key material
// ever needs to be stored.
package keyderiv

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// ErrKeyDerivation is returned for any failure deriving a key from the
// mnemonic (e.g. an invalid mnemonic checksum).
var ErrKeyDerivation = errors.New("keyderiv: key derivation failed")

// AdminMerchantID and AdminCustomerID reserve (0,0) for the chain's default
// admin wallet, per the deposit-address derivation contract.
const (
	AdminMerchantID = 0
	AdminCustomerID = 0
)

// curveOrder is the secp256k1 group order; a derived scalar must be reduced
// into [1, curveOrder) before it is a valid private key.
var curveOrder = crypto.S256().Params().N

// Account is a derived keypair: the hex-encoded private key (no 0x prefix)
// and its EIP-55 checksummed address.
type Account struct {
	PrivateKeyHex string
	Address       string
}

// Derive produces the same (private_key, address) pair for every call with
// the same (mnemonic, merchantID, customerID) triple. It never performs
// network I/O.
func Derive(mnemonic string, merchantID, customerID uint32) (Account, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Account{}, fmt.Errorf("%w: invalid mnemonic", ErrKeyDerivation)
	}
	seed := bip39.NewSeed(mnemonic, "")

	// Fold (merchantID, customerID) into the seed deterministically via a
	// keyed hash rather than full BIP-32 — the spec only requires a stable,
	// collision-resistant path per (mnemonic, m, c), not wallet-standard
	// hardened derivation.
	material := make([]byte, 0, len(seed)+8)
	material = append(material, seed...)
	material = append(material, byte(merchantID>>24), byte(merchantID>>16), byte(merchantID>>8), byte(merchantID))
	material = append(material, byte(customerID>>24), byte(customerID>>16), byte(customerID>>8), byte(customerID))

	digest := crypto.Keccak256(material)
	scalar := new(big.Int).SetBytes(digest)
	scalar.Mod(scalar, new(big.Int).Sub(curveOrder, big.NewInt(1)))
	scalar.Add(scalar, big.NewInt(1)) // avoid the zero scalar

	priv, err := toECDSA(scalar)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	defer zero(priv)

	return Account{
		PrivateKeyHex: hex.EncodeToString(scalar.Bytes()),
		Address:       crypto.PubkeyToAddress(priv.PublicKey).Hex(),
	}, nil
}

// IsAdmin reports whether (merchantID, customerID) is the reserved admin pair.
func IsAdmin(merchantID, customerID uint32) bool {
	return merchantID == AdminMerchantID && customerID == AdminCustomerID
}

func toECDSA(scalar *big.Int) (*ecdsa.PrivateKey, error) {
	b := scalar.Bytes()
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return crypto.ToECDSA(padded)
}

// zero best-effort wipes the scalar component of a private key after use.
func zero(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}
	k.D.SetInt64(0)
}
