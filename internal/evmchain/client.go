// Package evmchain is a thin ERC-20-aware wrapper over ethclient, built the
// way the teacher's wallet package talks to a chain: manual function
// selectors and eth_call/eth_sendRawTransaction, not a generated contract
// binding.
package evmchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// transferEventSignature is the Transfer(address,address,uint256) topic0.
var transferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

var (
	selectorBalanceOf                 = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selectorAllowance                 = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
	selectorApprove                   = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	selectorTransferFrom              = crypto.Keccak256([]byte("transferFrom(address,address,uint256)"))[:4]
	selectorDecimals                  = crypto.Keccak256([]byte("decimals()"))[:4]
	selectorTotalSupply               = crypto.Keccak256([]byte("totalSupply()"))[:4]
	selectorAuthorizationState        = crypto.Keccak256([]byte("authorizationState(address,bytes32)"))[:4]
	selectorTransferWithAuthorization = crypto.Keccak256([]byte("transferWithAuthorization(address,address,uint256,uint256,uint256,bytes32,uint8,bytes32,bytes32)"))[:4]
)

// Client wraps a single chain's JSON-RPC endpoint.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	log     *slog.Logger
}

// Dial connects to rpcURL and fetches its chain ID. log is used to warn on
// malformed Transfer logs encountered by FilterTransfers; a nil log falls
// back to slog.Default().
func Dial(ctx context.Context, rpcURL string, log *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evmchain: dial %s: %w", rpcURL, err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("evmchain: chain id: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{eth: eth, chainID: chainID, log: log}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

// ChainID returns the connected chain's numeric ID.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// LatestBlock returns the chain's current block height.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// TransferLog is one decoded ERC-20 Transfer event.
type TransferLog struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Value  *big.Int
	TxHash common.Hash
}

// FilterTransfers fetches ERC-20 Transfer events emitted by any of contracts
// within [fromBlock, toBlock], inclusive.
func (c *Client) FilterTransfers(ctx context.Context, contracts []common.Address, fromBlock, toBlock uint64) ([]TransferLog, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: contracts,
		Topics:    [][]common.Hash{{transferEventSignature}},
	}
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("evmchain: filter logs: %w", err)
	}

	out := make([]TransferLog, 0, len(logs))
	for _, entry := range logs {
		if len(entry.Topics) != 3 || len(entry.Data) < 32 {
			c.log.Warn("evmchain: skipping malformed transfer log",
				"tx_hash", entry.TxHash,
				"log_index", entry.Index,
				"topics", len(entry.Topics),
				"data_len", len(entry.Data),
			)
			continue // not a standard indexed Transfer(address,address,uint256)
		}
		out = append(out, TransferLog{
			Token:  entry.Address,
			From:   common.HexToAddress(entry.Topics[1].Hex()),
			To:     common.HexToAddress(entry.Topics[2].Hex()),
			Value:  new(big.Int).SetBytes(entry.Data[:32]),
			TxHash: entry.TxHash,
		})
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return c.eth.CallContract(ctx, msg, nil)
}

// TokenDecimals reads an ERC-20 token's decimals().
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	res, err := c.call(ctx, token, selectorDecimals)
	if err != nil {
		return 0, fmt.Errorf("evmchain: decimals: %w", err)
	}
	if len(res) < 32 {
		return 0, fmt.Errorf("evmchain: decimals: short response")
	}
	return uint8(new(big.Int).SetBytes(res[:32]).Uint64()), nil
}

// TokenTotalSupply reads an ERC-20 token's totalSupply().
func (c *Client) TokenTotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	res, err := c.call(ctx, token, selectorTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("evmchain: totalSupply: %w", err)
	}
	if len(res) < 32 {
		return nil, fmt.Errorf("evmchain: totalSupply: short response")
	}
	return new(big.Int).SetBytes(res[:32]), nil
}

// BalanceOf reads an ERC-20 token's balanceOf(owner).
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data := append(append([]byte{}, selectorBalanceOf...), common.LeftPadBytes(owner.Bytes(), 32)...)
	res, err := c.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("evmchain: balanceOf: %w", err)
	}
	if len(res) < 32 {
		return nil, fmt.Errorf("evmchain: balanceOf: short response")
	}
	return new(big.Int).SetBytes(res[:32]), nil
}

// Allowance reads an ERC-20 token's allowance(owner, spender).
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data := append(append([]byte{}, selectorAllowance...), common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	res, err := c.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("evmchain: allowance: %w", err)
	}
	if len(res) < 32 {
		return nil, fmt.Errorf("evmchain: allowance: short response")
	}
	return new(big.Int).SetBytes(res[:32]), nil
}

// AuthorizationState reads an EIP-3009 token's authorizationState(authorizer,
// nonce), true if the nonce has already been consumed.
func (c *Client) AuthorizationState(ctx context.Context, token, authorizer common.Address, nonce [32]byte) (bool, error) {
	data := append(append([]byte{}, selectorAuthorizationState...), common.LeftPadBytes(authorizer.Bytes(), 32)...)
	data = append(data, nonce[:]...)
	res, err := c.call(ctx, token, data)
	if err != nil {
		return false, fmt.Errorf("evmchain: authorizationState: %w", err)
	}
	if len(res) < 32 {
		return false, fmt.Errorf("evmchain: authorizationState: short response")
	}
	return new(big.Int).SetBytes(res[:32]).Sign() != 0, nil
}

// CallTransferWithAuthorization sends an EIP-3009
// transferWithAuthorization(from, to, value, validAfter, validBefore, nonce,
// v, r, s) from priv, the facilitator's admin signer.
func (c *Client) CallTransferWithAuthorization(ctx context.Context, priv *ecdsa.PrivateKey, token, from, to common.Address, value, validAfter, validBefore *big.Int, nonce [32]byte, v uint8, r, s [32]byte, gasPrice *big.Int, gasLimit uint64) (common.Hash, error) {
	data := append(append([]byte{}, selectorTransferWithAuthorization...), common.LeftPadBytes(from.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(value.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(validAfter.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(validBefore.Bytes(), 32)...)
	data = append(data, nonce[:]...)
	data = append(data, common.LeftPadBytes([]byte{v}, 32)...)
	data = append(data, r[:]...)
	data = append(data, s[:]...)
	return c.sendContractCall(ctx, priv, token, data, gasPrice, gasLimit)
}

// SuggestGasPrice returns the network's suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("evmchain: gas price: %w", err)
	}
	return price, nil
}

// SendNative transfers plain native coin from priv to `to`, used to forward
// gas before an approve call.
func (c *Client) SendNative(ctx context.Context, priv *ecdsa.PrivateKey, to common.Address, value, gasPrice *big.Int) (common.Hash, error) {
	from := crypto.PubkeyToAddress(priv.PublicKey)
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evmchain: nonce: %w", err)
	}
	tx := types.NewTransaction(nonce, to, value, 21000, gasPrice, nil)
	return c.signAndSend(ctx, priv, tx)
}

// CallApprove sends an ERC-20 approve(spender, amount) from priv.
func (c *Client) CallApprove(ctx context.Context, priv *ecdsa.PrivateKey, token, spender common.Address, amount, gasPrice *big.Int, gasLimit uint64) (common.Hash, error) {
	data := append(append([]byte{}, selectorApprove...), common.LeftPadBytes(spender.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return c.sendContractCall(ctx, priv, token, data, gasPrice, gasLimit)
}

// CallTransferFrom sends an ERC-20 transferFrom(from, to, amount) from priv.
func (c *Client) CallTransferFrom(ctx context.Context, priv *ecdsa.PrivateKey, token, owner, to common.Address, amount, gasPrice *big.Int, gasLimit uint64) (common.Hash, error) {
	data := append(append([]byte{}, selectorTransferFrom...), common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return c.sendContractCall(ctx, priv, token, data, gasPrice, gasLimit)
}

// EstimateGas estimates gas for an arbitrary call, used before approve to
// size the gas-forwarding native transfer.
func (c *Client) EstimateGas(ctx context.Context, from, to common.Address, data []byte) (uint64, error) {
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return 0, fmt.Errorf("evmchain: estimate gas: %w", err)
	}
	return gas, nil
}

func (c *Client) sendContractCall(ctx context.Context, priv *ecdsa.PrivateKey, to common.Address, data []byte, gasPrice *big.Int, gasLimit uint64) (common.Hash, error) {
	from := crypto.PubkeyToAddress(priv.PublicKey)
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evmchain: nonce: %w", err)
	}
	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	return c.signAndSend(ctx, priv, tx)
}

func (c *Client) signAndSend(ctx context.Context, priv *ecdsa.PrivateKey, tx *types.Transaction) (common.Hash, error) {
	signer := types.LatestSignerForChainID(c.chainID)
	signed, err := types.SignTx(tx, signer, priv)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evmchain: sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("evmchain: send tx: %w", err)
	}
	return signed.Hash(), nil
}

// WaitMined blocks until txHash is included in a block, or ctx is canceled.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}
