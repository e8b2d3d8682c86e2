package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const receiptPollInterval = 2 * time.Second

// Client implements Gateway on top of go-ethereum's ethclient, signing
// writes with a single ECDSA key (the distributor account).
type Client struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	// Serializes nonce assignment across concurrent writes from the same key.
	writeMu sync.Mutex
}

// Dial connects to an RPC endpoint and prepares the signing account.
func Dial(ctx context.Context, rpcURL, privateKeyHex string, chainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &Client{
		eth:     eth,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}, nil
}

// SignerAddress returns the address of the account used for writes.
func (c *Client) SignerAddress() string {
	return c.from.Hex()
}

// ReadContract executes a read-only contract call.
func (c *Client) ReadContract(ctx context.Context, address string, abiJSON []byte, function string, args ...interface{}) (interface{}, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(function, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", function, err)
	}

	addr := common.HexToAddress(address)
	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}

	outputs, err := contractABI.Unpack(function, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", function, err)
	}

	switch len(outputs) {
	case 0:
		return nil, nil
	case 1:
		return outputs[0], nil
	default:
		return outputs, nil
	}
}

// WriteContract signs and broadcasts a contract transaction.
func (c *Client) WriteContract(ctx context.Context, address string, abiJSON []byte, function string, args ...interface{}) (string, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(function, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s call: %w", function, err)
	}

	to := common.HexToAddress(address)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest gas price: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	return signed.Hash().Hex(), nil
}

// TransactionReceipt fetches a receipt, returning (nil, nil) when the
// transaction is unknown or still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	rcpt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt: %w", err)
	}
	return convertReceipt(rcpt), nil
}

// WaitForReceipt polls until the transaction mines or ctx is done.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		rcpt, err := c.TransactionReceipt(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if rcpt != nil {
			return rcpt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ChainID returns the connected network's chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// Balance returns the native balance of an address.
func (c *Client) Balance(ctx context.Context, address string) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
}

func convertReceipt(rcpt *types.Receipt) *Receipt {
	logs := make([]Log, 0, len(rcpt.Logs))
	for _, l := range rcpt.Logs {
		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = t.Hex()
		}
		logs = append(logs, Log{
			Address: l.Address.Hex(),
			Topics:  topics,
			Data:    l.Data,
		})
	}
	return &Receipt{
		TxHash:      rcpt.TxHash.Hex(),
		Status:      rcpt.Status,
		BlockNumber: rcpt.BlockNumber.Uint64(),
		Logs:        logs,
	}
}

var _ Gateway = (*Client)(nil)
