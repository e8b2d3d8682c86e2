// Package chain provides the facilitator's access to the blockchain: contract
// reads, signed contract writes, receipt fetch and confirmation wait. The core
// flows depend only on the Gateway interface so they can be tested against
// in-memory fakes.
package chain

import (
	"context"
	"math/big"
)

// Transaction receipt status values.
const (
	TxStatusSuccess = 1
	TxStatusFailed  = 0
)

// Log is one event emitted by a transaction.
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    []byte   `json:"data"`
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash      string `json:"transactionHash"`
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	Logs        []Log  `json:"logs"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == TxStatusSuccess
}

// Gateway is the chain access surface used by the verification and
// distribution flows. Implementations own RPC timeouts; callers treat a
// timeout like any other failure.
type Gateway interface {
	// ReadContract executes a read-only contract call and returns the single
	// decoded output (or a slice when the function has several).
	ReadContract(ctx context.Context, address string, abiJSON []byte, function string, args ...interface{}) (interface{}, error)

	// WriteContract signs and broadcasts a contract transaction, returning
	// its hash. It does not wait for the transaction to mine.
	WriteContract(ctx context.Context, address string, abiJSON []byte, function string, args ...interface{}) (string, error)

	// TransactionReceipt fetches the receipt for a mined transaction.
	// Returns (nil, nil) when the transaction is unknown or still pending.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// WaitForReceipt blocks until the transaction mines or ctx is done.
	WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// ChainID returns the id of the connected network.
	ChainID(ctx context.Context) (*big.Int, error)

	// BlockNumber returns the current head block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// Balance returns the native-token balance of an address.
	Balance(ctx context.Context, address string) (*big.Int, error)
}
