// Package distribute executes the reward token's controlled distribution
// entry point and enforces the per-wallet and global caps around it.
package distribute

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/licode-labs/facilitator/internal/chain"
)

// Cap violations, deterministic until caps change on-chain.
var (
	ErrWalletCapReached = errors.New("wallet cap reached")
	ErrTotalCapReached  = errors.New("total cap reached")
)

// RevertError reports a distribution transaction that mined but reverted.
// The hash is kept so the outcome can be investigated.
type RevertError struct {
	TxHash string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("distribution transaction reverted: %s", e.TxHash)
}

// Executor invokes distribute(to, amount) on the reward token and waits for
// finality. Cap pre-checks and the distribution call for one payer are
// serialized through a per-payer lock, closing the read-then-act window
// between two concurrent payments for the same wallet.
type Executor struct {
	gw    chain.Gateway
	token string
	log   *zap.Logger

	mu     sync.Mutex
	payers map[string]*sync.Mutex
}

// NewExecutor creates an Executor for the given reward token contract.
func NewExecutor(gw chain.Gateway, tokenAddress string, log *zap.Logger) *Executor {
	return &Executor{
		gw:     gw,
		token:  tokenAddress,
		log:    log,
		payers: make(map[string]*sync.Mutex),
	}
}

// LockPayer serializes cap checks and distribution for one payer. The
// returned function releases the lock.
func (e *Executor) LockPayer(payer string) func() {
	key := strings.ToLower(payer)

	e.mu.Lock()
	m, ok := e.payers[key]
	if !ok {
		m = &sync.Mutex{}
		e.payers[key] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// WalletCredited returns the stablecoin value already credited to a wallet.
func (e *Executor) WalletCredited(ctx context.Context, payer string) (*big.Int, error) {
	return e.readUint(ctx, chain.FunctionUsdcByWallet, common.HexToAddress(payer))
}

// PerWalletCap returns the per-wallet credit limit.
func (e *Executor) PerWalletCap(ctx context.Context) (*big.Int, error) {
	return e.readUint(ctx, chain.FunctionPerWalletCap)
}

// TotalCap returns the global credit limit.
func (e *Executor) TotalCap(ctx context.Context) (*big.Int, error) {
	return e.readUint(ctx, chain.FunctionTotalCap)
}

// TotalCounted returns the global credited amount so far.
func (e *Executor) TotalCounted(ctx context.Context) (*big.Int, error) {
	return e.readUint(ctx, chain.FunctionUsdcCounted)
}

// CheckWalletCap fails with ErrWalletCapReached when crediting amount would
// push the payer past the per-wallet cap.
func (e *Executor) CheckWalletCap(ctx context.Context, payer string, amount *big.Int) error {
	credited, err := e.WalletCredited(ctx, payer)
	if err != nil {
		return err
	}
	limit, err := e.PerWalletCap(ctx)
	if err != nil {
		return err
	}
	if new(big.Int).Add(credited, amount).Cmp(limit) > 0 {
		return ErrWalletCapReached
	}
	return nil
}

// CheckTotalCap fails with ErrTotalCapReached when crediting amount would
// push the global counted value past the total cap.
func (e *Executor) CheckTotalCap(ctx context.Context, amount *big.Int) error {
	counted, err := e.TotalCounted(ctx)
	if err != nil {
		return err
	}
	limit, err := e.TotalCap(ctx)
	if err != nil {
		return err
	}
	if new(big.Int).Add(counted, amount).Cmp(limit) > 0 {
		return ErrTotalCapReached
	}
	return nil
}

// Distribute broadcasts distribute(payer, amount) and waits for confirmation.
// The transaction hash is returned whenever a broadcast happened, including
// the revert case.
func (e *Executor) Distribute(ctx context.Context, payer string, amount *big.Int) (string, error) {
	txHash, err := e.gw.WriteContract(ctx, e.token, chain.TokenABI, chain.FunctionDistribute,
		common.HexToAddress(payer), amount)
	if err != nil {
		return "", fmt.Errorf("failed to submit distribution: %w", err)
	}

	e.log.Info("distribution broadcast",
		zap.String("payer", payer),
		zap.String("amount", amount.String()),
		zap.String("tx", txHash))

	rcpt, err := e.gw.WaitForReceipt(ctx, txHash)
	if err != nil {
		return txHash, fmt.Errorf("failed to confirm distribution %s: %w", txHash, err)
	}
	if !rcpt.Succeeded() {
		return txHash, &RevertError{TxHash: txHash}
	}
	return txHash, nil
}

func (e *Executor) readUint(ctx context.Context, function string, args ...interface{}) (*big.Int, error) {
	result, err := e.gw.ReadContract(ctx, e.token, chain.TokenABI, function, args...)
	if err != nil {
		return nil, err
	}
	value, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from %s", function)
	}
	return value, nil
}
