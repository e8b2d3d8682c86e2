// Package payment inspects finalized transaction receipts to compute how much
// stablecoin actually reached the treasury from a claimed payer.
package payment

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/licode-labs/facilitator/internal/chain"
)

// TransferTopic is the keccak256 signature of the ERC-20 Transfer event.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")).Hex()

// CreditedAmount sums the Transfer amounts in a receipt's logs where the
// stablecoin contract emitted the event, the sender is the claimed payer and
// the recipient is the treasury. Address comparison is case-insensitive.
// Malformed or unrelated logs are skipped, not fatal.
func CreditedAmount(rcpt *chain.Receipt, stablecoin, payer, treasury string) *big.Int {
	paid := new(big.Int)
	if rcpt == nil {
		return paid
	}

	for _, log := range rcpt.Logs {
		if !strings.EqualFold(log.Address, stablecoin) {
			continue
		}
		// Transfer(address indexed from, address indexed to, uint256 value)
		if len(log.Topics) != 3 || !strings.EqualFold(log.Topics[0], TransferTopic) {
			continue
		}
		from, ok := addressFromTopic(log.Topics[1])
		if !ok {
			continue
		}
		to, ok := addressFromTopic(log.Topics[2])
		if !ok {
			continue
		}
		if len(log.Data) != 32 {
			continue
		}
		if strings.EqualFold(from, payer) && strings.EqualFold(to, treasury) {
			paid.Add(paid, new(big.Int).SetBytes(log.Data))
		}
	}
	return paid
}

// addressFromTopic extracts the address packed into a 32-byte indexed topic.
func addressFromTopic(topic string) (string, bool) {
	raw, err := chain.HexToBytes(topic)
	if err != nil || len(raw) != 32 {
		return "", false
	}
	return common.BytesToAddress(raw[12:]).Hex(), true
}
