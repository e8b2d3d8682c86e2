package payment

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/licode-labs/facilitator/internal/chain"
)

const (
	usdcAddress = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	payerAddr   = "0x1111111111111111111111111111111111111111"
	treasury    = "0x2222222222222222222222222222222222222222"
	otherAddr   = "0x3333333333333333333333333333333333333333"
)

func addressTopic(addr string) string {
	return "0x" + strings.Repeat("0", 24) + strings.ToLower(strings.TrimPrefix(addr, "0x"))
}

func transferLog(token, from, to string, amount int64) chain.Log {
	data := make([]byte, 32)
	big.NewInt(amount).FillBytes(data)
	return chain.Log{
		Address: token,
		Topics:  []string{TransferTopic, addressTopic(from), addressTopic(to)},
		Data:    data,
	}
}

func TestCreditedAmount_SingleTransfer(t *testing.T) {
	rcpt := &chain.Receipt{
		Status: chain.TxStatusSuccess,
		Logs:   []chain.Log{transferLog(usdcAddress, payerAddr, treasury, 1_000_000)},
	}

	paid := CreditedAmount(rcpt, usdcAddress, payerAddr, treasury)
	assert.Equal(t, int64(1_000_000), paid.Int64())
}

func TestCreditedAmount_SumsMultipleTransfers(t *testing.T) {
	rcpt := &chain.Receipt{
		Logs: []chain.Log{
			transferLog(usdcAddress, payerAddr, treasury, 600_000),
			transferLog(usdcAddress, payerAddr, treasury, 400_000),
		},
	}

	paid := CreditedAmount(rcpt, usdcAddress, payerAddr, treasury)
	assert.Equal(t, int64(1_000_000), paid.Int64())
}

func TestCreditedAmount_IgnoresUnrelatedLogs(t *testing.T) {
	rcpt := &chain.Receipt{
		Logs: []chain.Log{
			// Wrong token contract.
			transferLog(otherAddr, payerAddr, treasury, 1_000_000),
			// Wrong sender.
			transferLog(usdcAddress, otherAddr, treasury, 1_000_000),
			// Wrong recipient.
			transferLog(usdcAddress, payerAddr, otherAddr, 1_000_000),
			// Counted.
			transferLog(usdcAddress, payerAddr, treasury, 250_000),
		},
	}

	paid := CreditedAmount(rcpt, usdcAddress, payerAddr, treasury)
	assert.Equal(t, int64(250_000), paid.Int64())
}

func TestCreditedAmount_SkipsMalformedLogs(t *testing.T) {
	good := transferLog(usdcAddress, payerAddr, treasury, 100_000)
	rcpt := &chain.Receipt{
		Logs: []chain.Log{
			{Address: usdcAddress, Topics: []string{TransferTopic}, Data: good.Data},
			{Address: usdcAddress, Topics: []string{TransferTopic, "0xnothex", good.Topics[2]}, Data: good.Data},
			{Address: usdcAddress, Topics: good.Topics, Data: []byte{0x01}},
			good,
		},
	}

	paid := CreditedAmount(rcpt, usdcAddress, payerAddr, treasury)
	assert.Equal(t, int64(100_000), paid.Int64())
}

func TestCreditedAmount_CaseInsensitiveAddresses(t *testing.T) {
	rcpt := &chain.Receipt{
		Logs: []chain.Log{transferLog(strings.ToLower(usdcAddress), payerAddr, treasury, 42)},
	}

	paid := CreditedAmount(rcpt, strings.ToUpper(usdcAddress[:2])+usdcAddress[2:],
		strings.ToLower(payerAddr), strings.ToUpper(treasury[:2])+treasury[2:])
	assert.Equal(t, int64(42), paid.Int64())
}

func TestCreditedAmount_NilReceipt(t *testing.T) {
	paid := CreditedAmount(nil, usdcAddress, payerAddr, treasury)
	assert.Zero(t, paid.Sign())
}
