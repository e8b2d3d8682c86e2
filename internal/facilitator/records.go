package facilitator

import "strings"

// Authorization record lifecycle states. A record moves
// pending → broadcasted → completed, or to failed from either live state.
// A failed record's key may be reclaimed by a new attempt.
const (
	StatusPending     = "pending"
	StatusBroadcasted = "broadcasted"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// AuthorizationRecord tracks one gas-less transfer attempt, keyed by
// (payer, nonce).
type AuthorizationRecord struct {
	Status        string `json:"status"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	ValidAfter    int64  `json:"validAfter"`
	ValidBefore   int64  `json:"validBefore"`
	Nonce         string `json:"nonce"`
	Signature     string `json:"signature"`
	PaymentTx     string `json:"paymentTx,omitempty"`
	DistributorTx string `json:"distributorTx,omitempty"`
	Error         string `json:"error,omitempty"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// ProcessedPayment records one completed direct-payment verification, keyed
// by payment transaction hash. Write-once.
type ProcessedPayment struct {
	User          string `json:"user"`
	Amount        string `json:"amount"`
	PaymentTx     string `json:"paymentTx"`
	DistributorTx string `json:"distributorTx"`
	Timestamp     int64  `json:"timestamp"`
	Origin        string `json:"origin,omitempty"`
}

// authorizationKey builds the case-normalized replay-store key for a
// gas-less attempt.
func authorizationKey(from, nonce string) string {
	return "auth:" + strings.ToLower(from) + ":" + strings.ToLower(nonce)
}

// paymentKey builds the case-normalized replay-store key for a direct
// payment.
func paymentKey(txHash string) string {
	return "tx:" + strings.ToLower(txHash)
}
