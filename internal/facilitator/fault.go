package facilitator

import (
	"errors"
	"fmt"
	"net/http"
)

// Fault error codes. Grouped by the HTTP status they map to.
const (
	// 400 — input validation and deterministic limit violations.
	CodeMissingArgs        = "missing_args"
	CodeInvalidAddress     = "invalid_address"
	CodeInvalidNonce       = "invalid_nonce"
	CodeInvalidValue       = "invalid_value"
	CodeRecipientMismatch  = "recipient_mismatch"
	CodeWindowInvalid      = "window_invalid"
	CodeWindowTooLong      = "window_too_long"
	CodeNotYetValid        = "not_yet_valid"
	CodeExpired            = "expired"
	CodeInvalidSignature   = "invalid_signature"
	CodeTxNotConfirmed     = "tx_not_confirmed"
	CodeInsufficientPaid   = "insufficient_payment"
	CodeWalletCapReached   = "wallet_cap_reached"
	CodeTotalCapReached    = "total_cap_reached"

	// 409 — state conflicts; the client may poll status.
	CodeAlreadyProcessing  = "already_processing"
	CodeAuthorizationUsed  = "authorization_already_used"

	// 502 — chain read/broadcast failures and payment-leg reverts;
	// retryable unless a payment hash is attached.
	CodeChainUnavailable   = "chain_unavailable"
	CodeBroadcastFailed    = "broadcast_failed"
	CodePaymentReverted    = "payment_reverted"

	// 500 — distribution failed after the payment leg succeeded. Funds were
	// captured; blind retry is unsafe because the nonce is consumed.
	CodeDistributionFailed = "distribution_failed"
	CodeInternal           = "internal_error"

	// 404 — status lookup for an unknown (payer, nonce) pair.
	CodeNotFound = "not_found"
)

// Fault is a client-visible failure with an HTTP mapping and enough
// structured detail (hashes, amounts) for manual remediation. It never
// carries stack traces or secrets.
type Fault struct {
	Status  int                    `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// NewFault builds a Fault.
func NewFault(status int, code, message string) *Fault {
	return &Fault{Status: status, Code: code, Message: message}
}

// WithDetail attaches one structured detail field.
func (f *Fault) WithDetail(key string, value interface{}) *Fault {
	if f.Details == nil {
		f.Details = make(map[string]interface{})
	}
	f.Details[key] = value
	return f
}

func badRequest(code, message string) *Fault {
	return NewFault(http.StatusBadRequest, code, message)
}

func conflict(code, message string) *Fault {
	return NewFault(http.StatusConflict, code, message)
}

func badGateway(code, message string) *Fault {
	return NewFault(http.StatusBadGateway, code, message)
}

// AsFault extracts a *Fault from an error chain, wrapping unknown errors as
// opaque internal failures so handler code has a single error shape.
func AsFault(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return NewFault(http.StatusInternalServerError, CodeInternal, "unexpected failure")
}
