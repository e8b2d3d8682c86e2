// Package authz validates signed EIP-3009 transfer authorizations without
// touching chain state. Validation is pure: message-field checks plus offline
// EIP-712 signature recovery.
package authz

import (
	"errors"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/licode-labs/facilitator/internal/chain"
)

// Validation failure signals, each distinct so callers can map them to
// precise client errors.
var (
	ErrMalformedAddress  = errors.New("malformed address")
	ErrMalformedNonce    = errors.New("malformed nonce")
	ErrValueMismatch     = errors.New("value does not equal the mint unit")
	ErrWindowInverted    = errors.New("validBefore must be greater than validAfter")
	ErrWindowTooLong     = errors.New("authorization window too long")
	ErrNotYetValid       = errors.New("authorization not yet valid")
	ErrExpired           = errors.New("authorization expired")
	ErrBadSignature      = errors.New("invalid signature encoding")
	ErrSignatureMismatch = errors.New("signature does not match payer")
)

var noncePattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// NonceWellFormed reports whether s is a 0x-prefixed 32-byte hex nonce.
func NonceWellFormed(s string) bool {
	return noncePattern.MatchString(s)
}

// Authorization is one TransferWithAuthorization message.
type Authorization struct {
	From        string
	To          string
	Value       *big.Int
	ValidAfter  int64 // unix seconds
	ValidBefore int64 // unix seconds
	Nonce       string // 32-byte hex, 0x-prefixed
}

// Verifier checks authorization messages against a fixed signing domain and
// time-window policy.
type Verifier struct {
	domain    Domain
	mintUnit  *big.Int
	maxWindow time.Duration
	drift     time.Duration
	now       func() time.Time
}

// NewVerifier builds a Verifier. maxWindow bounds validBefore-validAfter;
// drift widens the acceptance window on both sides.
func NewVerifier(domain Domain, mintUnit *big.Int, maxWindow, drift time.Duration) *Verifier {
	return &Verifier{
		domain:    domain,
		mintUnit:  new(big.Int).Set(mintUnit),
		maxWindow: maxWindow,
		drift:     drift,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Domain returns the signing domain the verifier checks against.
func (v *Verifier) Domain() Domain {
	return v.domain
}

// ValidateMessage checks the authorization's fields without looking at the
// signature: address and nonce shape, value against the mint unit, and the
// time window with drift tolerance.
func (v *Verifier) ValidateMessage(auth Authorization) error {
	if !common.IsHexAddress(auth.From) || !common.IsHexAddress(auth.To) {
		return ErrMalformedAddress
	}
	if !NonceWellFormed(auth.Nonce) {
		return ErrMalformedNonce
	}
	if auth.Value == nil || auth.Value.Sign() <= 0 || auth.Value.Cmp(v.mintUnit) != 0 {
		return ErrValueMismatch
	}
	if auth.ValidBefore <= auth.ValidAfter {
		return ErrWindowInverted
	}
	if time.Duration(auth.ValidBefore-auth.ValidAfter)*time.Second > v.maxWindow {
		return ErrWindowTooLong
	}

	now := v.now().Unix()
	driftSecs := int64(v.drift / time.Second)
	if now < auth.ValidAfter-driftSecs {
		return ErrNotYetValid
	}
	if now >= auth.ValidBefore+driftSecs {
		return ErrExpired
	}
	return nil
}

// Verify runs ValidateMessage and then recovers the signer from the EIP-712
// signature, asserting it equals the claimed payer. No side effects.
func (v *Verifier) Verify(auth Authorization, signature string) error {
	if err := v.ValidateMessage(auth); err != nil {
		return err
	}

	sigBytes, err := chain.HexToBytes(signature)
	if err != nil || len(sigBytes) != 65 {
		return ErrBadSignature
	}

	digest, err := HashTransferAuthorization(v.domain, auth)
	if err != nil {
		return ErrMalformedNonce
	}

	signer, err := RecoverSigner(digest, sigBytes)
	if err != nil {
		return ErrBadSignature
	}
	if !strings.EqualFold(signer, auth.From) {
		return ErrSignatureMismatch
	}
	return nil
}
