package authz

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licode-labs/facilitator/internal/chain"
)

var testDomain = Domain{
	Name:              "USDC",
	Version:           "2",
	ChainID:           big.NewInt(84532),
	VerifyingContract: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
}

const (
	testTreasury = "0x1000000000000000000000000000000000000001"
	testNonce    = "0x0000000000000000000000000000000000000000000000000000000000000abc"
)

var testNow = time.Unix(1_700_000_000, 0)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	return NewVerifier(testDomain, big.NewInt(1_000_000), time.Hour, 30*time.Second).
		WithClock(func() time.Time { return testNow })
}

// signAuthorization produces a real EIP-712 signature over auth with a fresh
// key, setting auth.From to the signing address.
func signAuthorization(t *testing.T, auth *Authorization) string {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	auth.From = crypto.PubkeyToAddress(key.PublicKey).Hex()

	digest, err := HashTransferAuthorization(testDomain, *auth)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)
	sig[64] += 27
	return chain.BytesToHex(sig)
}

func validAuthorization() Authorization {
	return Authorization{
		To:          testTreasury,
		Value:       big.NewInt(1_000_000),
		ValidAfter:  testNow.Unix() - 60,
		ValidBefore: testNow.Unix() + 600,
		Nonce:       testNonce,
	}
}

func TestVerify_ValidSignature(t *testing.T) {
	v := newTestVerifier(t)
	auth := validAuthorization()
	sig := signAuthorization(t, &auth)

	assert.NoError(t, v.Verify(auth, sig))
}

func TestVerify_SignatureMismatch(t *testing.T) {
	v := newTestVerifier(t)
	auth := validAuthorization()
	sig := signAuthorization(t, &auth)

	// Claim a different payer than the one that signed.
	auth.From = "0x2000000000000000000000000000000000000002"
	assert.ErrorIs(t, v.Verify(auth, sig), ErrSignatureMismatch)
}

func TestVerify_TamperedMessage(t *testing.T) {
	v := newTestVerifier(t)
	auth := validAuthorization()
	sig := signAuthorization(t, &auth)

	auth.ValidBefore += 100
	assert.ErrorIs(t, v.Verify(auth, sig), ErrSignatureMismatch)
}

func TestVerify_BadSignatureEncoding(t *testing.T) {
	v := newTestVerifier(t)
	auth := validAuthorization()
	signAuthorization(t, &auth)

	assert.ErrorIs(t, v.Verify(auth, "0x1234"), ErrBadSignature)
	assert.ErrorIs(t, v.Verify(auth, "not hex"), ErrBadSignature)
}

func TestValidateMessage(t *testing.T) {
	now := testNow.Unix()

	tests := []struct {
		name   string
		mutate func(*Authorization)
		want   error
	}{
		{
			name:   "valid",
			mutate: func(*Authorization) {},
			want:   nil,
		},
		{
			name:   "malformed from address",
			mutate: func(a *Authorization) { a.From = "0x123" },
			want:   ErrMalformedAddress,
		},
		{
			name:   "malformed nonce",
			mutate: func(a *Authorization) { a.Nonce = "0xzz" },
			want:   ErrMalformedNonce,
		},
		{
			name:   "nonce too short",
			mutate: func(a *Authorization) { a.Nonce = "0xabcd" },
			want:   ErrMalformedNonce,
		},
		{
			name:   "value below mint unit",
			mutate: func(a *Authorization) { a.Value = big.NewInt(999_999) },
			want:   ErrValueMismatch,
		},
		{
			name:   "value above mint unit",
			mutate: func(a *Authorization) { a.Value = big.NewInt(2_000_000) },
			want:   ErrValueMismatch,
		},
		{
			name:   "zero value",
			mutate: func(a *Authorization) { a.Value = big.NewInt(0) },
			want:   ErrValueMismatch,
		},
		{
			name: "inverted window",
			mutate: func(a *Authorization) {
				a.ValidAfter = now + 100
				a.ValidBefore = now + 50
			},
			want: ErrWindowInverted,
		},
		{
			name: "window too long",
			mutate: func(a *Authorization) {
				a.ValidAfter = now - 60
				a.ValidBefore = now - 60 + 3601
			},
			want: ErrWindowTooLong,
		},
		{
			name: "not yet valid beyond drift",
			mutate: func(a *Authorization) {
				a.ValidAfter = now + 31
				a.ValidBefore = now + 600
			},
			want: ErrNotYetValid,
		},
		{
			name: "not yet valid but within drift",
			mutate: func(a *Authorization) {
				a.ValidAfter = now + 29
				a.ValidBefore = now + 600
			},
			want: nil,
		},
		{
			name: "expired beyond drift",
			mutate: func(a *Authorization) {
				a.ValidAfter = now - 600
				a.ValidBefore = now - 30
			},
			want: ErrExpired,
		},
		{
			name: "expired but within drift",
			mutate: func(a *Authorization) {
				a.ValidAfter = now - 600
				a.ValidBefore = now - 29
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t)
			auth := validAuthorization()
			auth.From = "0x3000000000000000000000000000000000000003"
			tt.mutate(&auth)

			err := v.ValidateMessage(auth)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestNonceWellFormed(t *testing.T) {
	assert.True(t, NonceWellFormed(testNonce))
	assert.True(t, NonceWellFormed("0x"+strings.Repeat("Ab", 32)))
	assert.False(t, NonceWellFormed(""))
	assert.False(t, NonceWellFormed("0x1234"))
	assert.False(t, NonceWellFormed(strings.TrimPrefix(testNonce, "0x")))
	assert.False(t, NonceWellFormed("0x"+strings.Repeat("zz", 32)))
}

func TestRecoverSigner_RejectsShortSignature(t *testing.T) {
	_, err := RecoverSigner(make([]byte, 32), make([]byte, 64))
	assert.Error(t, err)
}
