package facilitator

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// FlexBig is a non-negative integer that accepts JSON numbers, decimal
// strings, or hex strings. Client libraries serialize uint256 values
// inconsistently; anything that does not parse as a non-negative integer is
// rejected.
type FlexBig struct {
	value *big.Int
}

// BigInt returns the parsed value, or nil when the field was absent.
func (f *FlexBig) BigInt() *big.Int {
	return f.value
}

// Int64 converts the value, reporting whether it fits.
func (f *FlexBig) Int64() (int64, bool) {
	if f.value == nil || !f.value.IsInt64() {
		return 0, false
	}
	return f.value.Int64(), true
}

func (f *FlexBig) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	var s string
	switch v := raw.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = v
	default:
		return fmt.Errorf("value must be a number or string")
	}

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok || n.Sign() < 0 {
		return fmt.Errorf("value must be a non-negative integer")
	}
	f.value = n
	return nil
}

func (f FlexBig) MarshalJSON() ([]byte, error) {
	if f.value == nil {
		return []byte(`null`), nil
	}
	return json.Marshal(f.value.String())
}

// AuthorizationPayload is the client-submitted TransferWithAuthorization
// message, parsed defensively.
type AuthorizationPayload struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       FlexBig `json:"value"`
	ValidAfter  FlexBig `json:"validAfter"`
	ValidBefore FlexBig `json:"validBefore"`
	Nonce       string  `json:"nonce"`
}

// GaslessRequest is the body of a gas-less transfer submission.
type GaslessRequest struct {
	Authorization *AuthorizationPayload `json:"authorization"`
	Signature     string                `json:"signature"`
}
