package draw

import (
	"encoding/json"
	"math/big"
	"strings"
)

// MaxInputBytes is the number of low-order bytes of a canonical input that
// are fed to the hash primitive. Values are truncated to 31 bytes (248 bits)
// so that every input fits a BN254 field element with headroom.
const MaxInputBytes = 31

var inputMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 8*MaxInputBytes), big.NewInt(1))

// Canonicalize converts one caller-supplied value into a non-negative
// big.Int. Recognized encodings, in order: Go integers, *big.Int / big.Int,
// byte slices (big-endian), and strings. A string with a 0x/0X prefix is
// parsed as hex; anything else as decimal. Negative values are rejected.
func Canonicalize(v any) (*big.Int, error) {
	var out *big.Int
	switch val := v.(type) {
	case nil:
		return nil, validationf("input is required")
	case int:
		out = big.NewInt(int64(val))
	case int32:
		out = big.NewInt(int64(val))
	case int64:
		out = big.NewInt(val)
	case uint32:
		out = new(big.Int).SetUint64(uint64(val))
	case uint64:
		out = new(big.Int).SetUint64(val)
	case *big.Int:
		if val == nil {
			return nil, validationf("input is required")
		}
		out = new(big.Int).Set(val)
	case big.Int:
		out = new(big.Int).Set(&val)
	case []byte:
		out = new(big.Int).SetBytes(val)
	case json.Number:
		return Canonicalize(string(val))
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, validationf("input is required")
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			parsed, ok := new(big.Int).SetString(s[2:], 16)
			if !ok {
				return nil, validationf("invalid hex input: %s", val)
			}
			out = parsed
		} else {
			parsed, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return nil, validationf("invalid decimal input: %s", val)
			}
			out = parsed
		}
	default:
		return nil, validationf("unsupported input type %T", v)
	}
	if out.Sign() < 0 {
		return nil, validationf("input must be non-negative")
	}
	return out.And(out, inputMask), nil
}

// Inputs are the raw circuit inputs as supplied by a caller. BlockHash and
// UserNonce are required; ExtraEntropy and Modulus are optional (Modulus is
// meaningful only for the modular-reduction circuit family).
type Inputs struct {
	BlockHash    any
	UserNonce    any
	ExtraEntropy any
	Modulus      any
}

// CanonicalInputs is the canonicalized, truncated form of Inputs.
// ExtraEntropy defaults to zero when absent; Modulus stays nil when absent.
type CanonicalInputs struct {
	BlockHash    *big.Int
	UserNonce    *big.Int
	ExtraEntropy *big.Int
	Modulus      *big.Int
}

func (in Inputs) Canonical() (*CanonicalInputs, error) {
	if in.BlockHash == nil {
		return nil, validationf("blockHash is required")
	}
	if in.UserNonce == nil {
		return nil, validationf("userNonce is required")
	}
	blockHash, err := Canonicalize(in.BlockHash)
	if err != nil {
		return nil, validationf("blockHash: %s", err)
	}
	userNonce, err := Canonicalize(in.UserNonce)
	if err != nil {
		return nil, validationf("userNonce: %s", err)
	}
	canonical := &CanonicalInputs{
		BlockHash:    blockHash,
		UserNonce:    userNonce,
		ExtraEntropy: big.NewInt(0),
	}
	if in.ExtraEntropy != nil {
		canonical.ExtraEntropy, err = Canonicalize(in.ExtraEntropy)
		if err != nil {
			return nil, validationf("extraEntropy: %s", err)
		}
	}
	if in.Modulus != nil {
		canonical.Modulus, err = Canonicalize(in.Modulus)
		if err != nil {
			return nil, validationf("modulus: %s", err)
		}
	}
	return canonical, nil
}

type inputsJSON struct {
	BlockHash    json.RawMessage `json:"blockHash"`
	UserNonce    json.RawMessage `json:"userNonce"`
	ExtraEntropy json.RawMessage `json:"extraEntropy"`
	Modulus      json.RawMessage `json:"modulus"`
}

// UnmarshalJSON accepts each field either as a JSON number or as a string
// (decimal or 0x-hex).
func (in *Inputs) UnmarshalJSON(data []byte) error {
	var raw inputsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if in.BlockHash, err = decodeRawInput(raw.BlockHash); err != nil {
		return err
	}
	if in.UserNonce, err = decodeRawInput(raw.UserNonce); err != nil {
		return err
	}
	if in.ExtraEntropy, err = decodeRawInput(raw.ExtraEntropy); err != nil {
		return err
	}
	if in.Modulus, err = decodeRawInput(raw.Modulus); err != nil {
		return err
	}
	return nil
}

func decodeRawInput(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return n, nil
}
