package draw

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeAcceptedForms(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"int", 42, "42"},
		{"int64", int64(42), "42"},
		{"uint64", uint64(42), "42"},
		{"decimal string", "12345678901234567890", "12345678901234567890"},
		{"hex string", "0xff", "255"},
		{"uppercase hex prefix", "0XFF", "255"},
		{"json number", json.Number("7"), "7"},
		{"big int", big.NewInt(99), "99"},
		{"bytes", []byte{0x01, 0x00}, "256"},
		{"whitespace", "  42  ", "42"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Canonicalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestCanonicalizeTruncatesTo31Bytes(t *testing.T) {
	// 32 bytes of 0xff: only the low 31 bytes survive.
	full := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	got, err := Canonicalize(full)
	require.NoError(t, err)
	assert.Equal(t, 8*MaxInputBytes, got.BitLen())

	// A value already below 2^248 passes through unchanged.
	small := big.NewInt(123456)
	got, err = Canonicalize(small)
	require.NoError(t, err)
	assert.Equal(t, "123456", got.String())
}

func TestCanonicalizeRejections(t *testing.T) {
	cases := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"negative int", -1},
		{"negative string", "-5"},
		{"garbage string", "not a number"},
		{"bad hex", "0xzz"},
		{"empty string", ""},
		{"unsupported type", 3.14},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Canonicalize(tc.in)
			require.Error(t, err)
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestInputsCanonicalDefaults(t *testing.T) {
	canonical, err := Inputs{BlockHash: "42", UserNonce: 7}.Canonical()
	require.NoError(t, err)
	assert.Equal(t, "42", canonical.BlockHash.String())
	assert.Equal(t, "7", canonical.UserNonce.String())
	assert.Equal(t, int64(0), canonical.ExtraEntropy.Int64(), "extraEntropy defaults to zero")
	assert.Nil(t, canonical.Modulus)
}

func TestInputsCanonicalRequiredFields(t *testing.T) {
	_, err := Inputs{UserNonce: 7}.Canonical()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blockHash")

	_, err = Inputs{BlockHash: "42"}.Canonical()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "userNonce")
}

func TestInputsUnmarshalJSON(t *testing.T) {
	var in Inputs
	payload := `{"blockHash": "0xff", "userNonce": 7, "extraEntropy": "123", "modulus": 100}`
	require.NoError(t, json.Unmarshal([]byte(payload), &in))

	canonical, err := in.Canonical()
	require.NoError(t, err)
	assert.Equal(t, "255", canonical.BlockHash.String())
	assert.Equal(t, "7", canonical.UserNonce.String())
	assert.Equal(t, "123", canonical.ExtraEntropy.String())
	assert.Equal(t, "100", canonical.Modulus.String())
}

func TestInputsUnmarshalJSONOmittedFields(t *testing.T) {
	var in Inputs
	require.NoError(t, json.Unmarshal([]byte(`{"blockHash": "1", "userNonce": "2"}`), &in))
	assert.Nil(t, in.ExtraEntropy)
	assert.Nil(t, in.Modulus)
}

func TestEquivalentEncodingsCanonicalizeEqually(t *testing.T) {
	decimal, err := Canonicalize("255")
	require.NoError(t, err)
	hex, err := Canonicalize("0xff")
	require.NoError(t, err)
	number, err := Canonicalize(255)
	require.NoError(t, err)
	assert.Zero(t, decimal.Cmp(hex))
	assert.Zero(t, decimal.Cmp(number))
}
