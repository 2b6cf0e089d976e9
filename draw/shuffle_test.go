package draw

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referenceInputs(t *testing.T) *CanonicalInputs {
	t.Helper()
	canonical, err := Inputs{BlockHash: "12345678901234567890", UserNonce: 7}.Canonical()
	require.NoError(t, err)
	return canonical
}

func TestRangeSpecValidate(t *testing.T) {
	cases := []struct {
		name    string
		spec    RangeSpec
		wantErr string
	}{
		{"valid", RangeSpec{StartValue: 1, PoolSize: 35, NumOutputs: 5}, ""},
		{"zero outputs", RangeSpec{PoolSize: 35}, "numOutputs is required"},
		{"zero pool", RangeSpec{NumOutputs: 5}, "poolSize is required"},
		{"pool too large", RangeSpec{PoolSize: 51, NumOutputs: 5}, "poolSize must be <= 50"},
		{"outputs exceed pool", RangeSpec{PoolSize: 50, NumOutputs: 60}, "numOutputs must be <= poolSize"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.wantErr, err.Error())
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestPermuteIsBijective(t *testing.T) {
	h := NewMiMCHasher()
	seed := big.NewInt(424242)
	for _, poolSize := range []uint32{1, 2, 5, 35, MaxPoolSize} {
		spec := RangeSpec{StartValue: 1, PoolSize: poolSize, NumOutputs: 1}
		perm, err := Permute(h, seed, spec)
		require.NoError(t, err)
		require.Len(t, perm, int(poolSize))

		seen := make(map[int64]bool, poolSize)
		for _, v := range perm {
			assert.GreaterOrEqual(t, v, int64(1))
			assert.LessOrEqual(t, v, int64(poolSize))
			assert.False(t, seen[v], "value %d repeated", v)
			seen[v] = true
		}
	}
}

func TestPermuteDeterministic(t *testing.T) {
	h := NewMiMCHasher()
	spec := RangeSpec{StartValue: 1, PoolSize: 35, NumOutputs: 5}
	first, err := Permute(h, big.NewInt(7), spec)
	require.NoError(t, err)
	second, err := Permute(h, big.NewInt(7), spec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPermuteSeedDivergence(t *testing.T) {
	h := NewMiMCHasher()
	spec := RangeSpec{StartValue: 1, PoolSize: 35, NumOutputs: 5}
	a, err := Permute(h, big.NewInt(7), spec)
	require.NoError(t, err)
	b, err := Permute(h, big.NewInt(8), spec)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPermuteNegativeStart(t *testing.T) {
	h := NewMiMCHasher()
	spec := RangeSpec{StartValue: -10, PoolSize: 21, NumOutputs: 3}
	perm, err := Permute(h, big.NewInt(1), spec)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for _, v := range perm {
		assert.GreaterOrEqual(t, v, int64(-10))
		assert.LessOrEqual(t, v, int64(10))
		seen[v] = true
	}
	assert.Len(t, seen, 21)
}

func TestPermuteRequiresSeed(t *testing.T) {
	_, err := Permute(NewMiMCHasher(), nil, RangeSpec{StartValue: 1, PoolSize: 5, NumOutputs: 1})
	require.Error(t, err)
}

func TestDrawReferenceScenario(t *testing.T) {
	h := NewMiMCHasher()
	spec := RangeSpec{StartValue: 1, PoolSize: 35, NumOutputs: 5}
	picks, err := Draw(h, referenceInputs(t), spec)
	require.NoError(t, err)
	require.Len(t, picks, 5)

	seen := make(map[int64]bool)
	for _, pick := range picks {
		assert.GreaterOrEqual(t, pick, int64(1))
		assert.LessOrEqual(t, pick, int64(35))
		assert.False(t, seen[pick], "no-repeat draw returned %d twice", pick)
		seen[pick] = true
	}

	// Same inputs, same picks.
	again, err := Draw(h, referenceInputs(t), spec)
	require.NoError(t, err)
	assert.Equal(t, picks, again)
}

func TestDrawInputDivergence(t *testing.T) {
	h := NewMiMCHasher()
	spec := RangeSpec{StartValue: 1, PoolSize: 35, NumOutputs: 5}
	base, err := Draw(h, referenceInputs(t), spec)
	require.NoError(t, err)

	bumped, err := Inputs{BlockHash: "12345678901234567890", UserNonce: 8}.Canonical()
	require.NoError(t, err)
	other, err := Draw(h, bumped, spec)
	require.NoError(t, err)
	assert.NotEqual(t, base, other)

	withEntropy, err := Inputs{BlockHash: "12345678901234567890", UserNonce: 7, ExtraEntropy: 1}.Canonical()
	require.NoError(t, err)
	third, err := Draw(h, withEntropy, spec)
	require.NoError(t, err)
	assert.NotEqual(t, base, third)
}

func TestDrawFullPoolIsPermutation(t *testing.T) {
	h := NewMiMCHasher()
	spec := RangeSpec{StartValue: 100, PoolSize: 10, NumOutputs: 10}
	picks, err := Draw(h, referenceInputs(t), spec)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for _, pick := range picks {
		seen[pick] = true
	}
	assert.Len(t, seen, 10)
}

func TestDrawRejectsInvalidSpec(t *testing.T) {
	h := NewMiMCHasher()
	_, err := Draw(h, referenceInputs(t), RangeSpec{PoolSize: 50, NumOutputs: 60})
	require.Error(t, err)
	assert.Equal(t, "numOutputs must be <= poolSize", err.Error())
}

func TestModularOutputsRange(t *testing.T) {
	h := NewMiMCHasher()
	in, err := Inputs{BlockHash: "12345678901234567890", UserNonce: 7, Modulus: 100}.Canonical()
	require.NoError(t, err)

	outs, err := ModularOutputs(h, in, 5)
	require.NoError(t, err)
	require.Len(t, outs, 5)
	for _, out := range outs {
		assert.True(t, out.Sign() >= 0)
		assert.True(t, out.Cmp(big.NewInt(100)) < 0)
	}

	again, err := ModularOutputs(h, in, 5)
	require.NoError(t, err)
	assert.Equal(t, outs, again)
}

// The modular family draws its seed stream through DeriveSeed, so its
// zero-padding rule is the same one the seed derivation contract owns.
func TestModularOutputsFollowSeedDerivation(t *testing.T) {
	h := NewMiMCHasher()
	in, err := Inputs{BlockHash: "12345678901234567890", UserNonce: 7, Modulus: 100}.Canonical()
	require.NoError(t, err)

	seeds, err := DeriveSeed(h, []any{in.BlockHash, in.UserNonce, in.ExtraEntropy}, 5)
	require.NoError(t, err)
	outs, err := ModularOutputs(h, in, 5)
	require.NoError(t, err)
	require.Len(t, outs, 5)

	for i, s := range seeds {
		want := new(big.Int).And(s, modMask)
		want.Mod(want, in.Modulus)
		assert.Equal(t, want, outs[i], "output %d", i)
	}
}

func TestModularOutputsValidation(t *testing.T) {
	h := NewMiMCHasher()
	in := referenceInputs(t)

	_, err := ModularOutputs(h, in, 5)
	require.Error(t, err, "modulus absent")

	withMod, err := Inputs{BlockHash: "1", UserNonce: "2", Modulus: "18446744073709551616"}.Canonical()
	require.NoError(t, err)
	_, err = ModularOutputs(h, withMod, 1)
	require.Error(t, err, "modulus above 64 bits")

	okMod, err := Inputs{BlockHash: "1", UserNonce: "2", Modulus: 100}.Canonical()
	require.NoError(t, err)
	_, err = ModularOutputs(h, okMod, 0)
	require.Error(t, err, "zero outputs")
}
