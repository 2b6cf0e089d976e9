package draw

import (
	"math/big"
)

// MaxPoolSize is the protocol ceiling on the size of a draw pool.
const MaxPoolSize = 50

// StreamTruncBits is the bit width every expanded index-stream value is
// truncated to before the modular reduction. The truncation keeps the
// in-circuit quotient range checks uniform across all swap steps.
const StreamTruncBits = 248

// ModTruncBits is the truncation width of the modular-reduction circuit
// family. It is narrower than StreamTruncBits so that quotient times
// modulus stays below the field modulus for any modulus up to 64 bits.
const ModTruncBits = 184

// MaxModulusBits bounds the public modulus of the modular-reduction family.
const MaxModulusBits = 64

var (
	streamMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), StreamTruncBits), big.NewInt(1))
	modMask    = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), ModTruncBits), big.NewInt(1))
	modCeiling = new(big.Int).Lsh(big.NewInt(1), MaxModulusBits)
)

// RangeSpec describes a draw over the contiguous range
// [StartValue, StartValue+PoolSize-1], of which the first NumOutputs
// permuted entries are the draw result.
type RangeSpec struct {
	StartValue int64  `json:"startValue"`
	PoolSize   uint32 `json:"poolSize"`
	NumOutputs uint32 `json:"numOutputs"`
}

func (r RangeSpec) Validate() error {
	if r.NumOutputs == 0 {
		return &ValidationError{Msg: "numOutputs is required"}
	}
	if r.PoolSize == 0 {
		return &ValidationError{Msg: "poolSize is required"}
	}
	if r.PoolSize > MaxPoolSize {
		return validationf("poolSize must be <= %d", MaxPoolSize)
	}
	if r.NumOutputs > r.PoolSize {
		return &ValidationError{Msg: "numOutputs must be <= poolSize"}
	}
	return nil
}

// Permute reorders the range described by spec into the order determined by
// seed. It is the host-side twin of the in-circuit shuffle and must stay
// bit-exact with it: position pos walks from PoolSize-1 down to 1 with a
// step counter k starting at 1; the swap index is
// trunc248(hash(seed, k)) mod (pos+1).
//
// The returned slice is always a full permutation of the range; callers
// consume the first spec.NumOutputs entries. Pure function, safe for
// concurrent use.
func Permute(h Hasher, seed *big.Int, spec RangeSpec) ([]int64, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if seed == nil {
		return nil, validationf("seed is required")
	}

	arr := make([]int64, spec.PoolSize)
	for i := range arr {
		arr[i] = spec.StartValue + int64(i)
	}

	k := int64(1)
	for pos := int(spec.PoolSize) - 1; pos >= 1; pos-- {
		outs, err := h.Hash([]*big.Int{seed, big.NewInt(k)}, 1)
		if err != nil {
			return nil, err
		}
		v := new(big.Int).And(outs[0], streamMask)
		j := new(big.Int).Mod(v, big.NewInt(int64(pos+1))).Int64()
		arr[pos], arr[j] = arr[j], arr[pos]
		k++
	}
	return arr, nil
}

// Draw derives a seed from the canonical inputs and returns the first
// NumOutputs entries of the resulting permutation.
func Draw(h Hasher, in *CanonicalInputs, spec RangeSpec) ([]int64, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	seeds, err := DeriveSeed(h, []any{in.BlockHash, in.UserNonce, in.ExtraEntropy}, 1)
	if err != nil {
		return nil, err
	}
	perm, err := Permute(h, seeds[0], spec)
	if err != nil {
		return nil, err
	}
	return perm[:spec.NumOutputs], nil
}

// ModularOutputs is the host mirror of the legacy modular-reduction family:
// each of count seed outputs is truncated to ModTruncBits bits and reduced
// modulo the public modulus. The modulus must fit MaxModulusBits bits.
func ModularOutputs(h Hasher, in *CanonicalInputs, count int) ([]*big.Int, error) {
	if count < 1 {
		return nil, validationf("outputCount must be positive")
	}
	if in.Modulus == nil || in.Modulus.Sign() == 0 {
		return nil, validationf("modulus is required")
	}
	if in.Modulus.Cmp(modCeiling) >= 0 {
		return nil, validationf("modulus must fit %d bits", MaxModulusBits)
	}
	seeds, err := DeriveSeed(h, []any{in.BlockHash, in.UserNonce, in.ExtraEntropy}, count)
	if err != nil {
		return nil, err
	}
	outs := make([]*big.Int, count)
	for i, s := range seeds {
		v := new(big.Int).And(s, modMask)
		outs[i] = v.Mod(v, in.Modulus)
	}
	return outs, nil
}
