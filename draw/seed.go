package draw

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Hasher is the circuit-friendly hash primitive used to derive seeds and to
// expand a seed into an index stream. Implementations are deterministic and
// free of side effects. The caller must respect the capacity constraint
// len(inputs)+1 >= outputCount (DeriveSeed pads with zero dummy inputs to
// satisfy it).
//
// A Hasher is an explicit handle: construct one once and pass it in, there
// is no package-level instance.
type Hasher interface {
	Hash(inputs []*big.Int, outputCount int) ([]*big.Int, error)
	// Field returns the prime modulus every input and output lives in.
	Field() *big.Int
}

// PoseidonHasher hashes with the circomlib-compatible Poseidon permutation.
// It pairs with circuit families whose constraint side is compiled from
// circom sources.
type PoseidonHasher struct{}

func NewPoseidonHasher() PoseidonHasher { return PoseidonHasher{} }

func (PoseidonHasher) Hash(inputs []*big.Int, outputCount int) ([]*big.Int, error) {
	if err := checkCapacity(inputs, outputCount); err != nil {
		return nil, err
	}
	outs, err := poseidon.HashEx(inputs, outputCount)
	if err != nil {
		return nil, fmt.Errorf("poseidon: %w", err)
	}
	return outs, nil
}

func (PoseidonHasher) Field() *big.Int { return fr.Modulus() }

// MiMCHasher hashes with the BN254 MiMC construction from gnark-crypto. It
// is the bit-exact host twin of gnark's in-circuit MiMC gadget and pairs
// with the circuit families bundled in this repository. Outputs beyond the
// first are domain-separated by appending the output index:
// out[0] = MiMC(inputs...), out[k] = MiMC(inputs..., k).
type MiMCHasher struct{}

func NewMiMCHasher() MiMCHasher { return MiMCHasher{} }

func (MiMCHasher) Hash(inputs []*big.Int, outputCount int) ([]*big.Int, error) {
	if err := checkCapacity(inputs, outputCount); err != nil {
		return nil, err
	}
	modulus := fr.Modulus()
	for _, in := range inputs {
		if in.Sign() < 0 || in.Cmp(modulus) >= 0 {
			return nil, validationf("hash input out of field range")
		}
	}
	outs := make([]*big.Int, outputCount)
	for k := 0; k < outputCount; k++ {
		h := mimc.NewMiMC()
		for _, in := range inputs {
			if _, err := h.Write(fieldBytes(in)); err != nil {
				return nil, fmt.Errorf("mimc: %w", err)
			}
		}
		if k > 0 {
			if _, err := h.Write(fieldBytes(big.NewInt(int64(k)))); err != nil {
				return nil, fmt.Errorf("mimc: %w", err)
			}
		}
		outs[k] = new(big.Int).SetBytes(h.Sum(nil))
	}
	return outs, nil
}

func (MiMCHasher) Field() *big.Int { return fr.Modulus() }

// fieldBytes encodes v as the 32-byte big-endian block MiMC consumes.
func fieldBytes(v *big.Int) []byte {
	var buf [fr.Bytes]byte
	v.FillBytes(buf[:])
	return buf[:]
}

func checkCapacity(inputs []*big.Int, outputCount int) error {
	if outputCount < 1 {
		return validationf("outputCount must be positive")
	}
	if len(inputs)+1 < outputCount {
		return validationf("hash capacity exceeded: %d inputs cannot yield %d outputs", len(inputs), outputCount)
	}
	return nil
}

// DeriveSeed canonicalizes 2 to 4 raw inputs and hashes them into
// outputCount seed values. When outputCount needs more capacity than the
// real inputs provide, zero-valued dummy inputs are appended first; the
// padding count is max(0, outputCount - len(inputs) - 1). The padding rule
// mirrors the circuit's own internal hashing and must never change
// independently of it.
func DeriveSeed(h Hasher, rawInputs []any, outputCount int) ([]*big.Int, error) {
	if outputCount < 1 {
		return nil, validationf("outputCount must be positive")
	}
	if len(rawInputs) < 2 || len(rawInputs) > 4 {
		return nil, validationf("expected 2 to 4 inputs, got %d", len(rawInputs))
	}
	canonical := make([]*big.Int, 0, outputCount)
	for i, raw := range rawInputs {
		v, err := Canonicalize(raw)
		if err != nil {
			return nil, validationf("input %d: %s", i, err)
		}
		canonical = append(canonical, v)
	}
	for pad := outputCount - len(canonical) - 1; pad > 0; pad-- {
		canonical = append(canonical, big.NewInt(0))
	}
	return h.Hash(canonical, outputCount)
}
