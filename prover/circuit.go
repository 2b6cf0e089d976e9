package prover

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/constraint/solver"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"zkdraw/draw-prover/draw"
)

var (
	scalarField = ecc.BN254.ScalarField()
	two248      = new(big.Int).Lsh(big.NewInt(1), draw.StreamTruncBits)
	// Canonical decomposition bounds: a field element v splits as
	// hi*2^248 + lo with hi <= fieldHi, and lo < fieldLo when hi hits the
	// bound. Without both checks a prover could present the v+p aliasing
	// of the same residue and steer the truncation.
	fieldHi = new(big.Int).Rsh(scalarField, draw.StreamTruncBits)
	fieldLo = new(big.Int).And(scalarField, new(big.Int).Sub(two248, big.NewInt(1)))

	// streamMax is the largest truncated stream value, 2^248-1.
	streamMax = new(big.Int).Sub(two248, big.NewInt(1))
	// modQuotientMax caps the quotient of the modulus family: dividends are
	// truncated to 184 bits, so q <= 2^184-1 and q*m+r < 2^248 < p for any
	// modulus under 64 bits.
	modQuotientMax = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), draw.ModTruncBits), big.NewInt(1))
)

func init() {
	solver.RegisterHint(splitHint, divModHint)
}

// splitHint decomposes in[0] into (hi, lo) around the 2^248 boundary. The
// decomposition is advisory; Define constrains it to be the canonical one.
func splitHint(_ *big.Int, inputs, outputs []*big.Int) error {
	if len(inputs) != 1 || len(outputs) != 2 {
		return fmt.Errorf("splitHint: expected 1 input and 2 outputs")
	}
	outputs[0].Rsh(inputs[0], draw.StreamTruncBits)
	outputs[1].And(inputs[0], new(big.Int).Sub(two248, big.NewInt(1)))
	return nil
}

// divModHint computes in[0] / in[1] and in[0] mod in[1]. Define constrains
// the results so a dishonest solver gains nothing.
func divModHint(_ *big.Int, inputs, outputs []*big.Int) error {
	if len(inputs) != 2 || len(outputs) != 2 {
		return fmt.Errorf("divModHint: expected 2 inputs and 2 outputs")
	}
	if inputs[1].Sign() == 0 {
		return fmt.Errorf("divModHint: division by zero")
	}
	outputs[0].DivMod(inputs[0], inputs[1], outputs[1])
	return nil
}

// canonicalBits proves the canonical 254-bit decomposition of v and returns
// its low 248 bits, little-endian. Callers truncate by taking a prefix.
func canonicalBits(api frontend.API, v frontend.Variable) ([]frontend.Variable, error) {
	parts, err := api.Compiler().NewHint(splitHint, 2, v)
	if err != nil {
		return nil, err
	}
	hi, lo := parts[0], parts[1]

	loBits := api.ToBinary(lo, draw.StreamTruncBits)
	api.ToBinary(hi, 6)
	api.AssertIsEqual(v, api.Add(api.Mul(hi, two248), lo))

	// Reject the v+p alias: hi <= p>>248, and lo < p&mask at the boundary.
	api.AssertIsLessOrEqual(hi, fieldHi)
	atBound := api.IsZero(api.Sub(hi, fieldHi))
	shifted := api.Add(lo, new(big.Int).Sub(two248, fieldLo))
	shiftedBits := api.ToBinary(shifted, draw.StreamTruncBits+1)
	api.AssertIsEqual(api.Mul(atBound, shiftedBits[draw.StreamTruncBits]), 0)

	return loBits, nil
}

// modReduce proves r = v mod modulus. maxQuotient must bound the honest
// quotient and keep maxQuotient*modulus+modulus below the field modulus, so
// the divmod identity holds over the integers and not just the residues. A
// plain bit-width bound is not enough: the field is roughly 48.4*2^248, so
// for moduli of 49 or 50 the wrapped decomposition of v+p has a quotient
// that still fits 248 bits while its remainder differs from v mod modulus.
func modReduce(api frontend.API, v, modulus frontend.Variable, maxQuotient *big.Int) (frontend.Variable, error) {
	parts, err := api.Compiler().NewHint(divModHint, 2, v, modulus)
	if err != nil {
		return nil, err
	}
	q, r := parts[0], parts[1]
	api.AssertIsLessOrEqual(q, maxQuotient)
	api.AssertIsEqual(v, api.Add(api.Mul(q, modulus), r))
	api.AssertIsLessOrEqual(r, api.Sub(modulus, 1))
	return r, nil
}

// DrawCircuit proves that Outputs are the first NumOutputs entries of the
// seed-determined permutation of [StartValue, StartValue+PoolSize-1].
// Outputs are declared first so they occupy the leading public signals.
type DrawCircuit struct {
	Outputs      []frontend.Variable `gnark:",public"`
	BlockHash    frontend.Variable   `gnark:",public"`
	UserNonce    frontend.Variable   `gnark:",public"`
	ExtraEntropy frontend.Variable   `gnark:",public"`

	StartValue int64
	PoolSize   uint32
	NumOutputs uint32
}

func (c *DrawCircuit) Define(api frontend.API) error {
	if c.NumOutputs == 0 || c.NumOutputs > c.PoolSize || c.PoolSize > draw.MaxPoolSize {
		return fmt.Errorf("invalid shape: poolSize=%d numOutputs=%d", c.PoolSize, c.NumOutputs)
	}
	if len(c.Outputs) != int(c.NumOutputs) {
		return fmt.Errorf("outputs length %d does not match numOutputs %d", len(c.Outputs), c.NumOutputs)
	}

	seedHasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	seedHasher.Write(c.BlockHash, c.UserNonce, c.ExtraEntropy)
	seed := seedHasher.Sum()

	arr := make([]frontend.Variable, c.PoolSize)
	for i := range arr {
		arr[i] = c.StartValue + int64(i)
	}

	k := 1
	for pos := int(c.PoolSize) - 1; pos >= 1; pos-- {
		stepHasher, err := mimc.NewMiMC(api)
		if err != nil {
			return err
		}
		stepHasher.Write(seed, k)
		v := stepHasher.Sum()

		bits, err := canonicalBits(api, v)
		if err != nil {
			return err
		}
		truncated := api.FromBinary(bits...)
		qMax := new(big.Int).Div(streamMax, big.NewInt(int64(pos+1)))
		j, err := modReduce(api, truncated, pos+1, qMax)
		if err != nil {
			return err
		}

		// Swap arr[pos] and arr[j] with j only known at proving time:
		// gather the value at j, then scatter arr[pos] into slot j.
		atJ := frontend.Variable(0)
		eq := make([]frontend.Variable, pos+1)
		for i := 0; i <= pos; i++ {
			eq[i] = api.IsZero(api.Sub(j, i))
			atJ = api.Add(atJ, api.Mul(eq[i], arr[i]))
		}
		posVal := arr[pos]
		for i := 0; i < pos; i++ {
			arr[i] = api.Select(eq[i], posVal, arr[i])
		}
		arr[pos] = atJ
		k++
	}

	for i := 0; i < int(c.NumOutputs); i++ {
		api.AssertIsEqual(c.Outputs[i], arr[i])
	}
	return nil
}

// ModCircuit proves that each output is the truncated seed stream value
// reduced modulo the public modulus. The modulus is capped at 64 bits so
// the quotient check cannot wrap the field.
type ModCircuit struct {
	Outputs      []frontend.Variable `gnark:",public"`
	BlockHash    frontend.Variable   `gnark:",public"`
	UserNonce    frontend.Variable   `gnark:",public"`
	ExtraEntropy frontend.Variable   `gnark:",public"`
	Modulus      frontend.Variable   `gnark:",public"`

	NumOutputs uint32
}

func (c *ModCircuit) Define(api frontend.API) error {
	if c.NumOutputs == 0 {
		return fmt.Errorf("numOutputs is required")
	}
	if len(c.Outputs) != int(c.NumOutputs) {
		return fmt.Errorf("outputs length %d does not match numOutputs %d", len(c.Outputs), c.NumOutputs)
	}

	api.AssertIsDifferent(c.Modulus, 0)
	api.ToBinary(c.Modulus, draw.MaxModulusBits)

	inputs := []frontend.Variable{c.BlockHash, c.UserNonce, c.ExtraEntropy}
	for pad := int(c.NumOutputs) - len(inputs) - 1; pad > 0; pad-- {
		inputs = append(inputs, 0)
	}

	for k := 0; k < int(c.NumOutputs); k++ {
		h, err := mimc.NewMiMC(api)
		if err != nil {
			return err
		}
		h.Write(inputs...)
		if k > 0 {
			h.Write(k)
		}
		v := h.Sum()

		bits, err := canonicalBits(api, v)
		if err != nil {
			return err
		}
		truncated := api.FromBinary(bits[:draw.ModTruncBits]...)
		r, err := modReduce(api, truncated, c.Modulus, modQuotientMax)
		if err != nil {
			return err
		}
		api.AssertIsEqual(c.Outputs[k], r)
	}
	return nil
}
