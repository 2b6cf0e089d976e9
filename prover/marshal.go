package prover

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
)

const fpSize = 32

// ProofData is the interchange form of a Groth16 proof: affine coordinates
// as decimal strings, G2 coordinate pairs in (c0, c1) order. The third
// element of each point is the projective padding verifiers expect.
type ProofData struct {
	PiA      [3]string    `json:"pi_a"`
	PiB      [3][2]string `json:"pi_b"`
	PiC      [3]string    `json:"pi_c"`
	Protocol string       `json:"protocol"`
	Curve    string       `json:"curve"`
}

// MarshalProof encodes a gnark proof into interchange form. The raw
// serialization lays the eight field elements out as Ar.X, Ar.Y, Bs.X.A1,
// Bs.X.A0, Bs.Y.A1, Bs.Y.A0, Krs.X, Krs.Y; the G2 pairs are flipped into
// (A0, A1) order on the way out.
func MarshalProof(proof groth16.Proof) (*ProofData, error) {
	var buf bytes.Buffer
	if _, err := proof.WriteRawTo(&buf); err != nil {
		return nil, err
	}
	raw := buf.Bytes()
	if len(raw) < 8*fpSize {
		return nil, fmt.Errorf("proof serialization too short: %d bytes", len(raw))
	}

	var chunks [8]string
	for i := 0; i < 8; i++ {
		chunks[i] = new(big.Int).SetBytes(raw[i*fpSize : (i+1)*fpSize]).String()
	}

	return &ProofData{
		PiA: [3]string{chunks[0], chunks[1], "1"},
		PiB: [3][2]string{
			{chunks[3], chunks[2]},
			{chunks[5], chunks[4]},
			{"1", "0"},
		},
		PiC:      [3]string{chunks[6], chunks[7], "1"},
		Protocol: "groth16",
		Curve:    "bn254",
	}, nil
}

// UnmarshalProof decodes interchange form back into a gnark proof.
func UnmarshalProof(data *ProofData) (groth16.Proof, error) {
	if data.Protocol != "" && data.Protocol != "groth16" {
		return nil, fmt.Errorf("unsupported protocol %q", data.Protocol)
	}
	chunks := [8]string{
		data.PiA[0],
		data.PiA[1],
		data.PiB[0][1],
		data.PiB[0][0],
		data.PiB[1][1],
		data.PiB[1][0],
		data.PiC[0],
		data.PiC[1],
	}

	raw := make([]byte, 8*fpSize)
	for i, chunk := range chunks {
		v, ok := new(big.Int).SetString(chunk, 10)
		if !ok {
			return nil, fmt.Errorf("invalid proof element %q", chunk)
		}
		if v.BitLen() > 8*fpSize {
			return nil, fmt.Errorf("proof element out of range: %s", chunk)
		}
		v.FillBytes(raw[i*fpSize : (i+1)*fpSize])
	}

	// Proof serializations carry trailing commitment sections; pad with
	// zeros up to the size an empty proof of this curve serializes to.
	empty := groth16.NewProof(ecc.BN254)
	var sizeBuf bytes.Buffer
	if _, err := empty.WriteRawTo(&sizeBuf); err != nil {
		return nil, err
	}
	if sizeBuf.Len() > len(raw) {
		raw = append(raw, make([]byte, sizeBuf.Len()-len(raw))...)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return proof, nil
}
