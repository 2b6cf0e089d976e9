package prover

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmarshalProofRejectsGarbage(t *testing.T) {
	_, err := UnmarshalProof(&ProofData{
		PiA: [3]string{"not a number", "1", "1"},
	})
	require.Error(t, err)
}

func TestUnmarshalProofRejectsWrongProtocol(t *testing.T) {
	_, err := UnmarshalProof(&ProofData{Protocol: "plonk"})
	require.Error(t, err)
}

func TestUnmarshalProofRejectsOversizedElement(t *testing.T) {
	huge := "1"
	for i := 0; i < 80; i++ {
		huge += "0"
	}
	data := &ProofData{
		PiA:      [3]string{huge, "1", "1"},
		PiB:      [3][2]string{{"1", "1"}, {"1", "1"}, {"1", "0"}},
		PiC:      [3]string{"1", "1", "1"},
		Protocol: "groth16",
	}
	_, err := UnmarshalProof(data)
	require.Error(t, err)
}
