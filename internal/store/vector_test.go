package store

import (
	"math"
	"testing"
)

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75, 0}
	blob, err := EncodeVector(vec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeVector(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(vec) {
		t.Fatalf("dimension = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestEncodeVector_Invalid(t *testing.T) {
	if _, err := EncodeVector(nil); err == nil {
		t.Error("expected error for empty vector")
	}
	if _, err := EncodeVector([]float32{float32(math.NaN())}); err == nil {
		t.Error("expected error for NaN value")
	}
}

func TestDecodeVector_Invalid(t *testing.T) {
	cases := map[string][]byte{
		"too short":        {1, 2},
		"zero dim":         {0, 0, 0, 0},
		"payload mismatch": {2, 0, 0, 0, 1, 2, 3, 4}, // dim 2 but one value
	}
	for name, blob := range cases {
		if _, err := DecodeVector(blob); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}

	if got, err := CosineSimilarity(a, []float32{1, 0, 0}); err != nil || math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: got %v, %v", got, err)
	}
	if got, err := CosineSimilarity(a, []float32{0, 1, 0}); err != nil || math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: got %v, %v", got, err)
	}
	if got, err := CosineSimilarity(a, []float32{-1, 0, 0}); err != nil || math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite vectors: got %v, %v", got, err)
	}
}

func TestCosineSimilarity_Errors(t *testing.T) {
	if _, err := CosineSimilarity(nil, []float32{1}); err == nil {
		t.Error("expected error for empty vector")
	}
	if _, err := CosineSimilarity([]float32{1, 2}, []float32{1}); err == nil {
		t.Error("expected error for dimension mismatch")
	}
	if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); err == nil {
		t.Error("expected error for zero-norm vector")
	}
}
