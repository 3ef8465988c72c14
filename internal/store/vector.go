package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embedding vectors are persisted as blobs: a 4-byte little-endian dimension
// header followed by the float32 values, little-endian.

const vectorHeaderLen = 4

func EncodeVector(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("encode vector: empty vector")
	}

	blob := make([]byte, vectorHeaderLen+4*len(vec))
	binary.LittleEndian.PutUint32(blob, uint32(len(vec)))
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("encode vector: non-finite value at index %d", i)
		}
		binary.LittleEndian.PutUint32(blob[vectorHeaderLen+4*i:], math.Float32bits(v))
	}
	return blob, nil
}

func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob) < vectorHeaderLen {
		return nil, fmt.Errorf("decode vector: blob too short: %d bytes", len(blob))
	}

	dim := int(binary.LittleEndian.Uint32(blob))
	if dim <= 0 || len(blob) != vectorHeaderLen+4*dim {
		return nil, fmt.Errorf("decode vector: dimension %d does not match payload of %d bytes", dim, len(blob)-vectorHeaderLen)
	}

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[vectorHeaderLen+4*i:]))
	}
	return vec, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped
// to [-1, 1]. Zero-norm or mismatched vectors are errors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("cosine similarity: empty vector")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine similarity: dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("cosine similarity: zero-norm vector")
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, score)), nil
}
