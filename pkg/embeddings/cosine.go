package embeddings

import (
	"math"
)

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// The accumulation runs in float64 so quantized float32 embeddings compare
// stably. The second return is false when the vectors cannot be compared:
// mismatched dimensions, empty input, or a zero-magnitude vector.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Clamp rounding spill so callers can rely on the [-1, 1] contract.
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}

	return sim, true
}
