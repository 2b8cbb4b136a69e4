package fingerprint

import "math"

// Fingerprint holds the three duplicate-detection signals for one image.
// Embedding is nil only when the batch ran with the embedding tier disabled.
type Fingerprint struct {
	SHA256    string    `json:"sha256"`
	PHash     int64     `json:"phash"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// HasEmbedding reports whether the semantic embedding was computed.
func (f *Fingerprint) HasEmbedding() bool {
	return len(f.Embedding) > 0
}

// CosineSimilarity computes the cosine similarity between two embedding vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EmbeddingSimilar returns true if two embeddings have cosine similarity at or
// above threshold. A threshold of 0.9 typically indicates very similar images.
func EmbeddingSimilar(a, b []float32, threshold float64) bool {
	return CosineSimilarity(a, b) >= threshold
}
