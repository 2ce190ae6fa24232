package discovery

import (
	"crypto/sha256"
	"math"
	"strings"
)

// EmbeddingDim is the fixed dense-vector dimension (§4.5 default D=384).
const EmbeddingDim = 384

// Embedder computes a fixed-dimension dense vector for a piece of text. The
// gateway wires in whatever sentence-embedding model a deployment has
// available; HashEmbedder below is the dependency-free default used when
// none is configured (local dev, tests) and is deliberately not a stand-in
// for a real model's semantics.
type Embedder interface {
	Embed(text string) []float32
}

// HashEmbedder derives a deterministic pseudo-embedding from token hashes.
// It preserves exact and near-exact lexical overlap (useful for tests)
// without depending on a model runtime.
type HashEmbedder struct{}

// Embed implements Embedder.
func (HashEmbedder) Embed(text string) []float32 {
	v := make([]float32, EmbeddingDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(tok))
		for i := 0; i < EmbeddingDim; i++ {
			// Spread each token's hash bytes across the vector, accumulating
			// so repeated/overlapping tokens reinforce shared dimensions.
			v[i] += float32(sum[i%len(sum)]) - 127.5
		}
	}
	normalize(v)
	return v
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}

// CosineSimilarity returns the cosine similarity of two equal-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
