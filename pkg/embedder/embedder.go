package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// TextEmbedder turns text into vectors for the text index.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}

// ImageEmbedder places images and text queries in a shared image space.
type ImageEmbedder interface {
	// EmbedImages embeds the images at paths. Unreadable images are
	// skipped: kept lists the indexes into paths that produced a vector,
	// in the same order as the returned vectors.
	EmbedImages(ctx context.Context, paths []string) (vectors [][]float32, kept []int, err error)

	// EmbedText embeds a query into the image space.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	Dimension() int
}

// SimpleEmbedder is an offline bag-of-words embedder. Each lower-cased
// token is hashed into a bucket; the resulting counts are L2-normalised.
// It needs no network access, which makes it useful for tests and demos.
type SimpleEmbedder struct {
	dim int
}

// NewSimpleEmbedder creates a hashing embedder with the given dimension.
func NewSimpleEmbedder(dimension int) *SimpleEmbedder {
	return &SimpleEmbedder{dim: dimension}
}

// Embed generates an embedding vector from text.
func (e *SimpleEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", e.dim)
	}
	vec := make([]float32, e.dim)

	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dim)]++
	}

	l2normalize(vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *SimpleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimension returns the embedding dimension.
func (e *SimpleEmbedder) Dimension() int {
	return e.dim
}

// ModelInfo returns model information.
func (e *SimpleEmbedder) ModelInfo() string {
	return "simple-hash-embedder-v2"
}

// l2normalize normalizes a vector to unit length.
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
