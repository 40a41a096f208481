package knowledge

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryIndex keeps embedded chunks in memory and ranks them by cosine similarity.
type MemoryIndex struct {
	embedder Embedder

	mu     sync.RWMutex
	chunks []Chunk
}

func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	if embedder == nil {
		panic("knowledge: embedder cannot be nil")
	}
	return &MemoryIndex{embedder: embedder}
}

// Replace swaps the indexed chunks.
func (x *MemoryIndex) Replace(chunks []Chunk) {
	cp := make([]Chunk, len(chunks))
	copy(cp, chunks)
	x.mu.Lock()
	x.chunks = cp
	x.mu.Unlock()
}

func (x *MemoryIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks)
}

// Search returns the contents of the topK chunks closest to query.
func (x *MemoryIndex) Search(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 5
	}
	if x.Len() == 0 {
		return nil, nil
	}

	vecs, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	queryVec := vecs[0]

	type scored struct {
		score   float64
		content string
	}

	x.mu.RLock()
	results := make([]scored, 0, len(x.chunks))
	for _, c := range x.chunks {
		results = append(results, scored{score: cosineSimilarity(queryVec, c.Embedding), content: c.Content})
	}
	x.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	limit := min(topK, len(results))
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = results[i].content
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
