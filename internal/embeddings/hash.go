package embeddings

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/spaolacci/murmur3"
)

// DefaultDimension is the embedding size used when none is configured.
const DefaultDimension = 512

// HashModel names the hash embedder in metrics.
const HashModel = "murmur3-gaussian"

// HashEmbedder embeds text as the normalized mean of per-token Gaussian vectors.
//
// Token vectors are cached for the lifetime of the embedder. The cache only
// grows; concurrent first uses of a token may both compute its vector, and the
// first stored value wins.
type HashEmbedder struct {
	dimension int
	cache     sync.Map // token -> []float64
	metrics   *Metrics
}

// NewHashEmbedder creates a HashEmbedder producing vectors of the given size.
// A non-positive dimension selects DefaultDimension. metrics may be nil.
func NewHashEmbedder(dimension int, metrics *Metrics) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dimension: dimension, metrics: metrics}
}

// Tokenize lower-cases text and splits it into runs of Unicode letters and
// digits. Everything else, including underscores, separates tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Embed returns the embedding of text. Text without tokens embeds to the zero
// vector; every other result has unit L2 norm.
func (e *HashEmbedder) Embed(text string) []float32 {
	vec, _ := e.embed(text)
	return vec
}

// embed returns the vector and the cache hit/miss counts for text.
func (e *HashEmbedder) embed(text string) ([]float32, cacheStats) {
	var stats cacheStats
	out := make([]float32, e.dimension)

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return out, stats
	}

	sum := make([]float64, e.dimension)
	for _, tok := range tokens {
		vec, hit := e.tokenVector(tok)
		if hit {
			stats.hits++
		} else {
			stats.misses++
		}
		for i, x := range vec {
			sum[i] += x
		}
	}

	n := float64(len(tokens))
	var norm float64
	for i := range sum {
		sum[i] /= n
		norm += sum[i] * sum[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out, stats
	}
	for i, x := range sum {
		out[i] = float32(x / norm)
	}
	return out, stats
}

// tokenVector returns the cached vector for tok, computing it on first use.
func (e *HashEmbedder) tokenVector(tok string) ([]float64, bool) {
	if v, ok := e.cache.Load(tok); ok {
		return v.([]float64), true
	}

	h1, h2 := murmur3.Sum128([]byte(tok))
	rng := rand.New(rand.NewPCG(h1, h2))
	vec := make([]float64, e.dimension)
	for i := range vec {
		vec[i] = rng.NormFloat64()
	}

	actual, _ := e.cache.LoadOrStore(tok, vec)
	return actual.([]float64), false
}

// EmbedQuery embeds a single search query.
func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		e.record(ctx, "embed_query", start, 1, cacheStats{}, err)
		return nil, err
	}
	vec, stats := e.embed(text)
	e.record(ctx, "embed_query", start, 1, stats, nil)
	return vec, nil
}

// EmbedDocuments embeds texts in order. Cancellation between texts discards
// the partial result.
func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var total cacheStats

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			e.record(ctx, "embed_documents", start, len(texts), total, err)
			return nil, err
		}
		vec, stats := e.embed(text)
		total.add(stats)
		out[i] = vec
	}

	e.record(ctx, "embed_documents", start, len(texts), total, nil)
	return out, nil
}

// Dimension returns the embedding size.
func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

// Close is a no-op; the cache is released with the embedder.
func (e *HashEmbedder) Close() error {
	return nil
}

func (e *HashEmbedder) record(ctx context.Context, operation string, start time.Time, batch int, stats cacheStats, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordGeneration(context.WithoutCancel(ctx), HashModel, operation, time.Since(start), batch, err)
	e.metrics.RecordCache(context.WithoutCancel(ctx), stats.hits, stats.misses)
}

type cacheStats struct {
	hits, misses int
}

func (s *cacheStats) add(o cacheStats) {
	s.hits += o.hits
	s.misses += o.misses
}

var _ Provider = (*HashEmbedder)(nil)
