// Package embeddings turns schema text into fixed-size vectors.
//
// The only provider is HashEmbedder, a deterministic bag-of-tokens embedder:
// every token maps to a pseudo-random Gaussian vector seeded from its
// MurmurHash3 digest, and a text embeds to the L2-normalized mean of its token
// vectors. Identical text yields bit-identical vectors in every process, so
// stored embeddings never need recomputing.
package embeddings
