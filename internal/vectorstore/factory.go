// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/schemactx/internal/config"
	"go.uber.org/zap"
)

// NewStore creates the Store selected by cfg.Store.Provider:
//   - "memory" (default): in-process MemoryStore, optionally snapshotted to disk
//   - "chromem": embedded ChromemStore persisted to a directory
//   - "qdrant": QdrantStore (requires external Qdrant server)
//
// Every backend uses cfg.Embeddings.Dimension as its vector size. The caller owns
// the returned store and must Close it once.
//
//	cfg, err := config.LoadWithFile("")
//	store, err := vectorstore.NewStore(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	dim := cfg.Embeddings.Dimension

	switch cfg.Store.Provider {
	case "memory", "":
		return NewMemoryStore(MemoryConfig{
			VectorSize:   dim,
			SnapshotPath: cfg.Memory.SnapshotPath,
			Compress:     cfg.Memory.Compress,
		}, logger)

	case "chromem":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Chromem.Collection,
			VectorSize: dim,
		}, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			VectorSize: dim,
			UseTLS:     cfg.Qdrant.UseTLS,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			Timeout:    cfg.Qdrant.Timeout.Duration(),
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: memory, chromem, qdrant)",
			ErrInvalidConfig, cfg.Store.Provider)
	}
}

// Flusher is implemented by stores that buffer state in memory.
type Flusher interface {
	Flush() error
}

// Flush persists buffered state when the store supports it.
func Flush(store Store) error {
	if f, ok := store.(Flusher); ok {
		return f.Flush()
	}
	return nil
}
