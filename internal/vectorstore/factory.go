package vectorstore

import (
	"context"

	"github.com/Zykairotis/contextd/internal/config"
	"github.com/Zykairotis/contextd/internal/cxerr"
)

// Open builds the configured driver.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.VectorDB.Kind {
	case "qdrant":
		return NewQdrant(cfg.VectorDB.URL)
	case "pgvector":
		return NewPgvector(ctx, cfg.DatabaseURL, cfg.VectorDB.SparseVocabSize)
	default:
		return nil, cxerr.Newf(cxerr.KindConfig, "vectorstore", "unknown driver %q", cfg.VectorDB.Kind)
	}
}
