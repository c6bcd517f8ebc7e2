package vectorindex

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/config"
)

// New constructs the vector index selected by cfg.VectorIndex.Provider.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Index, error) {
	switch cfg.VectorIndex.Provider {
	case "chromem", "":
		return NewChromemIndex(cfg.Chromem, logger)
	case "qdrant":
		return NewQdrantIndex(ctx, cfg.Qdrant, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported provider: %s (supported: chromem, qdrant)",
			ErrInvalidConfig, cfg.VectorIndex.Provider)
	}
}
