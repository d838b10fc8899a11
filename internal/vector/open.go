package vector

import (
	"context"

	"github.com/eldtechnologies/pricechat/internal/config"
)

// Open builds the similarity index from configuration. It returns nil when
// Qdrant or the Gemini embedding key is not configured.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg.QdrantURL == "" || cfg.GeminiAPIKey == "" {
		return nil, nil
	}
	embedder, err := NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	qdrant := NewQdrant(QdrantConfig{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		Timeout:    cfg.BackendTimeout,
	})
	return NewStore(qdrant, embedder, cfg.SimilarityThreshold, cfg.VectorTopK), nil
}
