package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quillsociety/auditions/internal/docstore"
	"github.com/quillsociety/auditions/internal/models"
)

// CopyStats reports how many documents were copied per collection.
type CopyStats map[string]int

// CopyCollections copies every document of the given collections (all of the
// service's collections when empty) from src into dst, replacing documents
// with the same id. Writes go out in batches of batchSize.
func CopyCollections(ctx context.Context, src, dst docstore.Store, collections []string, batchSize int, logger *slog.Logger) (CopyStats, error) {
	if src == nil || dst == nil {
		return nil, errors.New("source and destination stores are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if len(collections) == 0 {
		collections = models.AllCollections
	}
	stats := CopyStats{}
	for _, col := range collections {
		docs, err := src.Query(ctx, col, docstore.Query{})
		if err != nil {
			return stats, fmt.Errorf("read %s: %w", col, err)
		}
		for start := 0; start < len(docs); start += batchSize {
			end := min(start+batchSize, len(docs))
			b := dst.Batch()
			for _, doc := range docs[start:end] {
				b.Set(col, doc.ID, doc.Data)
			}
			if err := b.Commit(ctx); err != nil {
				return stats, fmt.Errorf("write %s [%d:%d]: %w", col, start, end, err)
			}
			stats[col] = end
		}
		logger.Info("collection copied", "collection", col, "documents", len(docs))
	}
	return stats, nil
}
