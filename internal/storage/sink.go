package storage

import (
	"context"

	"github.com/bradykim7/dentscraper/internal/models"
	"go.uber.org/zap"
)

// Sink is an append-only product store
type Sink interface {
	Append(ctx context.Context, products []models.Product) error
}

// MultiSink writes every append to a primary sink and then to archives.
// Only the primary's error is returned; archive failures are logged.
type MultiSink struct {
	primary  Sink
	archives []Sink
	log      *zap.Logger
}

// NewMultiSink creates a sink fanning out to primary and archives
func NewMultiSink(log *zap.Logger, primary Sink, archives ...Sink) *MultiSink {
	return &MultiSink{
		primary:  primary,
		archives: archives,
		log:      log.Named("sink"),
	}
}

// Append writes products to every sink
func (m *MultiSink) Append(ctx context.Context, products []models.Product) error {
	err := m.primary.Append(ctx, products)

	for _, archive := range m.archives {
		if archiveErr := archive.Append(ctx, products); archiveErr != nil {
			m.log.Error("Failed to archive products", zap.Error(archiveErr))
		}
	}

	return err
}
