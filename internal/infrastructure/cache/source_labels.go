package cache

import (
	"context"
	"sync"

	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

// SourceLabels is a read-through cache over a SourceCatalog. Labels are
// immutable once a source is ingested, so entries are never evicted.
type SourceLabels struct {
	catalog ports.SourceCatalog

	mu     sync.RWMutex
	labels map[string]string
}

func NewSourceLabels(catalog ports.SourceCatalog) *SourceLabels {
	return &SourceLabels{
		catalog: catalog,
		labels:  make(map[string]string),
	}
}

func (c *SourceLabels) GetSourceLabel(ctx context.Context, sourceID string) (string, error) {
	c.mu.RLock()
	label, ok := c.labels[sourceID]
	c.mu.RUnlock()
	if ok {
		return label, nil
	}

	label, err := c.catalog.GetSourceLabel(ctx, sourceID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.labels[sourceID] = label
	c.mu.Unlock()
	return label, nil
}
