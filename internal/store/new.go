package store

import (
	"context"
	"fmt"
)

// New constructs the Backend cfg.Type selects.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Type {
	case "", TypeLocal:
		return NewLocal(cfg.Dir)
	case TypeS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported artifact store type: %s", cfg.Type)
	}
}
