package metrics

import (
	"context"
	"strings"
)

// New creates a postgres-backed store when configured, otherwise in-memory.
func New(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
