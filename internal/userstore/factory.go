package userstore

import (
	"context"
	"strings"

	"github.com/ent0n29/mamashield/internal/lang"
)

// New creates a postgres-backed store when configured, otherwise in-memory.
func New(ctx context.Context, databaseURL string, defaultLang lang.Language) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(defaultLang), nil
	}
	return NewPostgresStore(ctx, databaseURL, defaultLang)
}
