package tasks

import (
	"context"
	"strings"
	"time"
)

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string, loc *time.Location) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(loc), nil
	}
	return NewPostgresStore(ctx, databaseURL, loc)
}
