package memory

import (
	"context"
	"strings"
)

// NewStore keeps transcripts in Postgres when databaseURL is set, otherwise in process. Either way
// each owner keeps at most maxTurns turns.
func NewStore(ctx context.Context, databaseURL string, maxTurns int) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(maxTurns), nil
	}
	return NewPostgresStore(ctx, databaseURL, maxTurns)
}
