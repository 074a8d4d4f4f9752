package store

import (
	"fmt"

	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

// CheckAndBump validates a client's optimistic version expectation
// against the stored version and returns the next version to persist.
// A nil expectation means the caller did not read the entity first and
// accepts last-write-wins; the version still advances so other clients
// detect the change.
func CheckAndBump(stored int64, expected *int64) (int64, error) {
	if expected != nil && *expected != stored {
		return 0, fmt.Errorf("expected version %d, stored version %d: %w",
			*expected, stored, collab.ErrVersionConflict)
	}
	return stored + 1, nil
}
