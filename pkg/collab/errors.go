package collab

import "errors"

// Error taxonomy for the guarded-mutation pipeline. Contention and
// collision errors are recoverable by retrying; version conflicts and
// not-found are surfaced to the client, which must refresh its state
// before re-issuing the request.
var (
	// ErrLockHeld means another session holds the entity lock. The caller
	// should report "locked, retry" to the user, never block waiting.
	ErrLockHeld = errors.New("entity locked by another session")

	// ErrVersionConflict means the client's expected version no longer
	// matches the stored version: someone else committed first.
	ErrVersionConflict = errors.New("entity version conflict")

	// ErrPositionCollision means two writers allocated the same ordering
	// position and the bounded retry budget was exhausted.
	ErrPositionCollision = errors.New("position collision")

	// ErrNotFound means a referenced entity or parent does not exist.
	ErrNotFound = errors.New("entity not found")
)

// IsLockHeld reports whether err is a lock contention error.
func IsLockHeld(err error) bool { return errors.Is(err, ErrLockHeld) }

// IsVersionConflict reports whether err is an optimistic-concurrency
// conflict.
func IsVersionConflict(err error) bool { return errors.Is(err, ErrVersionConflict) }

// IsPositionCollision reports whether err is an exhausted position retry.
func IsPositionCollision(err error) bool { return errors.Is(err, ErrPositionCollision) }

// IsNotFound reports whether err means a missing entity or parent.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
