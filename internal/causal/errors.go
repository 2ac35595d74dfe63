package causal

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUniverse is returned when a universe id is not part of the store.
	ErrUnknownUniverse = errors.New("unknown universe")
	// ErrInvalidBranchName is returned for an empty branch name.
	ErrInvalidBranchName = errors.New("invalid branch name")
	// ErrSelfMerge is returned when merging a universe into itself.
	ErrSelfMerge = errors.New("cannot merge a universe into itself")
	// ErrStoreKeyMismatch is returned when an imported history belongs to another store.
	ErrStoreKeyMismatch = errors.New("store key mismatch")
	// ErrCorruptHistory is returned when an imported history is not a valid causal log.
	ErrCorruptHistory = errors.New("corrupt history")
)

// TypeError is returned by Handle.Write when the value does not have the
// store's value type.
type TypeError struct {
	StoreKey string
	Want     string
	Got      string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("store %s holds %s, got %s", e.StoreKey, e.Want, e.Got)
}

// IsTypeError reports whether err is or wraps a *TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptHistory, fmt.Sprintf(format, args...))
}
