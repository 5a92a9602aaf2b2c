package notes

import (
	"errors"
	"fmt"
)

// ErrNoteNotFound stands for three causes at once: the note does not exist,
// it belongs to another user, or it was already soft-deleted. The causes stay
// indistinguishable on purpose, so responses never leak who owns what.
var ErrNoteNotFound = errors.New("note not found")

// ErrNoteConflict is reserved for unique constraint violations. Notes have no
// unique columns besides the generated id, so nothing returns it yet.
var ErrNoteConflict = errors.New("note conflict")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
