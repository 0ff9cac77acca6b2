package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means an account reference (number, email or alias)
	// resolved to nothing.
	ErrNotFound = errors.New("account not found")

	// ErrMissingBackup means a switch target lacks its credential or
	// config backup. Raised before any live state is touched.
	ErrMissingBackup = errors.New("backup missing")

	// ErrInvalidBackup means a config backup exists but could not sign
	// anyone in.
	ErrInvalidBackup = errors.New("backup invalid")

	// ErrNoLiveIdentity means the application has no signed-in identity
	// to capture.
	ErrNoLiveIdentity = errors.New("no signed-in identity")

	// ErrNothingToUndo means the switch history is empty.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrUndoTargetMissing means the account the last switch came from is
	// gone (or was never managed), so there is nothing to switch back to.
	ErrUndoTargetMissing = errors.New("undo target no longer exists")

	// ErrAppRunning means a live session is open and waiting was
	// disabled.
	ErrAppRunning = errors.New("application is running")

	// ErrAliasTaken means another account already carries the alias.
	ErrAliasTaken = errors.New("alias already in use")
)

// UnmanagedIdentityError reports that the signed-in identity was not a
// managed account yet. Its credentials have been captured under Number;
// the aborted operation is safe to repeat.
type UnmanagedIdentityError struct {
	Number int
	Email  string
}

func (e *UnmanagedIdentityError) Error() string {
	return fmt.Sprintf("current identity %s was not managed; captured as account %d, rerun the switch", e.Email, e.Number)
}
