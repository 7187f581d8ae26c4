package merrors

import (
	"errors"
)

var (
	ErrNoEntry        = errors.New("imagestore: no entry")
	ErrCorruptStore   = errors.New("imagestore: corrupt")
	ErrSnapshotExists = errors.New("imagestore: snapshot already exists")
)

var (
	ErrInvalid  = errors.New("invalid argument")
	ErrExist    = errors.New("already exists")
	ErrNotFound = errors.New("not found")
	ErrShutdown = errors.New("shut down")
	ErrClosed   = errors.New("closed")
)

// IsNotFound checks if err means that the target object was absent. Callers
// treating absence as benign (peer unlink, snapshot prune) match on this
// rather than the bare sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoEntry)
}
