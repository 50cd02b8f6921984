package session

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound              = errors.New("session not found")
	ErrAttachmentNotFound    = errors.New("attachment not found")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrAttachmentsUnverified = errors.New("all attachments must be verified first")
	ErrMissingConversion     = errors.New("a conversion is required to validate this session")
	ErrInvalidConversion     = errors.New("invalid conversion")
	ErrEditWindowExpired     = errors.New("edit window has expired")
	ErrAttachmentArchived    = errors.New("attachment is archived")
	ErrConflict              = errors.New("session was modified concurrently, reload and retry")

	errCommentWithTransition = errors.New("a comment cannot be combined with a status change")
)

// StorageError reports a failure of the persistence layer. The request may be retried as is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error while %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether the cause of err is a *StorageError.
func IsStorageError(err error) bool {
	_, ok := errors.Cause(err).(*StorageError)
	return ok
}

// storageErr keeps the domain errors a repository may return and classifies everything else as a StorageError.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch errors.Cause(err) {
	case ErrNotFound, ErrAttachmentNotFound, ErrConflict:
		return errors.Cause(err)
	}
	return &StorageError{Op: op, Err: err}
}
