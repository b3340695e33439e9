package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")
	ErrUnavailable  = errors.New("unavailable")
)

// Failure kinds of the retrieval pipeline. They are wrapped together with the
// underlying cause, e.g. fmt.Errorf("%w: %w", ErrSearchFailure, err).
var (
	ErrEmbeddingFailure   = errors.New("embedding failure")
	ErrIndexingFailure    = errors.New("indexing failure")
	ErrSearchFailure      = errors.New("search failure")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrLinkingFailure     = errors.New("linking failure")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
