package sharing

import "errors"

var (
	// ErrNotFound indicates the requested artifact does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrDuplicateArtifact indicates an artifact for the same
	// (source turn, space) pair already exists.
	ErrDuplicateArtifact = errors.New("artifact already exists for turn and space")

	// ErrAlreadyResolved indicates the approval left the pending state
	// earlier with a different outcome.
	ErrAlreadyResolved = errors.New("approval already resolved")
)
