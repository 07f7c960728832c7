package upload

import "errors"

var (
	// ErrNotFound is returned for ids without metadata, and by Assemble for
	// uploads without parts.
	ErrNotFound = errors.New("upload not found")
	// ErrSizeExceeded is the protocol violation of writing past the declared length.
	ErrSizeExceeded = errors.New("upload exceeds its declared length")
	// ErrLengthDeclared rejects a second length declaration.
	ErrLengthDeclared = errors.New("upload length already declared")
	ErrInvalidLength  = errors.New("invalid upload length")

	ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")
)
