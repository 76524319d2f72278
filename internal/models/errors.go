package models

import "errors"

var (
	// ErrNotFound indicates the record or its bytes do not exist.
	ErrNotFound = errors.New("not found")

	// ErrConnectivity indicates the record store could not be reached.
	ErrConnectivity = errors.New("record store unreachable")

	// ErrUnsupportedFormat indicates the extractor cannot handle the bytes.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("invalid input")
)
