package galaxy

import "errors"

var (
	// ErrNotFound is returned when an exact-key lookup misses.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous is returned when a name resolves to more than one system.
	ErrAmbiguous = errors.New("ambiguous")
	// ErrStorage wraps failures of the backing store: I/O, constraints, decoding.
	ErrStorage = errors.New("storage fault")
)
