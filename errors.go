package blesec

import "github.com/pkg/errors"

// Result codes returned synchronously by security manager and database
// operations. Protocol level failures are never returned this way; they
// arrive through the event handler.
var (
	// ErrInvalidParam reports a parameter outside its legal range or an
	// unknown connection handle.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrInvalidState reports an operation called outside its valid
	// protocol phase.
	ErrInvalidState = errors.New("invalid state")

	// ErrNoMem reports exhaustion of a fixed pool (control blocks or
	// database entries). The system keeps operating for other connections.
	ErrNoMem = errors.New("out of resources")

	// ErrNotFound reports a lookup miss.
	ErrNotFound = errors.New("not found")

	// ErrNotImplemented reports an optional feature the backing PAL does
	// not support.
	ErrNotImplemented = errors.New("not implemented")
)
