package debugdir

import "errors"

// ErrNotFound is returned when a requested debug file does not exist.
var ErrNotFound = errors.New("debug file not found")

// ErrSinkClosed is returned for operations submitted after the sink has been
// closed.
var ErrSinkClosed = errors.New("debug file sink is closed")
