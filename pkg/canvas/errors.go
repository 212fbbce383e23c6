package canvas

import "errors"

// Sentinel errors for cross-boundary operations.
var (
	// ErrNoActiveClient is returned when an operation needs a live
	// browser connection and the target session has none.
	ErrNoActiveClient = errors.New("canvas: no active client for session")

	// ErrExportTimeout is returned when a client does not answer an
	// export request within the configured timeout.
	ErrExportTimeout = errors.New("canvas: export timed out")

	// ErrExportFailed is returned when the client reports an export
	// error.
	ErrExportFailed = errors.New("canvas: export failed")

	// ErrConvertTimeout is returned when a diagram conversion is not
	// answered within the configured timeout.
	ErrConvertTimeout = errors.New("canvas: diagram conversion timed out")

	// ErrServerClosed is returned by operations on a shut-down server.
	ErrServerClosed = errors.New("canvas: server closed")

	// ErrNoFreePort is returned when every port in the retry window is
	// taken.
	ErrNoFreePort = errors.New("canvas: no free port in retry window")
)
