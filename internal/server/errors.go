package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrMaxConnsReached      = errors.New("maximum connections reached")
	ErrMaxInstancesReached  = errors.New("maximum instances reached")
	ErrUnknownTransport     = errors.New("unknown transport")
	ErrInvalidConfig        = errors.New("invalid server configuration")
)
