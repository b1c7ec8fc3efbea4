// Package common holds the error taxonomy shared by the gateway, the blob
// store, the Telegram adapter and the broadcast engine.
package common

import "errors"

var (
	// request validation errors
	ErrValidation       = errors.New("validation error")
	ErrMissingFile      = errors.New("missing file parameter")
	ErrInvalidMode      = errors.New("invalid mode")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrTooLarge         = errors.New("payload too large")

	// token errors
	ErrInvalidToken = errors.New("invalid token")

	// upstream errors
	ErrNotFound         = errors.New("not found")
	ErrUnsupportedKind  = errors.New("unsupported media kind")
	ErrTransient        = errors.New("transient upstream failure")
	ErrUpstreamWrite    = errors.New("upstream write failure")
	ErrPermissionDenied = errors.New("permission denied")

	// access errors
	ErrUnauthorized = errors.New("unauthorized")
)
