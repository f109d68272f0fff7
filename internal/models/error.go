package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Rental/account state errors
	ErrNotAvailable    = errors.New("account is not available")
	ErrNoAccounts      = errors.New("no accounts available")
	ErrQuotaExceeded   = errors.New("daily request quota exceeded")
	ErrKeyRevoked      = errors.New("api key is revoked")
	ErrWebsiteNotFound = errors.New("website is not registered")
)
