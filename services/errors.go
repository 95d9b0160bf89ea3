package services

import "errors"

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountExists       = errors.New("an account with this email already exists")
	ErrQuotaExceeded       = errors.New("storage quota exceeded")
	ErrNotFound            = errors.New("not found")
	ErrBlobWriteFailed     = errors.New("blob write failed")
	ErrBlobUnavailable     = errors.New("blob store unavailable")
	ErrMetadataWriteFailed = errors.New("metadata write failed")
	ErrLedgerUpdateFailed  = errors.New("storage counter update failed")
	ErrUnauthorized        = errors.New("operation requires admin privileges")
)
