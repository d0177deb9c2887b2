package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrDuplicateResource = errors.New("duplicate resource")
	ErrCryptoOperation   = errors.New("crypto operation failed")
	ErrAlreadySigned     = errors.New("certificate already signed")
	ErrChainIntegrity    = errors.New("audit chain integrity violation")
	ErrConflict          = errors.New("concurrent modification")

	// ErrDecryption is a crypto operation failure: errors.Is matches both.
	ErrDecryption = fmt.Errorf("decryption failed: %w", ErrCryptoOperation)
)
