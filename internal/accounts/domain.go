// Package accounts registers back-office users and handles password resets.
package accounts

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

// Account is a back-office user.
type Account struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// ResetRequest asks for a reset link.
type ResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetInput consumes a reset token.
type ResetInput struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

var (
	// ErrNotFound indicates the account is missing.
	ErrNotFound = fmt.Errorf("accounts: %w", httpx.ErrNotFound)
	// ErrDuplicateEmail is returned when the email is registered already.
	ErrDuplicateEmail = fmt.Errorf("accounts: email already registered: %w", httpx.ErrDuplicate)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("accounts: %w", httpx.ErrValidation)
	// ErrInvalidToken is returned for unknown, used or expired reset tokens.
	ErrInvalidToken = fmt.Errorf("accounts: invalid or expired reset token: %w", httpx.ErrValidation)
	// ErrEmail wraps welcome and reset delivery failures.
	ErrEmail = errors.New("accounts: email could not be sent")
)
