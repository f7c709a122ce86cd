package errors

import (
	"fmt"
)

type ErrorCode string

const (
	AccountNotFound    ErrorCode = "account_not_found"
	UserNotFound       ErrorCode = "user_not_found"
	UsernameTaken      ErrorCode = "username_taken"
	AccountNumberTaken ErrorCode = "account_number_taken"
	InvalidCredentials ErrorCode = "invalid_credentials"
	InsufficientFunds  ErrorCode = "insufficient_funds"
	InvalidAmount      ErrorCode = "invalid_amount"
	InternalError      ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// Predefined errors for common cases
var (
	ErrAccountNotFound        = NewAppError(AccountNotFound, "account not found")
	ErrUserNotFound           = NewAppError(UserNotFound, "user not found")
	ErrUsernameTaken          = NewAppError(UsernameTaken, "username already taken")
	ErrAccountNumberTaken     = NewAppError(AccountNumberTaken, "account number already in use")
	ErrInvalidCredentials     = NewAppError(InvalidCredentials, "invalid password")
	ErrInsufficientFunds      = NewAppError(InsufficientFunds, "insufficient funds")
	ErrInvalidAmount          = NewAppError(InvalidAmount, "amount must be positive")
	ErrCannotBeginTransaction = NewAppError(InternalError, "cannot begin transaction from within a transaction")
)
