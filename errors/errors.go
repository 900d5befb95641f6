package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is the type every service operation returns to the HTTP and
// websocket layers. Status decides user visibility.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func New(message string, status int) *Error {
	return &Error{
		Message: message,
		Status:  status,
	}
}

var (
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)
	ErrBadRequest          = New("invalid input", http.StatusBadRequest)
	ErrUnauthorized        = New("unauthorized", http.StatusUnauthorized)
	ErrForbidden           = New("forbidden", http.StatusForbidden)
	ErrNotFound            = New("not found", http.StatusNotFound)
	ErrConflict            = New("conflict", http.StatusConflict)
)

// InvalidInput reports a malformed or missing field. Surfaced verbatim.
func InvalidInput(message string) *Error {
	return New(message, http.StatusBadRequest)
}

// Forbidden reports a caller acting outside its participant set.
func Forbidden(message string) *Error {
	return New(message, http.StatusForbidden)
}

func NotFound(message string) *Error {
	return New(message, http.StatusNotFound)
}

// FromError keeps an *Error intact and downgrades everything else to a 500.
func FromError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternalServerError
}

// IsUniqueConstraint matches the postgres duplicate-key error the way the
// driver reports it through gorm.
func IsUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// IsSerializationFailure matches postgres serialization (40001) and
// deadlock (40P01) aborts, both safe to retry.
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 40001") || strings.Contains(msg, "SQLSTATE 40P01")
}
