package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ezzyraouy/smartnote-api/internal/authpw"
	"github.com/ezzyraouy/smartnote-api/internal/notes"
	"github.com/ezzyraouy/smartnote-api/internal/search"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// toDomainError maps service errors onto the HTTP error envelope. Store
// failures fall through to 500; they always surface.
func toDomainError(err error) *DomainError {
	var domain *DomainError
	if errors.As(err, &domain) {
		return domain
	}
	var validation *authpw.ValidationError
	if errors.As(err, &validation) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Reason, nil)
	}
	switch {
	case errors.Is(err, notes.ErrNotFound):
		return domainError(http.StatusNotFound, "NOT_FOUND", "Note not found", nil)
	case errors.Is(err, search.ErrUnavailable):
		return domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is temporarily unavailable", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "EMAIL_TAKEN", "Email already registered", nil)
	default:
		return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Internal server error", nil)
	}
}
