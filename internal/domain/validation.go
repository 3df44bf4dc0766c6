package domain

import (
	"fmt"
	"strings"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// Validation constraints for records coming off the wire.
const (
	MaxIDLen    = 64
	MaxEmailLen = 320
)

// ValidateContact reports problems that make a record unusable for counting.
// An empty email or name is allowed; the presentation layer substitutes a fallback.
func ValidateContact(c ContactRecord) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(c.ID) == "" {
		errs = append(errs, FieldError{"id", "required"})
	} else if len(c.ID) > MaxIDLen {
		errs = append(errs, FieldError{"id", fmt.Sprintf("max length %d", MaxIDLen)})
	}

	if c.CreatedAt.IsZero() {
		errs = append(errs, FieldError{"created_at", "required"})
	}

	if len(c.Email) > MaxEmailLen {
		errs = append(errs, FieldError{"email", fmt.Sprintf("max length %d", MaxEmailLen)})
	}

	return errs
}

// JoinFieldErrors flattens errors into one line for logging.
func JoinFieldErrors(errs []FieldError) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}
