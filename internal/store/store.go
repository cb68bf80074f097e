// Package store is the data access layer for the valid and invalid email
// homes. All queries are plain SQL through pgx; no ORM.
package store

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors surfaced by the store.
var (
	// ErrDuplicate is returned when an insert violates the per-home email
	// uniqueness constraint. Callers treat this as an expected outcome,
	// never a failure.
	ErrDuplicate = errors.New("email already exists")
)

// Record is one email record in either home. The two homes share a shape
// and differ only in their default Status and SmtpCode values.
type Record struct {
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Domain      string    `json:"domain"`
	Status      bool      `json:"status"`
	SmtpCode    int       `json:"smtpCode"`
	ValidatedAt time.Time `json:"validatedAt"`
}

// NewValid builds a valid-home record with its default field values.
func NewValid(email, name, domain string) Record {
	return Record{
		Email:       email,
		Name:        name,
		Domain:      domain,
		Status:      true,
		SmtpCode:    250,
		ValidatedAt: time.Now().UTC(),
	}
}

// NewInvalid builds an invalid-home record with its default field values.
func NewInvalid(email, name, domain string) Record {
	return Record{
		Email:       email,
		Name:        name,
		Domain:      domain,
		Status:      false,
		SmtpCode:    550,
		ValidatedAt: time.Now().UTC(),
	}
}

// ValidFilter narrows ListValid results. A nil/empty Domains slice means
// no domain restriction; records are always restricted to status = true.
type ValidFilter struct {
	Domains []string
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
