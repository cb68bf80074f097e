// Package pipeline contains the three data-movement pipelines of the
// service: CSV ingestion into the valid home, reconciliation of
// candidate lists into the invalid home, and CSV export of the valid
// home. The HTTP layer hands each pipeline a byte stream and relays the
// resulting summary or response stream; the pipelines never call each
// other.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/metainsyt/emaildb/internal/config"
	"github.com/metainsyt/emaildb/internal/store"
)

// Errors surfaced to the HTTP layer.
var (
	// ErrNoRecords is returned by file-delivery exports when the query
	// matched nothing. The caller signals "not found" instead of sending
	// an empty CSV body.
	ErrNoRecords = errors.New("no email records found")

	// ErrEmptyDomainList is returned when an uploaded domain list decodes
	// to zero domains.
	ErrEmptyDomainList = errors.New("domain list is empty")
)

// EmailStore is what the pipelines need from the record store.
// *store.Postgres satisfies it; tests substitute an in-memory fake.
type EmailStore interface {
	// CreateValid inserts one record into the valid home, returning
	// store.ErrDuplicate when the email already exists there.
	CreateValid(ctx context.Context, rec store.Record) error

	// ValidByEmails returns the valid-home records whose email is a
	// member of the given list.
	ValidByEmails(ctx context.Context, emails []string) ([]store.Record, error)

	// ListValid returns valid-home records with status = true, optionally
	// filtered by domain membership.
	ListValid(ctx context.Context, filter store.ValidFilter) ([]store.Record, error)

	// MoveToInvalid best-effort bulk-inserts the prepared invalid records
	// and deletes the candidates from the valid home, reporting how many
	// rows each step actually touched.
	MoveToInvalid(ctx context.Context, invalid []store.Record, candidates []string) (inserted, deleted int64, err error)

	// CountValid and CountInvalid report the size of each home.
	CountValid(ctx context.Context) (int64, error)
	CountInvalid(ctx context.Context) (int64, error)
}

// Service runs the pipelines against an injected record store.
type Service struct {
	store   EmailStore
	limiter *Limiter
	dir     string // spool directory for upload and export artifacts
}

// NewService creates the pipeline service. The spool directory is
// created if missing.
func NewService(st EmailStore, cfg config.UploadConfig) (*Service, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory %s: %w", cfg.Dir, err)
	}

	return &Service{
		store:   st,
		limiter: NewLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		dir:     cfg.Dir,
	}, nil
}

// Dir returns the spool directory for upload artifacts.
func (s *Service) Dir() string {
	return s.dir
}

// HomeCounts reports the number of records in each home.
type HomeCounts struct {
	Valid   int64 `json:"valid"`
	Invalid int64 `json:"invalid"`
}

// Counts returns the current size of both homes.
func (s *Service) Counts(ctx context.Context) (HomeCounts, error) {
	valid, err := s.store.CountValid(ctx)
	if err != nil {
		return HomeCounts{}, err
	}
	invalid, err := s.store.CountInvalid(ctx)
	if err != nil {
		return HomeCounts{}, err
	}
	return HomeCounts{Valid: valid, Invalid: invalid}, nil
}
