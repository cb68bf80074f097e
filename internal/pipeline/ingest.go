package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/metainsyt/emaildb/internal/csvio"
	"github.com/metainsyt/emaildb/internal/logging"
	"github.com/metainsyt/emaildb/internal/metrics"
	"github.com/metainsyt/emaildb/internal/store"
)

// IngestSummary is the result of one ingestion run.
// TotalRows counts every decoded data row, including rows skipped for a
// missing or malformed email.
type IngestSummary struct {
	TotalRows  int `json:"totalRows"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
}

// Ingest decodes CSV rows from r one at a time and writes each valid,
// non-duplicate email into the valid home.
//
// Rows are processed strictly in sequence: the next row is not decoded
// until the current row's write has settled. Unconstrained concurrent
// writes against the uniqueness-enforcing store would make the
// created/duplicate counters nondeterministic, so this serialization is
// a contract, not an optimization.
//
// Per-row outcomes:
//   - missing email or no '@': skipped, counted only in TotalRows
//   - insert succeeded: Created
//   - store.ErrDuplicate: Duplicates (expected, never a failure)
//   - any other store error: logged, neither counter moves
//
// A decode error from the underlying stream fails the whole run.
func (s *Service) Ingest(ctx context.Context, r io.Reader) (IngestSummary, error) {
	logger := logging.FromContext(ctx)
	dec := csvio.NewDecoder(r)

	var sum IngestSummary
	for {
		row, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("decode CSV: %w", err)
		}

		sum.TotalRows++

		email := row.Field(0)
		domain, ok := emailDomain(email)
		if !ok {
			metrics.IngestRows.WithLabelValues(metrics.OutcomeSkipped).Inc()
			continue
		}

		rec := store.NewValid(email, row.Field(1), domain)

		// One write in flight at a time; the loop blocks here until the
		// write settles before the decoder may advance.
		err = s.store.CreateValid(ctx, rec)
		switch {
		case err == nil:
			sum.Created++
			metrics.IngestRows.WithLabelValues(metrics.OutcomeCreated).Inc()
		case errors.Is(err, store.ErrDuplicate):
			sum.Duplicates++
			metrics.IngestRows.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		default:
			logger.Error("email insert failed", "email", email, "error", err)
			metrics.IngestRows.WithLabelValues(metrics.OutcomeError).Inc()
		}
	}

	return sum, nil
}

// IngestFile runs Ingest over a spooled upload artifact, holding an
// upload slot for the duration. On success the artifact is finalized
// under its original filename next to the spool file; on failure it is
// removed. Either way nothing is left behind under the temporary name.
func (s *Service) IngestFile(ctx context.Context, path, originalName string) (IngestSummary, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		os.Remove(path)
		return IngestSummary{}, err
	}
	defer s.limiter.Release()

	logger := logging.FromContext(ctx)

	f, err := os.Open(path)
	if err != nil {
		os.Remove(path)
		return IngestSummary{}, fmt.Errorf("open upload artifact: %w", err)
	}

	sum, err := s.Ingest(ctx, f)
	f.Close()
	if err != nil {
		os.Remove(path)
		return sum, err
	}

	// Finalize under the original filename. Basename only, so a crafted
	// filename cannot escape the spool directory.
	safe := filepath.Base(originalName)
	if safe == "." || safe == string(filepath.Separator) || strings.Contains(originalName, "..") {
		safe = filepath.Base(path)
	}
	dest := filepath.Join(filepath.Dir(path), safe)
	if dest != path {
		if err := os.Rename(path, dest); err != nil {
			// Finalization is best-effort; the summary already stands.
			logger.Warn("rename upload artifact failed", "path", path, "error", err)
			os.Remove(path)
		}
	}

	return sum, nil
}

// emailDomain extracts the lower-cased domain from an email address:
// the segment between the first and second '@'. Returns ok = false when
// the address is empty or has no '@' at all.
func emailDomain(email string) (string, bool) {
	if email == "" || !strings.Contains(email, "@") {
		return "", false
	}
	parts := strings.Split(email, "@")
	return strings.ToLower(parts[1]), true
}
