package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/metainsyt/emaildb/internal/csvio"
	"github.com/metainsyt/emaildb/internal/logging"
	"github.com/metainsyt/emaildb/internal/metrics"
	"github.com/metainsyt/emaildb/internal/store"
)

// ReconcileSummary is the result of one reconciliation run.
//
// MovedToInvalid counts attempted migrations, not confirmed inserts:
// a candidate already present in the invalid home is counted here even
// though its insert was discarded by the uniqueness constraint.
// RemovedFromValid counts rows actually deleted from the valid home.
type ReconcileSummary struct {
	MovedToInvalid   int   `json:"movedToInvalid"`
	RemovedFromValid int64 `json:"removedFromValid"`
}

// UnknownName is carried on migrated records whose name the valid home
// did not know.
const UnknownName = "Unknown"

// Reconcile decodes a candidate list of email addresses from r and
// moves every candidate that exists in the valid home into the invalid
// home.
//
// The candidate list is decoded eagerly, one lower-cased address per
// row (an "email" column when the header names one, the first column
// otherwise). Duplicates within the list are not collapsed; the second
// migration attempt simply loses to the uniqueness constraint.
//
// One invalid-home record is constructed per candidate, not per matched
// record: candidates unknown to the valid home are still recorded as
// invalid, with name "Unknown" and whatever domain their address
// carries (empty when there is no '@').
func (s *Service) Reconcile(ctx context.Context, r io.Reader) (ReconcileSummary, error) {
	logger := logging.FromContext(ctx)
	dec := csvio.NewDecoder(r)

	var candidates []string
	for {
		row, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ReconcileSummary{}, fmt.Errorf("decode candidate list: %w", err)
		}

		email, ok := row.Named("email")
		if !ok || email == "" {
			email = row.Field(0)
		}
		if email == "" {
			continue
		}
		candidates = append(candidates, strings.ToLower(email))
	}

	if len(candidates) == 0 {
		return ReconcileSummary{}, nil
	}

	// Look up the names the valid home knows for these candidates.
	matched, err := s.store.ValidByEmails(ctx, candidates)
	if err != nil {
		return ReconcileSummary{}, fmt.Errorf("look up candidates in valid home: %w", err)
	}

	names := make(map[string]string, len(matched))
	for _, rec := range matched {
		names[strings.ToLower(rec.Email)] = rec.Name
	}

	invalid := make([]store.Record, 0, len(candidates))
	for _, email := range candidates {
		name := names[email]
		if name == "" {
			name = UnknownName
		}
		domain, _ := emailDomain(email)
		invalid = append(invalid, store.NewInvalid(email, name, domain))
	}

	inserted, deleted, err := s.store.MoveToInvalid(ctx, invalid, candidates)
	if err != nil {
		return ReconcileSummary{}, fmt.Errorf("move candidates to invalid home: %w", err)
	}

	logger.Info("reconciliation complete",
		"candidates", len(candidates),
		"matched", len(matched),
		"inserted", inserted,
		"deleted", deleted,
	)
	metrics.ReconcileMoved.Add(float64(len(candidates)))

	return ReconcileSummary{
		MovedToInvalid:   len(candidates),
		RemovedFromValid: deleted,
	}, nil
}
