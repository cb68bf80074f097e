package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the PostgreSQL-backed record store over the valid_emails
// and invalid_emails tables. The pool is owned by main and injected.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a record store backed by the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// CreateValid inserts one record into the valid home.
// Returns ErrDuplicate when the email already exists there.
func (s *Postgres) CreateValid(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO valid_emails (email, name, domain, status, smtp_code, validated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		rec.Email, rec.Name, rec.Domain, rec.Status, rec.SmtpCode, rec.ValidatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, rec.Email)
		}
		return fmt.Errorf("insert valid email: %w", err)
	}
	return nil
}

// ValidByEmails returns every valid-home record whose email is a member
// of the given list.
func (s *Postgres) ValidByEmails(ctx context.Context, emails []string) ([]Record, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	query := `
		SELECT email, name, domain, status, smtp_code, validated_at
		FROM valid_emails
		WHERE email = ANY($1)`

	rows, err := s.pool.Query(ctx, query, emails)
	if err != nil {
		return nil, fmt.Errorf("query valid emails by membership: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListValid returns valid-home records with status = true, optionally
// restricted to a set of domains, ordered by email for deterministic
// export output.
func (s *Postgres) ListValid(ctx context.Context, filter ValidFilter) ([]Record, error) {
	var (
		query string
		args  []any
	)

	if len(filter.Domains) > 0 {
		query = `
			SELECT email, name, domain, status, smtp_code, validated_at
			FROM valid_emails
			WHERE status = true AND domain = ANY($1)
			ORDER BY email`
		args = append(args, filter.Domains)
	} else {
		query = `
			SELECT email, name, domain, status, smtp_code, validated_at
			FROM valid_emails
			WHERE status = true
			ORDER BY email`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list valid emails: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// MoveToInvalid migrates candidates from the valid home to the invalid
// home: a best-effort bulk insert of the prepared invalid records
// followed by a delete-by-membership from the valid home. Individual
// insert conflicts are swallowed (ON CONFLICT DO NOTHING), matching the
// unordered bulk-insert semantics the reconciliation contract requires.
//
// Both steps run in one transaction so a failure between them cannot
// leave a record present in both homes.
//
// Returns the number of rows actually inserted and actually deleted.
func (s *Postgres) MoveToInvalid(ctx context.Context, invalid []Record, candidates []string) (inserted int64, deleted int64, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin move transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	insertSQL := `
		INSERT INTO invalid_emails (email, name, domain, status, smtp_code, validated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING`

	batch := &pgx.Batch{}
	for _, rec := range invalid {
		batch.Queue(insertSQL,
			rec.Email, rec.Name, rec.Domain, rec.Status, rec.SmtpCode, rec.ValidatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range invalid {
		tag, execErr := br.Exec()
		if execErr != nil {
			br.Close()
			return 0, 0, fmt.Errorf("bulk insert invalid emails: %w", execErr)
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, 0, fmt.Errorf("close insert batch: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM valid_emails WHERE email = ANY($1)`, candidates)
	if err != nil {
		return 0, 0, fmt.Errorf("delete migrated valid emails: %w", err)
	}
	deleted = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit move transaction: %w", err)
	}

	return inserted, deleted, nil
}

// CountValid returns the number of records in the valid home.
func (s *Postgres) CountValid(ctx context.Context) (int64, error) {
	return s.countTable(ctx, "valid_emails")
}

// CountInvalid returns the number of records in the invalid home.
func (s *Postgres) CountInvalid(ctx context.Context) (int64, error) {
	return s.countTable(ctx, "invalid_emails")
}

func (s *Postgres) countTable(ctx context.Context, table string) (int64, error) {
	var count int64
	// table is one of two compile-time constants, never user input
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// scanRecords drains rows into a Record slice.
func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.Email, &rec.Name, &rec.Domain,
			&rec.Status, &rec.SmtpCode, &rec.ValidatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan email record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}
