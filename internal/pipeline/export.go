package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/metainsyt/emaildb/internal/csvio"
	"github.com/metainsyt/emaildb/internal/metrics"
	"github.com/metainsyt/emaildb/internal/store"
)

// exportHeader is the fixed header line of every export.
var exportHeader = []string{"Email", "Name", "Domain", "Status", "SmtpCode", "ValidatedAt"}

// ExportAll writes every status=true record from the valid home to w as
// CSV and returns the number of data rows written.
// Returns ErrNoRecords (writing nothing) when the home is empty.
func (s *Service) ExportAll(ctx context.Context, w io.Writer) (int, error) {
	n, err := s.export(ctx, store.ValidFilter{}, w, true)
	if err != nil {
		return 0, err
	}
	metrics.ExportRecords.WithLabelValues("all").Add(float64(n))
	return n, nil
}

// ExportDomain writes the status=true records of one domain to w.
// The domain is matched lower-cased, the same normalization applied at
// write time. Returns ErrNoRecords (writing nothing) when none match.
func (s *Service) ExportDomain(ctx context.Context, domain string, w io.Writer) (int, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return 0, ErrEmptyDomainList
	}

	n, err := s.export(ctx, store.ValidFilter{Domains: []string{domain}}, w, true)
	if err != nil {
		return 0, err
	}
	metrics.ExportRecords.WithLabelValues("domain").Add(float64(n))
	return n, nil
}

// ExportDomains decodes a CSV of domain names from r and streams the
// matching status=true records to w. Returns ErrEmptyDomainList
// (writing nothing) when the decoded list is empty; an empty result for
// a non-empty list still emits the header line.
func (s *Service) ExportDomains(ctx context.Context, r io.Reader, w io.Writer) (int, error) {
	dec := csvio.NewDecoder(r)

	var domains []string
	for {
		row, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("decode domain list: %w", err)
		}

		domain, ok := row.Named("domain")
		if !ok || domain == "" {
			domain = row.Field(0)
		}
		if domain == "" {
			continue
		}
		domains = append(domains, strings.ToLower(domain))
	}

	if len(domains) == 0 {
		return 0, ErrEmptyDomainList
	}

	n, err := s.export(ctx, store.ValidFilter{Domains: domains}, w, false)
	if err != nil {
		return 0, err
	}
	metrics.ExportRecords.WithLabelValues("domain_list").Add(float64(n))
	return n, nil
}

// ExportAllToFile materializes a full export into a uniquely named file
// in the spool directory and returns its path. The caller owns deletion
// of the file after serving it. ErrNoRecords leaves no file behind.
func (s *Service) ExportAllToFile(ctx context.Context) (string, int, error) {
	return s.exportToFile(ctx, "all_emails", func(w io.Writer) (int, error) {
		return s.ExportAll(ctx, w)
	})
}

// ExportDomainToFile materializes a single-domain export into a file in
// the spool directory. Same ownership contract as ExportAllToFile.
// The domain only contributes to the filename after separator
// sanitization, so a crafted value cannot place the file outside the
// spool directory.
func (s *Service) ExportDomainToFile(ctx context.Context, domain string) (string, int, error) {
	safe := filepath.Base(strings.ToLower(strings.TrimSpace(domain)))
	if safe == "." || safe == string(filepath.Separator) || strings.Contains(domain, "..") {
		safe = "domain"
	}

	return s.exportToFile(ctx, "domain_"+safe, func(w io.Writer) (int, error) {
		return s.ExportDomain(ctx, domain, w)
	})
}

// export runs the query and serializes the result. Both delivery modes
// funnel through this one serializer, so file and stream output are
// byte-identical for the same query result. With requireRows set, an
// empty result returns ErrNoRecords before a single byte is written;
// otherwise it still produces the header line.
func (s *Service) export(ctx context.Context, filter store.ValidFilter, w io.Writer, requireRows bool) (int, error) {
	records, err := s.store.ListValid(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("query valid home: %w", err)
	}
	if requireRows && len(records) == 0 {
		return 0, ErrNoRecords
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("write export header: %w", err)
	}
	for _, rec := range records {
		line := []string{
			rec.Email,
			rec.Name,
			rec.Domain,
			strconv.FormatBool(rec.Status),
			strconv.Itoa(rec.SmtpCode),
			rec.ValidatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(line); err != nil {
			return 0, fmt.Errorf("write export row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush export: %w", err)
	}

	return len(records), nil
}

// exportToFile writes an export into a fresh spool file, removing the
// file again on every failure path, ErrNoRecords included, so empty
// results never strand artifacts on disk.
func (s *Service) exportToFile(ctx context.Context, prefix string, write func(io.Writer) (int, error)) (string, int, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", prefix, uuid.New().String()))

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create export file: %w", err)
	}

	n, err := write(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close export file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}

	return path, n, nil
}
