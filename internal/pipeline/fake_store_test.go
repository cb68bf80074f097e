package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/metainsyt/emaildb/internal/store"
)

// fakeStore is an in-memory EmailStore with the same uniqueness and
// filtering behavior as the SQL implementation.
type fakeStore struct {
	mu      sync.Mutex
	valid   map[string]store.Record
	invalid map[string]store.Record

	createErr error // forced error for the next CreateValid calls
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		valid:   make(map[string]store.Record),
		invalid: make(map[string]store.Record),
	}
}

func (f *fakeStore) CreateValid(ctx context.Context, rec store.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.valid[rec.Email]; exists {
		return store.ErrDuplicate
	}
	f.valid[rec.Email] = rec
	return nil
}

func (f *fakeStore) ValidByEmails(ctx context.Context, emails []string) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []store.Record
	for _, email := range emails {
		if rec, ok := f.valid[email]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) ListValid(ctx context.Context, filter store.ValidFilter) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	domains := make(map[string]bool, len(filter.Domains))
	for _, d := range filter.Domains {
		domains[strings.ToLower(d)] = true
	}

	var out []store.Record
	for _, rec := range f.valid {
		if !rec.Status {
			continue
		}
		if len(domains) > 0 && !domains[rec.Domain] {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (f *fakeStore) MoveToInvalid(ctx context.Context, invalid []store.Record, candidates []string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var inserted int64
	for _, rec := range invalid {
		if _, exists := f.invalid[rec.Email]; exists {
			continue
		}
		f.invalid[rec.Email] = rec
		inserted++
	}

	var deleted int64
	for _, email := range candidates {
		if _, exists := f.valid[email]; exists {
			delete(f.valid, email)
			deleted++
		}
	}
	return inserted, deleted, nil
}

func (f *fakeStore) CountValid(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.valid)), nil
}

func (f *fakeStore) CountInvalid(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.invalid)), nil
}
