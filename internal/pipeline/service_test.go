package pipeline

import (
	"context"
	"testing"

	"github.com/metainsyt/emaildb/internal/store"
)

func TestCounts(t *testing.T) {
	st := newFakeStore()
	st.valid["a@x.com"] = store.NewValid("a@x.com", "Alice", "x.com")
	st.valid["b@y.com"] = store.NewValid("b@y.com", "Bob", "y.com")
	st.invalid["c@z.com"] = store.NewInvalid("c@z.com", "Cara", "z.com")
	svc := newTestService(t, st)

	counts, err := svc.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts.Valid != 2 || counts.Invalid != 1 {
		t.Errorf("counts = %+v, want {Valid:2 Invalid:1}", counts)
	}
}
