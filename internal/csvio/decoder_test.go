package csvio

import (
	"io"
	"strings"
	"testing"
)

func decodeAll(t *testing.T, input string) []Row {
	t.Helper()

	d := NewDecoder(strings.NewReader(input))
	var rows []Row
	for {
		row, err := d.Next()
		if err == io.EOF {
			return rows
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		rows = append(rows, row)
	}
}

func TestDecoder_HeaderAndRows(t *testing.T) {
	rows := decodeAll(t, "Email,Name\na@x.com,Alice\nb@y.com,Bob\n")

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if got := rows[0].Field(0); got != "a@x.com" {
		t.Errorf("Field(0) = %q, want %q", got, "a@x.com")
	}
	if got, ok := rows[1].Named("email"); !ok || got != "b@y.com" {
		t.Errorf(`Named("email") = %q, %v, want "b@y.com", true`, got, ok)
	}
	if got, ok := rows[0].Named("NAME"); !ok || got != "Alice" {
		t.Errorf(`Named("NAME") = %q, %v, want "Alice", true`, got, ok)
	}
}

func TestDecoder_RaggedRows(t *testing.T) {
	rows := decodeAll(t, "email,name\na@x.com\nb@y.com,Bob,extra\n")

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	// Short row: missing column reads as empty
	if got, ok := rows[0].Named("name"); ok && got != "" {
		t.Errorf(`Named("name") on short row = %q, want ""`, got)
	}
	if got := rows[0].Field(1); got != "" {
		t.Errorf("Field(1) on short row = %q, want empty", got)
	}
	if got := rows[1].Field(2); got != "extra" {
		t.Errorf("Field(2) = %q, want %q", got, "extra")
	}
}

func TestDecoder_FieldOutOfRange(t *testing.T) {
	rows := decodeAll(t, "email\na@x.com\n")

	if got := rows[0].Field(-1); got != "" {
		t.Errorf("Field(-1) = %q, want empty", got)
	}
	if got := rows[0].Field(99); got != "" {
		t.Errorf("Field(99) = %q, want empty", got)
	}
	if rows[0].Len() != 1 {
		t.Errorf("Len() = %d, want 1", rows[0].Len())
	}
}

func TestDecoder_BOMHeader(t *testing.T) {
	// A BOM prepended by a spreadsheet export must not corrupt the first
	// header name.
	rows := decodeAll(t, "\xEF\xBB\xBFemail,name\na@x.com,Alice\n")

	if got, ok := rows[0].Named("email"); !ok || got != "a@x.com" {
		t.Errorf(`Named("email") = %q, %v, want "a@x.com", true`, got, ok)
	}
}

func TestDecoder_QuotedHeader(t *testing.T) {
	rows := decodeAll(t, `"Email","Name"`+"\nquoted@x.com,Q\n")

	if got, ok := rows[0].Named("email"); !ok || got != "quoted@x.com" {
		t.Errorf(`Named("email") = %q, %v, want "quoted@x.com", true`, got, ok)
	}
}

func TestDecoder_DuplicateHeaderFirstWins(t *testing.T) {
	rows := decodeAll(t, "email,email\nfirst@x.com,second@x.com\n")

	if got, _ := rows[0].Named("email"); got != "first@x.com" {
		t.Errorf(`Named("email") = %q, want %q`, got, "first@x.com")
	}
}

func TestDecoder_EmptyStream(t *testing.T) {
	d := NewDecoder(strings.NewReader(""))
	if _, err := d.Next(); err != io.EOF {
		t.Errorf("Next() on empty stream error = %v, want io.EOF", err)
	}
}

func TestDecoder_HeaderOnly(t *testing.T) {
	d := NewDecoder(strings.NewReader("email,name\n"))
	if _, err := d.Next(); err != io.EOF {
		t.Errorf("Next() after header error = %v, want io.EOF", err)
	}
}

func TestCleanHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Email", "email"},
		{"  Name  ", "name"},
		{`"Domain"`, "domain"},
		{"'Status'", "status"},
		{"\uFEFFemail", "email"},
		{"em\x00ail", "email"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CleanHeader(tt.in); got != tt.want {
			t.Errorf("CleanHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
