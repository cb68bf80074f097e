package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Row is one decoded CSV record. Values are reachable positionally and,
// when the file carried a usable header, by cleaned column name.
// Positional access works regardless of header correctness, which is
// what makes files with mangled header rows ingestible.
type Row struct {
	fields []string
	index  map[string]int
}

// Field returns the trimmed value at position i, or "" when the row is
// shorter than that.
func (r Row) Field(i int) string {
	if i < 0 || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// Named returns the trimmed value under the cleaned header name.
func (r Row) Named(name string) (string, bool) {
	i, ok := r.index[CleanHeader(name)]
	if !ok || i >= len(r.fields) {
		return "", false
	}
	return strings.TrimSpace(r.fields[i]), true
}

// Len returns the number of fields in the row.
func (r Row) Len() int {
	return len(r.fields)
}

// Decoder produces a lazy, finite sequence of rows from a CSV byte
// stream. The first record is consumed as the header. The sequence ends
// with io.EOF at stream exhaustion; any underlying stream error
// terminates it early with that error.
type Decoder struct {
	r       *csv.Reader
	index   map[string]int
	started bool
}

// NewDecoder wraps r with the sanitizing reader stack and prepares a
// row decoder. Ragged rows are tolerated (FieldsPerRecord is disabled)
// since uploads routinely mix one- and two-column lines.
func NewDecoder(r io.Reader) *Decoder {
	cr := csv.NewReader(Sanitize(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	return &Decoder{r: cr}
}

// Next returns the next data row. The header record is read on the
// first call. Returns io.EOF when the stream is exhausted.
func (d *Decoder) Next() (Row, error) {
	if !d.started {
		d.started = true
		header, err := d.r.Read()
		if err == io.EOF {
			return Row{}, io.EOF
		}
		if err != nil {
			return Row{}, fmt.Errorf("read header row: %w", err)
		}

		d.index = make(map[string]int, len(header))
		for i, h := range header {
			key := CleanHeader(h)
			if _, exists := d.index[key]; !exists {
				d.index[key] = i
			}
		}
	}

	fields, err := d.r.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	if err != nil {
		return Row{}, fmt.Errorf("read row: %w", err)
	}

	return Row{fields: fields, index: d.index}, nil
}

// CleanHeader normalizes a header cell for name lookups: lowercased,
// trimmed, surrounding quotes removed, and non-printable characters
// (stray BOM remnants, control bytes) stripped.
func CleanHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.Trim(h, `"'`)

	var b strings.Builder
	b.Grow(len(h))
	for _, r := range h {
		if unicode.IsPrint(r) && r != '\uFEFF' {
			b.WriteRune(r)
		}
	}

	return strings.ToLower(strings.TrimSpace(b.String()))
}
