package csvio

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return string(b)
}

func TestSanitize_StripsBOM(t *testing.T) {
	got := readAll(t, Sanitize(strings.NewReader("\xEF\xBB\xBFemail\n")))
	if got != "email\n" {
		t.Errorf("got %q, want %q", got, "email\n")
	}
}

func TestSanitize_NoBOMPassthrough(t *testing.T) {
	in := "email,name\na@x.com,Alice\n"
	if got := readAll(t, Sanitize(strings.NewReader(in))); got != in {
		t.Errorf("got %q, want %q", got, in)
	}
}

func TestSanitize_ShortInput(t *testing.T) {
	// Inputs shorter than the 3-byte BOM probe must survive intact.
	for _, in := range []string{"", "a", "ab"} {
		if got := readAll(t, Sanitize(strings.NewReader(in))); got != in {
			t.Errorf("got %q, want %q", got, in)
		}
	}
}

func TestSanitize_ReplacesInvalidUTF8(t *testing.T) {
	// Latin-1 é (0xE9) is not valid UTF-8
	got := readAll(t, Sanitize(strings.NewReader("caf\xE9,x\n")))
	if got != "caf?,x\n" {
		t.Errorf("got %q, want %q", got, "caf?,x\n")
	}
}

func TestSanitize_KeepsValidMultibyte(t *testing.T) {
	in := "héllo,wörld,日本\n"
	if got := readAll(t, Sanitize(strings.NewReader(in))); got != in {
		t.Errorf("got %q, want %q", got, in)
	}
}

func TestSanitize_RuneSplitAcrossReads(t *testing.T) {
	// One byte per Read splits every multi-byte rune across fill calls.
	in := "日本語テスト,héllo\n"
	got := readAll(t, Sanitize(iotest.OneByteReader(strings.NewReader(in))))
	if got != in {
		t.Errorf("got %q, want %q", got, in)
	}
}

func TestSanitize_InvalidBytesOneAtATime(t *testing.T) {
	got := readAll(t, Sanitize(iotest.OneByteReader(strings.NewReader("a\xFF\xFEb"))))
	if got != "a??b" {
		t.Errorf("got %q, want %q", got, "a??b")
	}
}
