// Package csvio decodes delimited byte streams into lazy row sequences.
//
// The reader stack handles the two classic problems with CSV files that
// come out of spreadsheets before encoding/csv ever sees the bytes:
//
//   - a UTF-8 BOM (0xEF 0xBB 0xBF) prepended by Windows programs, which
//     would otherwise corrupt the first header name
//   - invalid UTF-8 sequences from legacy encodings, replaced with '?'
//
// Both transforms are streaming: memory stays constant regardless of
// file size.
package csvio

import (
	"io"
	"unicode/utf8"
)

// Sanitize wraps r with BOM stripping and UTF-8 cleaning.
// The BOM must be stripped before the cleaner sees the stream.
func Sanitize(r io.Reader) io.Reader {
	return newUTF8Cleaner(newBOMStripper(r))
}

// bomStripper removes a leading UTF-8 BOM, if present, on the first read.
type bomStripper struct {
	r       io.Reader
	checked bool
	held    []byte // bytes read during BOM detection that were not a BOM
}

func newBOMStripper(r io.Reader) *bomStripper {
	return &bomStripper{r: r}
}

func (b *bomStripper) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true

		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
			// BOM found, drop it
		} else {
			b.held = append(b.held, buf[:n]...)
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	if len(b.held) > 0 {
		n := copy(p, b.held)
		b.held = b.held[n:]
		return n, nil
	}

	return b.r.Read(p)
}

// utf8Cleaner replaces invalid UTF-8 bytes with '?' on the fly.
// A single-byte replacement keeps the stream the same length, so no
// output buffering beyond one chunk is ever needed.
type utf8Cleaner struct {
	r       io.Reader
	out     []byte // sanitized bytes not yet handed to the caller
	pending []byte // possible start of a multi-byte rune split across reads
	err     error  // deferred error, returned once out is drained
}

func newUTF8Cleaner(r io.Reader) *utf8Cleaner {
	return &utf8Cleaner{r: r}
}

func (c *utf8Cleaner) Read(p []byte) (int, error) {
	for len(c.out) == 0 && c.err == nil {
		c.fill()
	}

	n := copy(p, c.out)
	c.out = c.out[n:]
	if len(c.out) == 0 && n == 0 {
		return 0, c.err
	}
	return n, nil
}

// fill reads one chunk, carries over any incomplete trailing rune, and
// sanitizes the rest into c.out.
func (c *utf8Cleaner) fill() {
	buf := make([]byte, 0, 4096)
	buf = append(buf, c.pending...)
	c.pending = c.pending[:0]

	chunk := make([]byte, 4096)
	n, err := c.r.Read(chunk)
	buf = append(buf, chunk[:n]...)

	atEOF := err != nil
	if !atEOF {
		// Hold back a trailing partial rune for the next fill
		if hold := incompleteTail(buf); hold > 0 {
			c.pending = append(c.pending, buf[len(buf)-hold:]...)
			buf = buf[:len(buf)-hold]
		}
	}

	c.out = sanitize(buf)
	if err != nil {
		c.err = err
	}
}

// sanitize replaces invalid UTF-8 bytes with '?' in place.
func sanitize(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[i] = '?'
			i++
			continue
		}
		i += size
	}
	return data
}

// incompleteTail returns how many trailing bytes could be the start of a
// multi-byte UTF-8 rune that has not fully arrived yet.
func incompleteTail(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			continue // continuation byte, keep looking for the lead
		}
		if b >= 0xC0 && expectedRuneLen(b) > i {
			return i
		}
		return 0
	}
	return 0
}

// expectedRuneLen returns the UTF-8 sequence length implied by lead byte b.
func expectedRuneLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}
