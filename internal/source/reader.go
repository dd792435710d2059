package source

// reader.go cleans raw CSV bytes before parsing: a UTF-8 byte order mark
// written by Windows tools is dropped and invalid UTF-8 bytes become '?'.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader positioned after a leading byte order mark.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' while streaming.
// A multi-byte sequence split across reads is held back until the next
// read completes it.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

// Read implements io.Reader. p must be able to hold utf8.UTFMax bytes.
func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, s.pending)
	s.pending = s.pending[:0]

	m, err := s.r.Read(p[n:])
	n += m
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	if err == nil {
		if tail := incompleteTail(data); tail > 0 {
			s.pending = append(s.pending, data[n-tail:]...)
			data = data[:n-tail]
		}
	}
	if utf8.Valid(data) {
		return len(data), err
	}
	return sanitize(data), err
}

// sanitize rewrites data in place and returns the new length.
func sanitize(data []byte) int {
	w := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			i++
			continue
		}
		copy(data[w:], data[i:i+size])
		w += size
		i += size
	}
	return w
}

// incompleteTail returns how many trailing bytes start a multi-byte
// sequence that is not finished yet.
func incompleteTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			continue
		}
		if b >= 0xC0 && i < sequenceLen(b) {
			return i
		}
		return 0
	}
	return 0
}

// sequenceLen is the encoded length announced by a leading byte.
func sequenceLen(b byte) int {
	switch {
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}
