// Package source turns uploaded CSV and XLSX files into bunches of rows for
// the catalog importer.
//
// Both sources read lazily: a bunch is parsed only when the importer asks
// for it. The first non-blank record is the header; header names are
// trimmed and lowercased. Row numbers are 1-based positions among the data
// records, so they match what a user sees below the header.
package source

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// DefaultBatchSize is used when Open gets a non-positive batch size.
const DefaultBatchSize = 500

var (
	// ErrUnsupportedFormat is returned by Open for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported file type")

	// ErrMissingSKUColumn is returned when the header has no sku column.
	ErrMissingSKUColumn = errors.New("header has no sku column")

	// ErrEmptyFile is returned when a file has no header row.
	ErrEmptyFile = errors.New("empty file: no header row")
)

// Source is a bunch source over one file.
type Source interface {
	core.BunchSource
	// Columns returns the normalized header.
	Columns() []string
	Close() error
}

// Open picks a source by the extension of name.
func Open(name string, r io.Reader, batchSize int) (Source, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return NewCSV(r, batchSize)
	case ".xlsx":
		return NewXLSX(r, batchSize)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// header maps record positions to column names.
type header []string

func newHeader(fields []string) (header, error) {
	h := make(header, len(fields))
	seen := make(map[string]bool, len(fields))
	hasSKU := false
	for i, f := range fields {
		name := strings.ToLower(strings.TrimSpace(f))
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
		h[i] = name
		if name == core.ColSKU {
			hasSKU = true
		}
	}
	if !hasSKU {
		return nil, ErrMissingSKUColumn
	}
	return h, nil
}

func (h header) columns() []string {
	out := make([]string, 0, len(h))
	for _, name := range h {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// row builds the cell map of a record. Fields past the header and columns
// without a name are dropped. ok is false for a record with no content.
func (h header) row(fields []string) (data map[string]string, ok bool) {
	data = make(map[string]string, len(h))
	for i, v := range fields {
		if i >= len(h) || h[i] == "" {
			continue
		}
		v = core.CleanCell(v)
		data[h[i]] = v
		if v != "" {
			ok = true
		}
	}
	return data, ok
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func batchSizeOrDefault(n int) int {
	if n <= 0 {
		return DefaultBatchSize
	}
	return n
}
