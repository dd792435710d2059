package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// CSVSource reads bunches from comma separated text.
type CSVSource struct {
	r         *csv.Reader
	header    header
	batchSize int

	rowNum int
	index  int
	done   bool
}

// NewCSV reads the header of r and returns a source for the data rows.
func NewCSV(r io.Reader, batchSize int) (*CSVSource, error) {
	cr := csv.NewReader(newUTF8Sanitizer(skipBOM(r)))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		if isBlank(fields) {
			continue
		}
		h, err := newHeader(fields)
		if err != nil {
			return nil, err
		}
		return &CSVSource{r: cr, header: h, batchSize: batchSizeOrDefault(batchSize)}, nil
	}
}

// Columns returns the normalized header.
func (s *CSVSource) Columns() []string {
	return s.header.columns()
}

// NextBunch reads up to batchSize data rows. It returns io.EOF once the
// input is exhausted.
func (s *CSVSource) NextBunch(ctx context.Context) (*core.Bunch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}

	bunch := &core.Bunch{Index: s.index}
	for len(bunch.Rows) < s.batchSize {
		fields, err := s.r.Read()
		if errors.Is(err, io.EOF) {
			s.done = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", s.rowNum+1, err)
		}
		s.rowNum++

		data, ok := s.header.row(fields)
		if !ok {
			continue
		}
		bunch.Rows = append(bunch.Rows, core.NewRow(s.rowNum, data))
	}

	if len(bunch.Rows) == 0 {
		return nil, io.EOF
	}
	s.index++
	return bunch, nil
}

// Close is a no-op; the caller owns the underlying reader.
func (s *CSVSource) Close() error {
	return nil
}
