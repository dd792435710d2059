package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// XLSXSource reads bunches from the first sheet of a workbook.
type XLSXSource struct {
	file      *excelize.File
	rows      *excelize.Rows
	sheet     string
	header    header
	batchSize int

	rowNum int
	index  int
	done   bool
}

// NewXLSX opens the workbook in r and reads the header of its first sheet.
// The workbook is buffered in memory by excelize.
func NewXLSX(r io.Reader, batchSize int) (*XLSXSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	s, err := newXLSXSource(f, batchSizeOrDefault(batchSize))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func newXLSXSource(f *excelize.File, batchSize int) (*XLSXSource, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("open sheet %s: %w", sheet, err)
	}

	for rows.Next() {
		fields, err := rows.Columns()
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("read header of sheet %s: %w", sheet, err)
		}
		if isBlank(fields) {
			continue
		}
		h, err := newHeader(fields)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		return &XLSXSource{file: f, rows: rows, sheet: sheet, header: h, batchSize: batchSize}, nil
	}
	_ = rows.Close()
	return nil, ErrEmptyFile
}

// Columns returns the normalized header.
func (s *XLSXSource) Columns() []string {
	return s.header.columns()
}

// NextBunch reads up to batchSize data rows. It returns io.EOF once the
// sheet is exhausted.
func (s *XLSXSource) NextBunch(ctx context.Context) (*core.Bunch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}

	bunch := &core.Bunch{Index: s.index}
	for len(bunch.Rows) < s.batchSize {
		if !s.rows.Next() {
			if err := s.rows.Error(); err != nil {
				return nil, fmt.Errorf("read sheet %s: %w", s.sheet, err)
			}
			s.done = true
			break
		}
		fields, err := s.rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row %d of sheet %s: %w", s.rowNum+1, s.sheet, err)
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

// Close releases the row iterator and the workbook's temporary files.
func (s *XLSXSource) Close() error {
	return errors.Join(s.rows.Close(), s.file.Close())
}
