package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for uploads that are neither a workbook
// nor delimited text.
var ErrUnsupportedFormat = errors.New("unsupported file format")

type sheet struct {
	name string
	rows [][]string
}

// Source is a fully parsed upload: the filename plus every sheet's cell grid.
// Workbooks keep their sheet structure; delimited text becomes a single
// unnamed sheet. Parsing happens once, before detection, so signature probes
// and row extraction read the same data.
type Source struct {
	filename string
	sheets   []sheet
}

// ParseSource decodes the upload content based on its extension.
func ParseSource(filename string, content []byte) (*Source, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		return parseWorkbook(filename, content)
	case ".csv":
		return parseDelimited(filename, content, ',')
	case ".tsv":
		return parseDelimited(filename, content, '\t')
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseWorkbook(filename string, content []byte) (*Source, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() // nolint:errcheck

	src := &Source{filename: filename}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		src.sheets = append(src.sheets, sheet{name: name, rows: rows})
	}
	if len(src.sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return src, nil
}

func parseDelimited(filename string, content []byte, comma rune) (*Source, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read delimited file: %w", err)
		}
		rows = append(rows, record)
	}

	return &Source{filename: filename, sheets: []sheet{{rows: rows}}}, nil
}

// Filename returns the original upload filename.
func (s *Source) Filename() string { return s.filename }

// Extension returns the lowercase filename extension including the dot.
func (s *Source) Extension() string {
	return strings.ToLower(filepath.Ext(s.filename))
}

// SheetCount returns the number of sheets.
func (s *Source) SheetCount() int { return len(s.sheets) }

// Rows returns the cell grid of the named sheet; the empty name selects the
// first sheet.
func (s *Source) Rows(name string) ([][]string, bool) {
	sh, ok := s.sheet(name)
	if !ok {
		return nil, false
	}
	return sh.rows, true
}

// Cell returns the trimmed value at an A1-style reference on the named sheet.
// Out-of-range references read as empty.
func (s *Source) Cell(sheetName, ref string) (string, bool) {
	sh, ok := s.sheet(sheetName)
	if !ok {
		return "", false
	}

	col, row, err := excelize.CellNameToCoordinates(ref)
	if err != nil {
		return "", false
	}
	if row > len(sh.rows) {
		return "", true
	}
	cells := sh.rows[row-1]
	if col > len(cells) {
		return "", true
	}
	return strings.TrimSpace(cells[col-1]), true
}

func (s *Source) sheet(name string) (sheet, bool) {
	if name == "" {
		if len(s.sheets) == 0 {
			return sheet{}, false
		}
		return s.sheets[0], true
	}
	for _, sh := range s.sheets {
		if sh.name == name {
			return sh, true
		}
	}
	return sheet{}, false
}
