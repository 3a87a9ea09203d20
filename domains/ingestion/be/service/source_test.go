package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseSourceWorkbook(t *testing.T) {
	content := buildWorkbook(t, map[string][][]any{
		"Sales": {
			{"EAN", "Units"},
			{"4006381333931", 12},
		},
	})

	src, err := ParseSource("acme-2025-01.xlsx", content)
	require.NoError(t, err)
	require.Equal(t, 1, src.SheetCount())
	require.Equal(t, ".xlsx", src.Extension())

	value, ok := src.Cell("", "A1")
	require.True(t, ok)
	require.Equal(t, "EAN", value)

	rows, ok := src.Rows("Sales")
	require.True(t, ok)
	require.Len(t, rows, 2)
	require.Equal(t, "4006381333931", rows[1][0])
}

func TestParseSourceCSV(t *testing.T) {
	content := []byte("EAN,Units\n4006381333931,12\n")

	src, err := ParseSource("report.csv", content)
	require.NoError(t, err)
	require.Equal(t, 1, src.SheetCount())

	value, ok := src.Cell("", "B2")
	require.True(t, ok)
	require.Equal(t, "12", value)
}

func TestParseSourceCellOutOfRangeReadsEmpty(t *testing.T) {
	src, err := ParseSource("report.csv", []byte("a,b\n"))
	require.NoError(t, err)

	value, ok := src.Cell("", "Z99")
	require.True(t, ok)
	require.Empty(t, value)

	_, ok = src.Cell("NoSuchSheet", "A1")
	require.False(t, ok)
}

func TestParseSourceRejectsUnknownExtension(t *testing.T) {
	_, err := ParseSource("report.pdf", []byte("%PDF"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseSourceRejectsCorruptWorkbook(t *testing.T) {
	_, err := ParseSource("report.xlsx", []byte("not a zip archive"))
	require.Error(t, err)
}
