package convert

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetToCSV converts one sheet of the workbook at src into a CSV file
// at dst, written in the named text encoding. The sheet is selected by its
// zero-based index in the workbook's sheet list.
//
// Rows are written as-is; ragged rows are padded to the width of the longest
// row so the output is rectangular.
func SpreadsheetToCSV(src, dst string, sheet int, encodingName string) error {
	wb, err := excelize.OpenFile(src)
	if err != nil {
		return fmt.Errorf("convert: open workbook %s: %w", src, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if sheet < 0 || sheet >= len(sheets) {
		return fmt.Errorf("convert: workbook %s has %d sheets, sheet index %d out of range", src, len(sheets), sheet)
	}

	rows, err := wb.GetRows(sheets[sheet])
	if err != nil {
		return fmt.Errorf("convert: read sheet %q: %w", sheets[sheet], err)
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	return writeCSV(dst, encodingName, func(w *csv.Writer) error {
		padded := make([]string, width)
		for _, row := range rows {
			copy(padded, row)
			for i := len(row); i < width; i++ {
				padded[i] = ""
			}
			if err := w.Write(padded); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeCSV creates dst (and parents), wraps it in the named encoding, and
// hands a csv.Writer to fn.
func writeCSV(dst, encodingName string, fn func(w *csv.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("convert: mkdir for %s: %w", dst, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("convert: create %s: %w", dst, err)
	}

	out, finish, err := encodedWriter(f, encodingName)
	if err != nil {
		_ = f.Close()
		return err
	}

	w := csv.NewWriter(out)
	if err := fn(w); err != nil {
		_ = f.Close()
		return fmt.Errorf("convert: write %s: %w", dst, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("convert: flush %s: %w", dst, err)
	}
	if err := finish(); err != nil {
		_ = f.Close()
		return fmt.Errorf("convert: finish encoding %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("convert: close %s: %w", dst, err)
	}
	return nil
}
