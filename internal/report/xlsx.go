package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes rep as a one-sheet workbook: an unnamed first column with
// the column names, then "Missing Values" and "Percentage Missing".
func WriteXLSX(path string, rep MissingReport) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &[]any{"", "Missing Values", "Percentage Missing"}); err != nil {
		return fmt.Errorf("xlsx: header: %w", err)
	}
	for i, c := range rep.Columns {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &[]any{c.Column, c.Missing, c.Percent}); err != nil {
			return fmt.Errorf("xlsx: row %s: %w", c.Column, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", path, err)
	}
	return nil
}
