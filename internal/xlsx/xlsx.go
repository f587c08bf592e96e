// Package xlsx converts between workbook state and .xlsx files.
package xlsx

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"gridbook/internal/engine"
)

// Read parses an .xlsx stream into the bulk-load shape. Formula cells
// keep their formula (prefixed with "=" when excelize reports it bare);
// everything else becomes a value, numbers parsed where possible.
func Read(r io.Reader) (engine.Import, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return engine.Import{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var out engine.Import
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return engine.Import{}, fmt.Errorf("read sheet %s: %w", sheetName, err)
		}

		is := engine.ImportSheet{Name: sheetName, Rows: make([][]engine.ImportCell, len(rows))}
		for rowIdx, row := range rows {
			is.Rows[rowIdx] = make([]engine.ImportCell, len(row))
			for colIdx, cellValue := range row {
				cellName, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
				if formula, err := f.GetCellFormula(sheetName, cellName); err == nil && formula != "" {
					if formula[0] != '=' {
						formula = "=" + formula
					}
					is.Rows[rowIdx][colIdx] = engine.ImportCell{Formula: &formula}
					continue
				}
				if cellValue == "" {
					continue
				}
				is.Rows[rowIdx][colIdx] = engine.ImportCell{Value: parseValue(cellValue)}
			}
		}
		out.Sheets = append(out.Sheets, is)
	}
	return out, nil
}

// Write renders the workbook as an .xlsx stream. Formula cells carry
// their formula; computed values are written for plain cells.
func Write(w io.Writer, wb *engine.Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range wb.SheetNames() {
		if i == 0 {
			// excelize starts with one default sheet; rename it.
			defaultName := f.GetSheetName(0)
			if defaultName != name {
				if err := f.SetSheetName(defaultName, name); err != nil {
					return fmt.Errorf("rename sheet %s: %w", name, err)
				}
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return fmt.Errorf("create sheet %s: %w", name, err)
			}
		}

		sheet, err := wb.Sheet(name)
		if err != nil {
			return err
		}
		for rowIdx, row := range sheet.Rows {
			for colIdx, cell := range row {
				cellName, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
				if err != nil {
					return err
				}
				if cell.Formula != "" {
					// Write the computed value too so readers that only
					// look at cached values see something.
					if cell.Value != nil {
						if err := f.SetCellValue(name, cellName, cell.Value); err != nil {
							return fmt.Errorf("write cell %s!%s: %w", name, cellName, err)
						}
					}
					if err := f.SetCellFormula(name, cellName, cell.Formula); err != nil {
						return fmt.Errorf("write formula %s!%s: %w", name, cellName, err)
					}
					continue
				}
				if cell.Value == nil {
					continue
				}
				if err := f.SetCellValue(name, cellName, cell.Value); err != nil {
					return fmt.Errorf("write cell %s!%s: %w", name, cellName, err)
				}
			}
		}
	}

	return f.Write(w)
}

// parseValue attempts to parse a string value as a number.
// Returns float64 for numerics, or the original string.
func parseValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
