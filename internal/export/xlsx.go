// Package export renders inventory rows as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/digitaldrywood/inventory/internal/inventory"
)

// ContentType is the MIME type of the workbook WriteXLSX produces.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []interface{}{"Item", "Location", "Quantity", "Timestamp"}

// WriteXLSX writes a workbook with a single sheet holding a header row and
// the given rows in order.
func WriteXLSX(w io.Writer, sheetName string, rows []inventory.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName = excelSheetName(sheetName)
	if defaultSheet := f.GetSheetName(0); defaultSheet != sheetName {
		if err := f.SetSheetName(defaultSheet, sheetName); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		values := []interface{}{row.Item, row.Location, row.Quantity, row.Timestamp}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// maxSheetName is the longest sheet name Excel accepts, in characters.
const maxSheetName = 31

// excelSheetName maps a Sheets title onto a name Excel accepts: the
// characters : \ / ? * [ ] become '-', surrounding apostrophes are dropped
// and the result is cut to 31 characters.
func excelSheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), "'")
	if runes := []rune(name); len(runes) > maxSheetName {
		name = strings.Trim(strings.TrimSpace(string(runes[:maxSheetName])), "'")
	}

	if name == "" {
		return "Sheet1"
	}
	return name
}
