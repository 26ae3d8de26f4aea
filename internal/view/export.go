package view

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

var exportHeaders = []string{"Timestamp (UTC+7)", "Temperature (°C)", "Humidity (%RH)", "Heat Index (°C)", "Flag"}

// WriteXLSX writes one history page as a workbook, rows in table order.
func WriteXLSX(w io.Writer, p Page) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := p.DeviceID
	if sheet == "" {
		sheet = "History"
	}
	// Sheet names are capped at 31 characters.
	if len([]rune(sheet)) > 31 {
		sheet = string([]rune(sheet)[:31])
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	header := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "E1", headerStyle); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", "A", 20); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "E", 16); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	for i, r := range p.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.Local, r.Temperature, r.Humidity, r.HeatIndex, r.Flag}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
