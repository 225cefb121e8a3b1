package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet is one worksheet: a header row followed by data rows. Int64 cells
// listed in CentsColumns are written as euros with two decimals.
type Sheet struct {
	Name         string
	Headers      []string
	Rows         [][]any
	CentsColumns []int
}

func Workbook(sheets ...Sheet) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	moneyFmt := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return nil, err
		}

		if err := writeRow(f, s.Name, 1, toAny(s.Headers)); err != nil {
			return nil, err
		}
		if len(s.Headers) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(s.Headers), 1)
			_ = f.SetCellStyle(s.Name, "A1", last, headerStyle)
		}

		cents := make(map[int]bool, len(s.CentsColumns))
		for _, col := range s.CentsColumns {
			cents[col] = true
		}

		for r, row := range s.Rows {
			values := make([]any, len(row))
			for c, v := range row {
				if n, ok := v.(int64); ok && cents[c] {
					values[c] = float64(n) / 100
					continue
				}
				if t, ok := v.(time.Time); ok {
					values[c] = t.Format("2006-01-02")
					continue
				}
				values[c] = v
			}
			if err := writeRow(f, s.Name, r+2, values); err != nil {
				return nil, err
			}
		}

		for col := range cents {
			name, _ := excelize.ColumnNumberToName(col + 1)
			if len(s.Rows) > 0 {
				_ = f.SetCellStyle(s.Name, fmt.Sprintf("%s2", name), fmt.Sprintf("%s%d", name, len(s.Rows)+1), moneyStyle)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// Send writes the workbook as a download.
func Send(c *fiber.Ctx, filename string, data []byte) error {
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(data)
}
