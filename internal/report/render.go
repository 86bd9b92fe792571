package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"pulseboard/internal/domain"
)

// MIME types per format.
const (
	MIMECSV  = "text/csv; charset=utf-8"
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEJSON = "application/json"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// File is a rendered report ready to be streamed or stored.
type File struct {
	Content  []byte
	FileName string
	MIMEType string
}

// Render serialises b in format. An empty format means CSV.
func Render(b Body, format string) (File, error) {
	if format == "" {
		format = domain.FormatCSV
	}
	var (
		content []byte
		mime    string
		err     error
	)
	switch format {
	case domain.FormatCSV:
		content, err = RenderCSV(Sections(b))
		mime = MIMECSV
	case domain.FormatXLSX:
		content, err = RenderXLSX(Sections(b))
		mime = MIMEXLSX
	case domain.FormatJSON:
		content, err = json.MarshalIndent(b, "", "  ")
		mime = MIMEJSON
	default:
		return File{}, domain.InvalidRangeError{Field: "format", Reason: fmt.Sprintf("unsupported format %q", format)}
	}
	if err != nil {
		return File{}, fmt.Errorf("render %s: %w", format, err)
	}
	return File{Content: content, FileName: FileName(b.Meta.Period, format, b.Meta.GeneratedAt), MIMEType: mime}, nil
}

// FileName is report-<period>-<yyyy-mm-dd>.<format>.
func FileName(period, format string, at time.Time) string {
	return fmt.Sprintf("report-%s-%s.%s", period, at.Format("2006-01-02"), format)
}

// RenderCSV writes every section as a title row and a header row followed by its
// data rows, with a blank line between sections. Output starts with a UTF-8 BOM.
func RenderCSV(sections []Section) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	for i, s := range sections {
		if i > 0 {
			if err := w.Write(nil); err != nil {
				return nil, err
			}
		}
		if err := w.Write([]string{s.Title}); err != nil {
			return nil, err
		}
		if err := w.Write(s.Header); err != nil {
			return nil, err
		}
		for _, row := range s.Rows {
			rec := make([]string, len(row))
			for j, c := range row {
				rec[j] = formatCell(c)
			}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderXLSX writes one sheet per section.
func RenderXLSX(sections []Section) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	first := f.GetSheetName(0)
	for i, s := range sections {
		name := sheetName(s.Title)
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
		for col, h := range s.Header {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(name, cell, h); err != nil {
				return nil, err
			}
		}
		for r, row := range s.Rows {
			for col, v := range row {
				cell, err := excelize.CoordinatesToCellName(col+1, r+2)
				if err != nil {
					return nil, err
				}
				if err := f.SetCellValue(name, cell, v); err != nil {
					return nil, err
				}
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatCell(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case int:
		return strconv.Itoa(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return fmt.Sprint(c)
	}
}

// Excel limits sheet names to 31 characters.
func sheetName(title string) string {
	if len(title) > 31 {
		return title[:31]
	}
	return title
}
