package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"koperasi/internal/handle"
	"koperasi/internal/sheets"
)

// Document is what a sink receives.
type Document = sheets.Document

// Sink stores a finished export.
type Sink = sheets.Writer

const (
	csvContentType  = "text/csv; charset=utf-8"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// FileSink writes CSV files into a directory.
type FileSink struct {
	dir     string
	handles *handle.Registry
}

func NewFileSink(dir string, handles *handle.Registry) *FileSink {
	return &FileSink{dir: dir, handles: handles}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Write(_ context.Context, doc Document) (string, error) {
	dst, err := exportPath(s.dir, doc.Name, ".csv")
	if err != nil {
		return "", err
	}
	data := []byte(EncodeCSV(doc.Header, doc.Rows))
	return saveThroughHandle(s.handles, dst, data, csvContentType)
}

// XLSXSink writes one workbook per export with a bold header row.
type XLSXSink struct {
	dir     string
	handles *handle.Registry
}

func NewXLSXSink(dir string, handles *handle.Registry) *XLSXSink {
	return &XLSXSink{dir: dir, handles: handles}
}

func (s *XLSXSink) Name() string { return "xlsx" }

func (s *XLSXSink) Write(_ context.Context, doc Document) (string, error) {
	dst, err := exportPath(s.dir, doc.Name, ".xlsx")
	if err != nil {
		return "", err
	}
	data, err := Workbook(doc)
	if err != nil {
		return "", err
	}
	return saveThroughHandle(s.handles, dst, data, xlsxContentType)
}

// Workbook renders doc as an XLSX file with a single worksheet.
func Workbook(doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := doc.Title
	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return nil, fmt.Errorf("name worksheet %q: %w", sheet, err)
		}
	}

	if err := setRow(f, sheet, 1, doc.Header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}
	for i, row := range doc.Rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

// ErrUnsafeFileName is returned when an export name would leave the export
// directory.
var ErrUnsafeFileName = errors.New("export file name leaves the export directory")

// exportPath joins dir and name+ext and requires the result to sit directly
// inside dir.
func exportPath(dir, name, ext string) (string, error) {
	dst := filepath.Join(dir, name+ext)
	if name == "" || filepath.Base(dst) != name+ext || filepath.Dir(dst) != filepath.Clean(dir) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeFileName, name)
	}
	return dst, nil
}

// saveThroughHandle stages data in a transient handle, copies it to dst
// and releases the handle on every path.
func saveThroughHandle(handles *handle.Registry, dst string, data []byte, contentType string) (string, error) {
	h, err := handles.Acquire(data, contentType)
	if err != nil {
		return "", err
	}
	defer h.Release()

	if err := h.SaveAs(dst); err != nil {
		return "", err
	}
	return dst, nil
}
