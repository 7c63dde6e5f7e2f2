package sheets

import "context"

// Document is one tabular export: a header row plus data rows, all cells
// already rendered as text.
type Document struct {
	// Resource is the exported resource, e.g. "loans".
	Resource string
	// Title names the worksheet or tab, e.g. "pinjaman".
	Title string
	// Name is the file name without extension, e.g. "pinjaman_page2_approved".
	Name   string
	Header []string
	Rows   [][]string
}

// Writer is an outbound port that stores a document and returns where it
// went (a path or a sheet range).
type Writer interface {
	Name() string
	Write(ctx context.Context, doc Document) (location string, err error)
}
