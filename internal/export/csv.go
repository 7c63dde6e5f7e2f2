package export

import "strings"

// Escape quotes a field when it contains a comma, a double quote or a
// newline, doubling the quotes inside. Other fields are returned as is.
func Escape(field string) string {
	if !strings.ContainsAny(field, ",\"\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// EncodeCSV renders the header followed by rows, one line each, joined
// with "\n" and no trailing newline.
func EncodeCSV(header []string, rows [][]string) string {
	var b strings.Builder
	writeLine(&b, header)
	for _, row := range rows {
		b.WriteByte('\n')
		writeLine(&b, row)
	}
	return b.String()
}

func writeLine(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(Escape(f))
	}
}
