package export

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Budi Santoso", "Budi Santoso"},
		{"empty", "", ""},
		{"comma", "Jl. Merdeka 1, Bandung", `"Jl. Merdeka 1, Bandung"`},
		{"quote", `Toko "Maju"`, `"Toko ""Maju"""`},
		{"newline", "baris1\nbaris2", "\"baris1\nbaris2\""},
		{"semicolon is not special", "a;b", "a;b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

func TestEscape_FixedPointAndRoundTrip(t *testing.T) {
	fields := []string{
		"1500000", "approved", "2024-05-01", "Rp 1.500.000",
		"a,b", `say "hi"`, "multi\nline", `",` + "\n" + `"`, "",
	}
	for _, f := range fields {
		escaped := Escape(f)
		if !strings.ContainsAny(f, ",\"\n") {
			assert.Equal(t, f, escaped, "untouched fields are their own fixed point")
			continue
		}
		rec, err := csv.NewReader(strings.NewReader(escaped)).Read()
		require.NoError(t, err, escaped)
		require.Len(t, rec, 1)
		assert.Equal(t, f, rec[0], "parse-back equals original")
	}
}

func TestEncodeCSV(t *testing.T) {
	got := EncodeCSV(
		[]string{"ID", "Alamat"},
		[][]string{{"1", "Jl. A, No. 2"}, {"2", ""}},
	)
	assert.Equal(t, "ID,Alamat\n1,\"Jl. A, No. 2\"\n2,", got)

	r := csv.NewReader(strings.NewReader(got))
	records, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ID", "Alamat"}, {"1", "Jl. A, No. 2"}, {"2", ""}}, records)

	assert.Equal(t, "No,Bulan", EncodeCSV([]string{"No", "Bulan"}, nil))
}
