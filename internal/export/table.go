package export

import (
	"strconv"

	"koperasi/internal/core"
	"koperasi/internal/dividend"
)

// SavingsPerPage is the page size the savings endpoint uses; it numbers
// rows across pages.
const SavingsPerPage = 20

// Table is the fixed column layout of one exportable resource.
type Table[T any] struct {
	Resource string
	// Prefix starts every file name, e.g. "pinjaman".
	Prefix string
	Header []string
	// Row maps a row to its cells. n is the 1-based position of the row in
	// the whole export.
	Row func(n int, v T) []string
	// PerPage is used to number rows of a single page export; zero means
	// numbering always starts at 1.
	PerPage int
}

// Rows maps every item, numbering from offset+1.
func (t Table[T]) Rows(items []T, offset int) [][]string {
	out := make([][]string, len(items))
	for i, v := range items {
		out[i] = t.Row(offset+i+1, v)
	}
	return out
}

// Offset returns the numbering offset of page.
func (t Table[T]) Offset(page int) int {
	if t.PerPage <= 0 || page <= 1 {
		return 0
	}
	return (page - 1) * t.PerPage
}

func LoanTable() Table[core.Loan] {
	return Table[core.Loan]{
		Resource: "loans",
		Prefix:   "pinjaman",
		Header: []string{
			"ID",
			"Tanggal Pengajuan",
			"Nama Karyawan",
			"Besar Pinjaman (IDR)",
			"Nomor Telepon",
			"Alamat",
			"Status",
		},
		Row: func(_ int, l core.Loan) []string {
			return []string{
				l.ID.String(),
				core.ISODate(l.SubmittedAt),
				l.EmployeeName(),
				l.Amount.Plain(),
				l.PhoneSnapshot,
				l.AddressSnapshot,
				string(l.Status),
			}
		},
	}
}

func SettlementTable() Table[core.Settlement] {
	return Table[core.Settlement]{
		Resource: "settlements",
		Prefix:   "pelunasan",
		Header: []string{
			"Settlement ID",
			"Tanggal Bayar",
			"Status",
			"Loan ID",
			"Nama Karyawan",
			"Jumlah Pinjaman (IDR)",
			"Ada Bukti",
		},
		Row: func(_ int, s core.Settlement) []string {
			loanID := ""
			if s.Loan != nil {
				loanID = s.Loan.ID.String()
			}
			proof := "tidak"
			if s.HasProof() {
				proof = "ya"
			}
			return []string{
				s.ID.String(),
				core.ISODate(s.PaidAt),
				string(s.Status),
				loanID,
				s.EmployeeName(),
				s.LoanAmount().Plain(),
				proof,
			}
		},
	}
}

// Dividends supplies the cached yearly dividend of a row.
type Dividends interface {
	Amount(k dividend.Key) (core.Money, bool)
}

// SavingTable is the employee savings layout. With a dividend source the
// yearly dividend of each row is appended; uncached years export as 0.
func SavingTable(div Dividends) Table[core.Saving] {
	header := []string{"No", "Bulan", "Jenis", "Jumlah"}
	if div != nil {
		header = append(header, "Bagi Hasil Tahunan")
	}
	return Table[core.Saving]{
		Resource: "savings",
		Prefix:   "simpanan",
		Header:   header,
		PerPage:  SavingsPerPage,
		Row: func(n int, s core.Saving) []string {
			row := []string{
				strconv.Itoa(n),
				monthLabel(s.Month),
				string(s.Type),
				s.Amount.Plain(),
			}
			if div != nil {
				row = append(row, dividendCell(div, s.Month))
			}
			return row
		},
	}
}

// AdminSavingTable is the admin savings layout with the employee column.
func AdminSavingTable() Table[core.Saving] {
	return Table[core.Saving]{
		Resource: "savings",
		Prefix:   "simpanan",
		Header:   []string{"No", "Nama Karyawan", "Bulan", "Jenis", "Jumlah"},
		PerPage:  SavingsPerPage,
		Row: func(n int, s core.Saving) []string {
			name := ""
			if s.User != nil {
				name = s.User.Name
			}
			return []string{
				strconv.Itoa(n),
				name,
				monthLabel(s.Month),
				string(s.Type),
				s.Amount.Plain(),
			}
		},
	}
}

func monthLabel(month string) string {
	if len(month) > 7 {
		return month[:7]
	}
	return month
}

func dividendCell(div Dividends, month string) string {
	k, ok := dividend.KeyOf(dividend.Ref{Date: month})
	if !ok {
		return ""
	}
	if m, ok := div.Amount(k); ok {
		return m.Plain()
	}
	return "0"
}
