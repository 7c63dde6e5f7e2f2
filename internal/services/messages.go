package services

import (
	"errors"

	"koperasi/internal/api"
	"koperasi/internal/core"
)

var inputMessages = []struct {
	err error
	msg string
}{
	{ErrNoSavingAmount, "Isi nominal simpanan wajib atau pokok (salah satu / keduanya)."},
	{core.ErrMissingEmployee, "Pilih karyawan dulu."},
	{core.ErrInvalidDate, "Isi tanggal dulu."},
	{core.ErrInvalidMonth, "Format bulan harus YYYY-MM."},
	{core.ErrInvalidYear, "Tahun harus empat digit."},
	{core.ErrInvalidStatus, "Status tidak valid."},
	{core.ErrInvalidAmount, "Nominal tidak valid."},
	{core.ErrInvalidSavingType, "Jenis simpanan tidak valid."},
	{core.ErrEmptyPhone, "Nomor telepon wajib diisi."},
	{core.ErrEmptyAddress, "Alamat wajib diisi."},
	{ErrMissingLoan, "Pilih pinjaman dulu."},
	{ErrMissingProof, "Bukti pembayaran wajib diunggah."},
	{ErrWrongArea, "Akun ini tidak memiliki akses ke halaman ini."},
}

// Message is api.UserMessage that also knows the local input errors.
func Message(err error, fallback string) string {
	for _, m := range inputMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return api.UserMessage(err, fallback)
}
