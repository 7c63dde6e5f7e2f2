package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestIDUnmarshalJSON(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 42, "b": "abc-1", "c": null}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A != "42" || v.B != "abc-1" || v.C != "" {
		t.Fatalf("unexpected ids %q %q %q", v.A, v.B, v.C)
	}
}

func TestMonthKey(t *testing.T) {
	cases := map[string]string{
		"2024-05-17 08:30:00":         "2024-05",
		"2024-05-17":                  "2024-05",
		"2024-12-01T10:00:00.000000Z": "2024-12",
		"2024-05":                     "2024-05",
		"":                            "",
		"garbage-value":               "garbage",
	}
	for in, want := range cases {
		if got := MonthKey(in); got != want {
			t.Errorf("MonthKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestYearOf(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-05-01", "2024", true},
		{"2024", "2024", true},
		{"24-05", "", false},
		{"abcd-05", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := YearOf(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("YearOf(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestISODate(t *testing.T) {
	if got := ISODate("2024-05-17 08:30:00"); got != "2024-05-17" {
		t.Fatalf("ISODate = %q", got)
	}
	if got := ISODate("kemarin"); got != "kemarin" {
		t.Fatalf("ISODate should echo unparseable input, got %q", got)
	}
}

func TestFilter(t *testing.T) {
	f := Filter{}
	if f.Active() {
		t.Fatal("zero filter should be inactive")
	}
	if q := f.Query(3); q.Encode() != "page=3" {
		t.Fatalf("unexpected query %q", q.Encode())
	}

	f = Filter{Month: "2024-05", Status: "approved", EmployeeID: "42"}
	if !f.Active() {
		t.Fatal("filter should be active")
	}
	q := f.Query(1)
	if q.Get("month") != "2024-05" || q.Get("status") != "approved" || q.Get("user_id") != "42" || q.Get("page") != "1" {
		t.Fatalf("unexpected query %q", q.Encode())
	}
	if q.Has("type") {
		t.Fatal("empty type must not be sent")
	}
	if got := f.Suffix(); got != "_2024-05_approved_user42" {
		t.Fatalf("unexpected suffix %q", got)
	}
}

func TestFilterValidate(t *testing.T) {
	if err := (Filter{Month: "2024-13"}).Validate(); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	if err := (Filter{Type: "bonus"}).Validate(); !errors.Is(err, ErrInvalidSavingType) {
		t.Fatalf("expected ErrInvalidSavingType, got %v", err)
	}
	if err := (Filter{Month: "2024-01", Type: "wajib"}).Validate(); err != nil {
		t.Fatalf("expected valid filter, got %v", err)
	}
}

func TestSettlementHelpers(t *testing.T) {
	s := Settlement{
		Amount: NewMoney(100),
		Loan:   &Loan{Amount: NewMoney(5000), User: &User{Name: "Sari"}},
		User:   &User{Name: "Other"},
	}
	if s.EmployeeName() != "Sari" {
		t.Fatalf("expected loan user name, got %q", s.EmployeeName())
	}
	if s.LoanAmount().String() != "5000" {
		t.Fatalf("expected loan amount, got %s", s.LoanAmount())
	}
	if s.HasProof() {
		t.Fatal("no proof expected")
	}
	s.ProofURL = "https://example.test/p.png"
	if !s.HasProof() {
		t.Fatal("proof expected")
	}
}
