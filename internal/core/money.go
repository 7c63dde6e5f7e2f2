// Package core provides money parsing and handling utilities.
//
// Amounts are rupiah values backed by shopspring/decimal. The API sends
// them as JSON numbers or numeric strings ("1500000.00"); user input may use
// either the Indonesian (1.500.000,50) or the English (1,500,000.50)
// separators.
package core

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an IDR amount.
type Money struct {
	decimal.Decimal
}

// NewMoney returns a Money for a whole rupiah amount.
func NewMoney(rupiah int64) Money {
	return Money{Decimal: decimal.NewFromInt(rupiah)}
}

// MoneyFromDecimal wraps d.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

// UnmarshalJSON accepts numbers, numeric strings, empty strings and null.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == `""` {
		m.Decimal = decimal.Zero
		return nil
	}
	return m.Decimal.UnmarshalJSON(b)
}

func (m Money) Validate() error {
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Plain renders the amount without grouping, as used in CSV exports.
func (m Money) Plain() string {
	return m.Decimal.String()
}

// FormatIDR renders the amount the id-ID way without fraction digits,
// e.g. "Rp 1.500.000".
func (m Money) FormatIDR() string {
	r := m.Round(0)
	neg := r.IsNegative()
	digits := r.Abs().StringFixed(0)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("Rp ")
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// ParseMoney parses user input. When the last comma comes after the last dot
// the Indonesian form is assumed (dots group, comma is decimal). Without a
// comma, dots that split three-digit groups are grouping separators too.
// Otherwise commas are grouping separators. Anything other than digits, separators and
// a leading minus sign is ignored.
func ParseMoney(s string) (Money, error) {
	var cleaned strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			cleaned.WriteRune(r)
		}
	}
	c := cleaned.String()
	if c == "" {
		return Money{}, ErrInvalidAmount
	}

	var normalized string
	switch {
	case strings.Contains(c, ",") && strings.LastIndex(c, ",") > strings.LastIndex(c, "."):
		normalized = strings.Replace(strings.ReplaceAll(c, ".", ""), ",", ".", 1)
	case !strings.Contains(c, ",") && dotGrouped(c):
		normalized = strings.ReplaceAll(c, ".", "")
	default:
		normalized = strings.ReplaceAll(c, ",", "")
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return Money{Decimal: d}, nil
}

// dotGrouped reports whether every dot in s separates a group of exactly
// three digits ("250.000", "1.500.000").
func dotGrouped(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

// ParsePositiveMoney is ParseMoney plus the "at least 1" rule of the forms.
func ParsePositiveMoney(s string) (Money, error) {
	m, err := ParseMoney(s)
	if err != nil {
		return Money{}, err
	}
	if m.LessThan(decimal.NewFromInt(1)) {
		return Money{}, ErrInvalidAmount
	}
	return m, nil
}
