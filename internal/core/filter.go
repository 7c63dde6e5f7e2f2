package core

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Filter is the user-selected list filter. Empty fields are inactive.
type Filter struct {
	Month      string // YYYY-MM
	Status     string
	Type       string
	EmployeeID string
}

// Active reports whether any field is set.
func (f Filter) Active() bool {
	return f.Month != "" || f.Status != "" || f.Type != "" || f.EmployeeID != ""
}

// Validate checks the field formats. Status values are validated by the
// resource that owns them.
func (f Filter) Validate() error {
	var errs []error
	if f.Month != "" && !ValidMonth(f.Month) {
		errs = append(errs, fmt.Errorf("%w: %q must be YYYY-MM", ErrInvalidMonth, f.Month))
	}
	if f.Type != "" && !SavingType(f.Type).Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidSavingType, f.Type))
	}
	return errors.Join(errs...)
}

// Query builds the list query parameters: every non-empty field plus page.
func (f Filter) Query(page int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if f.Month != "" {
		q.Set("month", f.Month)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.EmployeeID != "" {
		q.Set("user_id", f.EmployeeID)
	}
	return q
}

// Suffix encodes the active fields for export file names, e.g. "_2024-05_approved".
func (f Filter) Suffix() string {
	var parts []string
	for _, v := range []string{f.Month, f.Status, f.Type} {
		if v != "" {
			parts = append(parts, fileSafe(v))
		}
	}
	if f.EmployeeID != "" {
		parts = append(parts, "user"+fileSafe(f.EmployeeID))
	}
	if len(parts) == 0 {
		return ""
	}
	return "_" + strings.Join(parts, "_")
}

// fileSafe keeps ASCII letters, digits and '-'; anything else becomes '-'.
func fileSafe(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '-'
	}, v)
}
