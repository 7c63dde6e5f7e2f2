package core

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	RoleAdmin    Role = "admin"
	RoleKaryawan Role = "karyawan"
)

const (
	LoanApplied  LoanStatus = "applied"
	LoanApproved LoanStatus = "approved"
	LoanRejected LoanStatus = "rejected"
	LoanPaid     LoanStatus = "paid"
)

const (
	SettlementSubmitted SettlementStatus = "submitted"
	SettlementApproved  SettlementStatus = "approved"
	SettlementRejected  SettlementStatus = "rejected"
)

const (
	SavingWajib    SavingType = "wajib"
	SavingPokok    SavingType = "pokok"
	SavingSukarela SavingType = "sukarela"
)

type (
	// ID is a server identifier. The API sends either numbers or strings.
	ID string

	Role             string
	LoanStatus       string
	SettlementStatus string
	SavingType       string

	User struct {
		ID    ID     `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email,omitempty"`
		Role  Role   `json:"role,omitempty"`
	}

	Loan struct {
		ID              ID         `json:"id"`
		UserID          ID         `json:"user_id"`
		User            *User      `json:"user,omitempty"`
		Amount          Money      `json:"amount"`
		SubmittedAt     string     `json:"submitted_at"`
		PhoneSnapshot   string     `json:"phone_snapshot"`
		AddressSnapshot string     `json:"address_snapshot"`
		Status          LoanStatus `json:"status"`
	}

	Saving struct {
		ID     ID         `json:"id"`
		UserID ID         `json:"user_id"`
		User   *User      `json:"user,omitempty"`
		Type   SavingType `json:"type"`
		Month  string     `json:"month"`
		Amount Money      `json:"amount"`
	}

	Settlement struct {
		ID        ID               `json:"id"`
		LoanID    ID               `json:"loan_id"`
		Loan      *Loan            `json:"loan,omitempty"`
		User      *User            `json:"user,omitempty"`
		Amount    Money            `json:"amount"`
		PaidAt    string           `json:"paid_at"`
		Status    SettlementStatus `json:"status"`
		ProofPath string           `json:"proof_path"`
		ProofURL  string           `json:"proof_url"`
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidYear       = errors.New("invalid year")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidSavingType = errors.New("invalid saving type")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrMissingEmployee   = errors.New("missing employee")
	ErrEmptyPhone        = errors.New("empty phone")
	ErrEmptyAddress      = errors.New("empty address")
)

var (
	monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
	yearPattern  = regexp.MustCompile(`^\d{4}$`)
)

// UnmarshalJSON accepts a JSON number, a string or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return fmt.Errorf("decode id %s: %w", b, err)
		}
		*id = ID(s)
		return nil
	}
	*id = ID(b)
	return nil
}

func (id ID) String() string { return string(id) }

// HomePath returns the landing route for a role.
func HomePath(r Role) string {
	if r == RoleAdmin {
		return "/admin"
	}
	return "/karyawan"
}

// SignInPath returns the sign-in route for the area a role belongs to.
func SignInPath(r Role) string {
	return HomePath(r) + "/sign-in"
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleKaryawan
}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanApplied, LoanApproved, LoanRejected, LoanPaid:
		return true
	}
	return false
}

func (s SettlementStatus) Valid() bool {
	switch s {
	case SettlementSubmitted, SettlementApproved, SettlementRejected:
		return true
	}
	return false
}

func (t SavingType) Valid() bool {
	switch t {
	case SavingWajib, SavingPokok, SavingSukarela:
		return true
	}
	return false
}

// EmployeeName returns the best available employee name for a settlement.
func (s Settlement) EmployeeName() string {
	if s.Loan != nil && s.Loan.User != nil && s.Loan.User.Name != "" {
		return s.Loan.User.Name
	}
	if s.User != nil {
		return s.User.Name
	}
	return ""
}

// LoanAmount returns the loan amount when the loan is embedded, else the
// settlement amount.
func (s Settlement) LoanAmount() Money {
	if s.Loan != nil && !s.Loan.Amount.IsZero() {
		return s.Loan.Amount
	}
	return s.Amount
}

func (s Settlement) HasProof() bool {
	return s.ProofPath != "" || s.ProofURL != ""
}

func (l Loan) EmployeeName() string {
	if l.User == nil {
		return ""
	}
	return l.User.Name
}

// ValidMonth reports whether s has the YYYY-MM form.
func ValidMonth(s string) bool {
	return monthPattern.MatchString(s)
}

// YearOf returns the leading four characters of a date string when they
// are a four digit year.
func YearOf(ts string) (string, bool) {
	if len(ts) < 4 {
		return "", false
	}
	y := ts[:4]
	if !yearPattern.MatchString(y) {
		return "", false
	}
	return y, true
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
}

// ParseTimestamp parses the timestamp forms the API emits.
func ParseTimestamp(ts string) (time.Time, bool) {
	ts = strings.TrimSpace(ts)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MonthKey returns the YYYY-MM bucket of a timestamp. Unparseable values
// fall back to their first seven characters.
func MonthKey(ts string) string {
	if ts == "" {
		return ""
	}
	if t, ok := ParseTimestamp(ts); ok {
		return t.Format("2006-01")
	}
	if len(ts) > 7 {
		return ts[:7]
	}
	return ts
}

// ISODate returns the YYYY-MM-DD form of a timestamp, or the input when it
// cannot be parsed.
func ISODate(ts string) string {
	if ts == "" {
		return ""
	}
	if t, ok := ParseTimestamp(ts); ok {
		return t.Format("2006-01-02")
	}
	return ts
}
