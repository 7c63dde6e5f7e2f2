package listing

import (
	"context"

	"koperasi/internal/core"
	applog "koperasi/internal/log"
	"koperasi/internal/pagination"
)

const (
	FallbackLoans       = "Gagal memuat data pinjaman"
	FallbackSettlements = "Gagal memuat data pelunasan"
	FallbackSavings     = "Gagal memuat data simpanan"
)

type (
	LoanSource interface {
		ListLoans(ctx context.Context, f core.Filter, page int) (pagination.Page[core.Loan], error)
	}
	SavingSource interface {
		ListSavings(ctx context.Context, f core.Filter, page int) (pagination.Page[core.Saving], error)
	}
	SettlementSource interface {
		ListSettlements(ctx context.Context, f core.Filter, page int) (pagination.Page[core.Settlement], error)
	}
)

// MatchLoan filters by status and the month of submitted_at.
func MatchLoan(l core.Loan, f core.Filter) bool {
	if f.Status != "" && string(l.Status) != f.Status {
		return false
	}
	if f.Month != "" && core.MonthKey(l.SubmittedAt) != f.Month {
		return false
	}
	if f.EmployeeID != "" && l.UserID.String() != f.EmployeeID {
		return false
	}
	return true
}

// MatchSettlement filters by status and the month of paid_at.
func MatchSettlement(s core.Settlement, f core.Filter) bool {
	if f.Status != "" && string(s.Status) != f.Status {
		return false
	}
	if f.Month != "" && core.MonthKey(s.PaidAt) != f.Month {
		return false
	}
	return true
}

// MatchSaving filters by type, month and employee.
func MatchSaving(s core.Saving, f core.Filter) bool {
	if f.Type != "" && string(s.Type) != f.Type {
		return false
	}
	if f.Month != "" && core.MonthKey(s.Month) != f.Month {
		return false
	}
	if f.EmployeeID != "" {
		id := s.UserID
		if id == "" && s.User != nil {
			id = s.User.ID
		}
		if id.String() != f.EmployeeID {
			return false
		}
	}
	return true
}

func Loans(src LoanSource, logger *applog.Logger) *Controller[core.Loan] {
	return New[core.Loan](src.ListLoans, MatchLoan, Config{Resource: "loans", Fallback: FallbackLoans, Logger: logger})
}

func Savings(src SavingSource, logger *applog.Logger) *Controller[core.Saving] {
	return New[core.Saving](src.ListSavings, MatchSaving, Config{Resource: "savings", Fallback: FallbackSavings, Logger: logger})
}

func Settlements(src SettlementSource, logger *applog.Logger) *Controller[core.Settlement] {
	return New[core.Settlement](src.ListSettlements, MatchSettlement, Config{Resource: "settlements", Fallback: FallbackSettlements, Logger: logger})
}
