package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"koperasi/internal/api"
	"koperasi/internal/core"
	applog "koperasi/internal/log"
)

// ErrNoSavingAmount means neither a wajib nor a pokok amount was given.
var ErrNoSavingAmount = errors.New("no wajib or pokok amount")

// PartialSaveError reports that some of the monthly savings were created
// before another one failed.
type PartialSaveError struct {
	Saved []core.SavingType
	Err   error
}

func (e *PartialSaveError) Error() string {
	return fmt.Sprintf("%v (already saved: %v)", e.Err, e.Saved)
}

func (e *PartialSaveError) Unwrap() error { return e.Err }

type SavingsAPI interface {
	CreateSaving(ctx context.Context, s api.NewSaving) error
}

// MonthlyEntry is the admin form for one employee's monthly savings.
// Amounts are raw user input; an empty amount is skipped.
type MonthlyEntry struct {
	UserID core.ID
	Date   string
	Wajib  string
	Pokok  string
}

type Savings struct {
	api    SavingsAPI
	logger *applog.Logger
}

func NewSavings(a SavingsAPI, logger *applog.Logger) *Savings {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Savings{api: a, logger: logger}
}

// AddMonthly posts the wajib and pokok savings of e concurrently and
// returns how many were created. At least one amount must be positive.
// When one post fails after another succeeded the error is a
// *PartialSaveError and the count is the number created.
func (s *Savings) AddMonthly(ctx context.Context, e MonthlyEntry) (int, error) {
	if e.UserID == "" {
		return 0, core.ErrMissingEmployee
	}
	if _, ok := core.ParseTimestamp(e.Date); !ok {
		return 0, core.ErrInvalidDate
	}

	var posts []api.NewSaving
	for _, in := range []struct {
		typ core.SavingType
		raw string
	}{
		{core.SavingWajib, e.Wajib},
		{core.SavingPokok, e.Pokok},
	} {
		if strings.TrimSpace(in.raw) == "" {
			continue
		}
		amount, err := core.ParseMoney(in.raw)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", in.typ, err)
		}
		if !amount.IsPositive() {
			continue
		}
		posts = append(posts, api.NewSaving{UserID: e.UserID, Type: in.typ, Month: e.Date, Amount: amount})
	}
	if len(posts) == 0 {
		return 0, ErrNoSavingAmount
	}

	// no shared cancellation: a post already sent must be allowed to finish
	// so the outcome of each one is known
	created := make([]bool, len(posts))
	var g errgroup.Group
	for i, p := range posts {
		g.Go(func() error {
			if err := s.api.CreateSaving(ctx, p); err != nil {
				return fmt.Errorf("create %s saving: %w", p.Type, err)
			}
			created[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var saved []core.SavingType
		for i, ok := range created {
			if ok {
				saved = append(saved, posts[i].Type)
			}
		}
		if len(saved) == 0 {
			return 0, err
		}
		s.logger.WarnContext(ctx, "Monthly savings partially added",
			applog.FieldEmployeeID, e.UserID.String(),
			applog.FieldMonth, core.MonthKey(e.Date),
			applog.FieldRows, len(saved),
			applog.FieldError, err)
		return len(saved), &PartialSaveError{Saved: saved, Err: err}
	}

	s.logger.InfoContext(ctx, "Monthly savings added",
		applog.FieldOperation, applog.OpCreate,
		applog.FieldEmployeeID, e.UserID.String(),
		applog.FieldMonth, core.MonthKey(e.Date),
		applog.FieldRows, len(posts))
	return len(posts), nil
}

// MonthlyTotals sums amounts per YYYY-MM, oldest month first. Rows without
// a month are skipped.
func MonthlyTotals(rows []core.Saving) []core.MonthTotal {
	sums := make(map[string]core.Money)
	for _, r := range rows {
		k := core.MonthKey(r.Month)
		if k == "" {
			continue
		}
		sums[k] = core.MoneyFromDecimal(sums[k].Add(r.Amount.Decimal))
	}
	out := make([]core.MonthTotal, 0, len(sums))
	for k, v := range sums {
		out = append(out, core.MonthTotal{Month: k, Total: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
