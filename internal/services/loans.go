package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"koperasi/internal/api"
	"koperasi/internal/core"
	applog "koperasi/internal/log"
)

var (
	ErrMissingLoan  = errors.New("missing loan")
	ErrMissingProof = errors.New("missing proof of payment")
)

type LoansAPI interface {
	ApplyLoan(ctx context.Context, a api.LoanApplication) (core.Loan, error)
}

// LoanForm is an employee loan request as typed by the user. An empty
// Date means today.
type LoanForm struct {
	Amount  string
	Date    string
	Phone   string
	Address string
}

type Loans struct {
	api    LoansAPI
	logger *applog.Logger
	now    func() time.Time
}

func NewLoans(a LoansAPI, logger *applog.Logger) *Loans {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Loans{api: a, logger: logger, now: time.Now}
}

// Apply validates f and submits the application.
func (l *Loans) Apply(ctx context.Context, f LoanForm) (core.Loan, error) {
	amount, err := core.ParsePositiveMoney(f.Amount)
	if err != nil {
		return core.Loan{}, err
	}
	date := strings.TrimSpace(f.Date)
	if date == "" {
		date = l.now().Format("2006-01-02")
	} else if _, ok := core.ParseTimestamp(date); !ok {
		return core.Loan{}, core.ErrInvalidDate
	}
	phone := strings.TrimSpace(f.Phone)
	if phone == "" {
		return core.Loan{}, core.ErrEmptyPhone
	}
	address := strings.TrimSpace(f.Address)
	if address == "" {
		return core.Loan{}, core.ErrEmptyAddress
	}

	loan, err := l.api.ApplyLoan(ctx, api.LoanApplication{
		Amount:      amount.Plain(),
		SubmittedAt: date,
		Phone:       phone,
		Address:     address,
	})
	if err != nil {
		return core.Loan{}, fmt.Errorf("apply loan: %w", err)
	}
	l.logger.InfoContext(ctx, "Loan application submitted",
		applog.FieldOperation, applog.OpCreate,
		applog.FieldResourceID, loan.ID.String(),
		"amount", amount.Plain())
	return loan, nil
}

type SettlementsAPI interface {
	SubmitSettlement(ctx context.Context, s api.SettlementSubmission) error
}

// SettlementForm is a proof-of-payment upload. Amount is optional.
type SettlementForm struct {
	LoanID    core.ID
	Amount    string
	ProofPath string
}

type Settlements struct {
	api    SettlementsAPI
	logger *applog.Logger
}

func NewSettlements(a SettlementsAPI, logger *applog.Logger) *Settlements {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Settlements{api: a, logger: logger}
}

// Submit uploads the file at f.ProofPath as the proof for f.LoanID.
func (s *Settlements) Submit(ctx context.Context, f SettlementForm) error {
	if f.LoanID == "" {
		return ErrMissingLoan
	}
	if f.ProofPath == "" {
		return ErrMissingProof
	}
	var amount string
	if strings.TrimSpace(f.Amount) != "" {
		m, err := core.ParsePositiveMoney(f.Amount)
		if err != nil {
			return err
		}
		amount = m.Plain()
	}

	file, err := os.Open(f.ProofPath)
	if err != nil {
		return fmt.Errorf("open proof: %w", err)
	}
	defer file.Close()

	err = s.api.SubmitSettlement(ctx, api.SettlementSubmission{
		LoanID:    f.LoanID,
		Amount:    amount,
		Proof:     file,
		ProofName: filepath.Base(f.ProofPath),
	})
	if err != nil {
		return fmt.Errorf("submit settlement for loan %s: %w", f.LoanID, err)
	}
	s.logger.InfoContext(ctx, "Settlement submitted",
		applog.FieldOperation, applog.OpCreate,
		"loan_id", f.LoanID.String(),
		applog.FieldFilename, filepath.Base(f.ProofPath))
	return nil
}
