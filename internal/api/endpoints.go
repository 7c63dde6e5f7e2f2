package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"koperasi/internal/core"
	"koperasi/internal/pagination"
)

// LoginResult is the body of a successful POST /login.
type LoginResult struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

// Registration is the admin sign-up form.
type Registration struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// LoanApplication is an employee loan request.
type LoanApplication struct {
	Amount      string `json:"amount"`
	SubmittedAt string `json:"submitted_at,omitempty"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

// NewSaving records one saving for an employee.
type NewSaving struct {
	UserID core.ID         `json:"user_id"`
	Type   core.SavingType `json:"type"`
	Month  string          `json:"month"`
	Amount core.Money      `json:"amount"`
}

// SavingUpdate changes the amount and type of a saving.
type SavingUpdate struct {
	Amount core.Money      `json:"amount"`
	Type   core.SavingType `json:"type"`
}

// SettlementSubmission is a proof-of-payment upload.
type SettlementSubmission struct {
	LoanID    core.ID
	Amount    string
	Proof     io.Reader
	ProofName string
}

// Attachment is a binary proof file.
type Attachment struct {
	Data        []byte
	ContentType string
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	in := map[string]string{"email": email, "password": password}
	if err := c.sendJSON(ctx, http.MethodPost, "/login", in, &out); err != nil {
		return LoginResult{}, err
	}
	if out.Token == "" {
		return LoginResult{}, fmt.Errorf("login: %w: empty token", ErrUnauthenticated)
	}
	return out, nil
}

// Logout revokes the current token server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.sendJSON(ctx, http.MethodPost, "/logout", nil, nil)
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (core.User, error) {
	var u core.User
	if err := c.getJSON(ctx, "/me", nil, &u); err != nil {
		return core.User{}, err
	}
	return u, nil
}

// RegisterAdmin creates an admin account.
func (c *Client) RegisterAdmin(ctx context.Context, r Registration) error {
	return c.sendJSON(ctx, http.MethodPost, "/admin/register", r, nil)
}

func list[T any](ctx context.Context, c *Client, path string, f core.Filter, page int) (pagination.Page[T], error) {
	if page < 1 {
		page = 1
	}
	body, _, err := c.raw(ctx, request{method: http.MethodGet, path: path, query: f.Query(page)})
	if err != nil {
		return pagination.Page[T]{}, err
	}
	p, err := pagination.Normalize[T](body, page)
	if err != nil {
		return pagination.Page[T]{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ListLoans fetches one page of loans.
func (c *Client) ListLoans(ctx context.Context, f core.Filter, page int) (pagination.Page[core.Loan], error) {
	return list[core.Loan](ctx, c, "/loans", f, page)
}

// ApplyLoan submits a loan application.
func (c *Client) ApplyLoan(ctx context.Context, a LoanApplication) (core.Loan, error) {
	var out core.Loan
	if err := c.sendJSON(ctx, http.MethodPost, "/loans", a, &out); err != nil {
		return core.Loan{}, err
	}
	return out, nil
}

func (c *Client) ApproveLoan(ctx context.Context, id core.ID) error {
	return c.sendJSON(ctx, http.MethodPost, "/loans/"+url.PathEscape(id.String())+"/approve", nil, nil)
}

func (c *Client) RejectLoan(ctx context.Context, id core.ID) error {
	return c.sendJSON(ctx, http.MethodPost, "/loans/"+url.PathEscape(id.String())+"/reject", nil, nil)
}

// ListSavings fetches one page of savings.
func (c *Client) ListSavings(ctx context.Context, f core.Filter, page int) (pagination.Page[core.Saving], error) {
	return list[core.Saving](ctx, c, "/savings", f, page)
}

func (c *Client) CreateSaving(ctx context.Context, s NewSaving) error {
	return c.sendJSON(ctx, http.MethodPost, "/savings", s, nil)
}

func (c *Client) UpdateSaving(ctx context.Context, id core.ID, u SavingUpdate) error {
	return c.sendJSON(ctx, http.MethodPut, "/savings/"+url.PathEscape(id.String()), u, nil)
}

func (c *Client) DeleteSaving(ctx context.Context, id core.ID) error {
	return c.sendJSON(ctx, http.MethodDelete, "/savings/"+url.PathEscape(id.String()), nil, nil)
}

// SavingsSummary returns yearly totals; an empty userID means the caller.
func (c *Client) SavingsSummary(ctx context.Context, year int, userID core.ID) (core.SavingsSummary, error) {
	q := url.Values{"year": {strconv.Itoa(year)}}
	if userID != "" {
		q.Set("user_id", userID.String())
	}
	var out core.SavingsSummary
	if err := c.getJSON(ctx, "/savings/summary", q, &out); err != nil {
		return core.SavingsSummary{}, err
	}
	return out, nil
}

// ListSettlements fetches one page of settlements.
func (c *Client) ListSettlements(ctx context.Context, f core.Filter, page int) (pagination.Page[core.Settlement], error) {
	return list[core.Settlement](ctx, c, "/settlements", f, page)
}

// SubmitSettlement uploads a proof of payment for a loan.
func (c *Client) SubmitSettlement(ctx context.Context, s SettlementSubmission) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("loan_id", s.LoanID.String()); err != nil {
		return fmt.Errorf("write loan_id: %w", err)
	}
	if s.Amount != "" {
		if err := w.WriteField("amount", s.Amount); err != nil {
			return fmt.Errorf("write amount: %w", err)
		}
	}
	if s.Proof != nil {
		name := s.ProofName
		if name == "" {
			name = "proof"
		}
		part, err := w.CreateFormFile("proof", name)
		if err != nil {
			return fmt.Errorf("create proof part: %w", err)
		}
		if _, err := io.Copy(part, s.Proof); err != nil {
			return fmt.Errorf("copy proof: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	_, _, err := c.raw(ctx, request{
		method:      http.MethodPost,
		path:        "/settlements",
		body:        &buf,
		contentType: w.FormDataContentType(),
	})
	return err
}

// SettlementProof downloads the proof attachment of a settlement.
func (c *Client) SettlementProof(ctx context.Context, id core.ID) (Attachment, error) {
	body, header, err := c.raw(ctx, request{
		method: http.MethodGet,
		path:   "/settlements/" + url.PathEscape(id.String()) + "/proof",
		accept: "*/*",
	})
	if err != nil {
		return Attachment{}, err
	}
	ct := header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	return Attachment{Data: body, ContentType: ct}, nil
}

func (c *Client) ApproveSettlement(ctx context.Context, id core.ID) error {
	return c.sendJSON(ctx, http.MethodPost, "/settlements/"+url.PathEscape(id.String())+"/approve", nil, nil)
}

func (c *Client) RejectSettlement(ctx context.Context, id core.ID) error {
	return c.sendJSON(ctx, http.MethodPost, "/settlements/"+url.PathEscape(id.String())+"/reject", nil, nil)
}

// Dividend returns the yearly dividend; an empty userID means the caller.
func (c *Client) Dividend(ctx context.Context, year int, userID core.ID) (core.Money, error) {
	q := url.Values{"year": {strconv.Itoa(year)}}
	if userID != "" {
		q.Set("user_id", userID.String())
	}
	var out core.Dividend
	if err := c.getJSON(ctx, "/dividend", q, &out); err != nil {
		return core.Money{}, err
	}
	return out.Dividend, nil
}

// Users lists users with the given role. The endpoint may or may not be
// paginated; only the first page is returned.
func (c *Client) Users(ctx context.Context, role core.Role) ([]core.User, error) {
	q := url.Values{}
	if role != "" {
		q.Set("role", string(role))
	}
	body, _, err := c.raw(ctx, request{method: http.MethodGet, path: "/users", query: q})
	if err != nil {
		return nil, err
	}
	p, err := pagination.Normalize[core.User](body, 1)
	if err != nil {
		return nil, fmt.Errorf("/users: %w", err)
	}
	return p.Items, nil
}

// UsersSummary returns the admin dashboard counters.
func (c *Client) UsersSummary(ctx context.Context) (core.UsersSummary, error) {
	var out core.UsersSummary
	if err := c.getJSON(ctx, "/users/summary", nil, &out); err != nil {
		return core.UsersSummary{}, err
	}
	return out, nil
}
