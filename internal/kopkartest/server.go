// Package kopkartest runs an in-memory koperasi API for tests.
//
// The server speaks the same JSON as the real backend: list endpoints are
// paginated in either the classic or the wrapped shape, errors use the
// {"message", "errors"} body and every request except /login needs the
// bearer token.
package kopkartest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"koperasi/internal/core"
)

const (
	DefaultToken    = "test-token"
	DefaultPassword = "rahasia"
)

// Proof is a stored settlement attachment.
type Proof struct {
	Data        []byte
	ContentType string
}

type failure struct {
	status int
	body   string
}

// Server is a fake koperasi API. Exported fields may be changed between
// requests under Lock/Unlock or before the first request.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	Token    string
	Password string
	Me       core.User

	Users       []core.User
	Loans       []core.Loan
	Savings     []core.Saving
	Settlements []core.Settlement
	Proofs      map[core.ID]Proof

	// Dividends maps "<user_id>-<year>" (or "<year>" for the caller) to an
	// amount; missing keys are zero.
	Dividends map[string]decimal.Decimal

	PerPage int
	// Wrapped selects the {data, meta, links} list shape.
	Wrapped bool
	// IgnoreFilters makes list endpoints return unfiltered rows, the way
	// the production backend treats some parameters.
	IgnoreFilters bool
	// DuplicateSavingType answers POST /savings of this type with a
	// validation error.
	DuplicateSavingType core.SavingType

	// Before runs ahead of every handler; tests use it to block or delay.
	Before func(r *http.Request)

	failures map[string]failure
	calls    map[string]int
	nextID   int
	uploads  []Upload
}

// Upload records a settlement submission.
type Upload struct {
	LoanID      string
	Amount      string
	Filename    string
	ContentType string
	Size        int
}

// New starts a server with an employee signed in as user 42.
func New() *Server {
	s := &Server{
		Token:     DefaultToken,
		Password:  DefaultPassword,
		Me:        core.User{ID: "42", Name: "Budi Santoso", Email: "budi@koperasi.test", Role: core.RoleKaryawan},
		Proofs:    map[core.ID]Proof{},
		Dividends: map[string]decimal.Decimal{},
		PerPage:   10,
		failures:  map[string]failure{},
		calls:     map[string]int{},
		nextID:    1000,
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) Lock()   { s.mu.Lock() }
func (s *Server) Unlock() { s.mu.Unlock() }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Post("/login", s.login)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/logout", s.logout)
		r.Get("/me", s.me)
		r.Post("/admin/register", s.register)

		r.Route("/loans", func(r chi.Router) {
			r.Get("/", s.listLoans)
			r.Post("/", s.applyLoan)
			r.Post("/{id}/approve", s.moderateLoan(core.LoanApproved))
			r.Post("/{id}/reject", s.moderateLoan(core.LoanRejected))
		})
		r.Route("/savings", func(r chi.Router) {
			r.Get("/", s.listSavings)
			r.Post("/", s.createSaving)
			r.Get("/summary", s.savingsSummary)
			r.Put("/{id}", s.updateSaving)
			r.Delete("/{id}", s.deleteSaving)
		})
		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", s.listSettlements)
			r.Post("/", s.submitSettlement)
			r.Get("/{id}/proof", s.proof)
			r.Post("/{id}/approve", s.moderateSettlement(core.SettlementApproved))
			r.Post("/{id}/reject", s.moderateSettlement(core.SettlementRejected))
		})
		r.Get("/dividend", s.dividend)
		r.Get("/users", s.users)
		r.Get("/users/summary", s.usersSummary)
	})
	return r
}

// Fail makes "<METHOD> <path>" answer with status and body until cleared
// with status 0.
func (s *Server) Fail(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.failures, key)
		return
	}
	s.failures[key] = failure{status: status, body: body}
}

// Calls returns how many requests matched key. A key without "?" counts
// every query for "<METHOD> <path>"; with "?" it must match the encoded
// query exactly.
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// Uploads returns the recorded settlement submissions.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSuffix(r.URL.Path, "/")
		if path == "" {
			path = "/"
		}
		key := r.Method + " " + path

		s.mu.Lock()
		s.calls[key]++
		if r.URL.RawQuery != "" {
			s.calls[key+"?"+r.URL.Query().Encode()]++
		}
		before := s.Before
		f, failing := s.failures[key]
		s.mu.Unlock()

		if before != nil {
			before(r)
		}
		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		want := "Bearer " + s.Token
		s.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func validation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"message": msg,
		"errors":  map[string][]string{field: {msg}},
	})
}

func (s *Server) newID() core.ID {
	s.nextID++
	return core.ID(strconv.Itoa(s.nextID))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.Password != s.Password || !strings.EqualFold(in.Email, s.Me.Email) {
		validation(w, "email", "Email atau password salah")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": s.Token, "user": s.Me})
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.Me)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name                 string `json:"name"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	fields := map[string][]string{}
	if in.Name == "" {
		fields["name"] = []string{"Nama wajib diisi."}
	}
	if !strings.Contains(in.Email, "@") {
		fields["email"] = []string{"Email tidak valid."}
	}
	if len(in.Password) < 8 {
		fields["password"] = []string{"Password minimal 8 karakter."}
	} else if in.Password != in.PasswordConfirmation {
		fields["password"] = []string{"Konfirmasi password tidak cocok."}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "The given data was invalid.", "errors": fields})
		return
	}
	s.mu.Lock()
	u := core.User{ID: s.newID(), Name: in.Name, Email: in.Email, Role: core.RoleAdmin}
	s.Users = append(s.Users, u)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, u)
}

// page slices rows for the requested page and writes it in the configured shape.
func page[T any](s *Server, w http.ResponseWriter, r *http.Request, rows []T) {
	p, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if p < 1 {
		p = 1
	}
	per := s.PerPage
	if per < 1 {
		per = 10
	}
	total := len(rows)
	last := (total + per - 1) / per
	if last < 1 {
		last = 1
	}
	start := (p - 1) * per
	if start > total {
		start = total
	}
	end := min(start+per, total)
	data := rows[start:end]
	if data == nil {
		data = []T{}
	}
	from, to := 0, 0
	if len(data) > 0 {
		from, to = start+1, end
	}

	link := func(n int) any {
		if n < 1 || n > last {
			return nil
		}
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(n))
		return s.URL + r.URL.Path + "?" + q.Encode()
	}

	if s.Wrapped {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": data,
			"meta": map[string]any{"current_page": p, "last_page": last, "total": total, "from": from, "to": to},
			"links": map[string]any{"prev": link(p - 1), "next": link(p + 1)},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current_page":  p,
		"last_page":     last,
		"total":         total,
		"from":          from,
		"to":            to,
		"prev_page_url": link(p - 1),
		"next_page_url": link(p + 1),
		"data":          data,
	})
}

func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := r.URL.Query()
	var rows []core.Loan
	for _, l := range s.Loans {
		if !s.IgnoreFilters {
			if v := q.Get("status"); v != "" && string(l.Status) != v {
				continue
			}
			if v := q.Get("month"); v != "" && core.MonthKey(l.SubmittedAt) != v {
				continue
			}
			if v := q.Get("user_id"); v != "" && l.UserID.String() != v {
				continue
			}
		}
		rows = append(rows, l)
	}
	page(s, w, r, rows)
}

func (s *Server) applyLoan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount      string `json:"amount"`
		SubmittedAt string `json:"submitted_at"`
		Phone       string `json:"phone"`
		Address     string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil || !amount.IsPositive() {
		validation(w, "amount", "Jumlah pinjaman tidak valid.")
		return
	}
	if in.Phone == "" {
		validation(w, "phone", "Nomor telepon wajib diisi.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	me := s.Me
	l := core.Loan{
		ID:              s.newID(),
		UserID:          me.ID,
		User:            &me,
		Amount:          core.MoneyFromDecimal(amount),
		SubmittedAt:     in.SubmittedAt,
		PhoneSnapshot:   in.Phone,
		AddressSnapshot: in.Address,
		Status:          core.LoanApplied,
	}
	s.Loans = append(s.Loans, l)
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) moderateLoan(status core.LoanStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := core.ID(chi.URLParam(r, "id"))
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.Loans {
			if s.Loans[i].ID != id {
				continue
			}
			if s.Loans[i].Status != core.LoanApplied {
				writeJSON(w, http.StatusConflict, map[string]string{"message": "Pinjaman sudah diproses."})
				return
			}
			s.Loans[i].Status = status
			writeJSON(w, http.StatusOK, s.Loans[i])
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Pinjaman tidak ditemukan."})
	}
}

func (s *Server) listSavings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := r.URL.Query()
	var rows []core.Saving
	for _, sv := range s.Savings {
		if !s.IgnoreFilters {
			if v := q.Get("type"); v != "" && string(sv.Type) != v {
				continue
			}
			if v := q.Get("month"); v != "" && core.MonthKey(sv.Month) != v {
				continue
			}
			if v := q.Get("user_id"); v != "" && sv.UserID.String() != v {
				continue
			}
		}
		rows = append(rows, sv)
	}
	page(s, w, r, rows)
}

func (s *Server) createSaving(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID core.ID         `json:"user_id"`
		Type   core.SavingType `json:"type"`
		Month  string          `json:"month"`
		Amount core.Money      `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	if !in.Type.Valid() {
		validation(w, "type", "Jenis simpanan tidak valid.")
		return
	}
	if !in.Amount.IsPositive() {
		validation(w, "amount", "Jumlah harus lebih dari 0.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DuplicateSavingType != "" && in.Type == s.DuplicateSavingType {
		validation(w, "month", "Simpanan "+string(in.Type)+" bulan ini sudah tercatat.")
		return
	}
	sv := core.Saving{ID: s.newID(), UserID: in.UserID, Type: in.Type, Month: in.Month, Amount: in.Amount}
	for _, u := range s.Users {
		if u.ID == in.UserID {
			u := u
			sv.User = &u
		}
	}
	s.Savings = append(s.Savings, sv)
	writeJSON(w, http.StatusCreated, sv)
}

func (s *Server) updateSaving(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount core.Money      `json:"amount"`
		Type   core.SavingType `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	id := core.ID(chi.URLParam(r, "id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Savings {
		if s.Savings[i].ID == id {
			s.Savings[i].Amount = in.Amount
			if in.Type != "" {
				s.Savings[i].Type = in.Type
			}
			writeJSON(w, http.StatusOK, s.Savings[i])
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Simpanan tidak ditemukan."})
}

func (s *Server) deleteSaving(w http.ResponseWriter, r *http.Request) {
	id := core.ID(chi.URLParam(r, "id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Savings {
		if s.Savings[i].ID == id {
			s.Savings = append(s.Savings[:i], s.Savings[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Simpanan tidak ditemukan."})
}

func (s *Server) savingsSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	year := r.URL.Query().Get("year")
	user := r.URL.Query().Get("user_id")
	if user == "" {
		user = s.Me.ID.String()
	}
	wajib, pokok := decimal.Zero, decimal.Zero
	for _, sv := range s.Savings {
		if sv.UserID.String() != user {
			continue
		}
		if y, ok := core.YearOf(sv.Month); !ok || y != year {
			continue
		}
		switch sv.Type {
		case core.SavingWajib:
			wajib = wajib.Add(sv.Amount.Decimal)
		case core.SavingPokok:
			pokok = pokok.Add(sv.Amount.Decimal)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_wajib": wajib, "total_pokok": pokok})
}

func (s *Server) listSettlements(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := r.URL.Query()
	var rows []core.Settlement
	for _, st := range s.Settlements {
		if !s.IgnoreFilters {
			if v := q.Get("status"); v != "" && string(st.Status) != v {
				continue
			}
			if v := q.Get("month"); v != "" && core.MonthKey(st.PaidAt) != v {
				continue
			}
		}
		rows = append(rows, st)
	}
	page(s, w, r, rows)
}

func (s *Server) submitSettlement(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid multipart body"})
		return
	}
	loanID := r.FormValue("loan_id")
	if loanID == "" {
		validation(w, "loan_id", "Pinjaman wajib dipilih.")
		return
	}
	file, header, err := r.FormFile("proof")
	if err != nil {
		validation(w, "proof", "Bukti pembayaran wajib diunggah.")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "cannot read proof"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ct := header.Header.Get("Content-Type")
	s.uploads = append(s.uploads, Upload{
		LoanID:      loanID,
		Amount:      r.FormValue("amount"),
		Filename:    header.Filename,
		ContentType: ct,
		Size:        len(data),
	})
	id := s.newID()
	st := core.Settlement{ID: id, LoanID: core.ID(loanID), Status: core.SettlementSubmitted, ProofPath: "proofs/" + id.String()}
	if amt, err := decimal.NewFromString(r.FormValue("amount")); err == nil {
		st.Amount = core.MoneyFromDecimal(amt)
	}
	s.Settlements = append(s.Settlements, st)
	s.Proofs[id] = Proof{Data: data, ContentType: http.DetectContentType(data)}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) proof(w http.ResponseWriter, r *http.Request) {
	id := core.ID(chi.URLParam(r, "id"))
	s.mu.Lock()
	p, ok := s.Proofs[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Bukti tidak ditemukan."})
		return
	}
	if p.ContentType != "" {
		w.Header().Set("Content-Type", p.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Data)
}

func (s *Server) moderateSettlement(status core.SettlementStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := core.ID(chi.URLParam(r, "id"))
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.Settlements {
			if s.Settlements[i].ID != id {
				continue
			}
			if s.Settlements[i].Status != core.SettlementSubmitted {
				writeJSON(w, http.StatusConflict, map[string]string{"message": "Pelunasan sudah diproses."})
				return
			}
			s.Settlements[i].Status = status
			writeJSON(w, http.StatusOK, s.Settlements[i])
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Pelunasan tidak ditemukan."})
	}
}

func (s *Server) dividend(w http.ResponseWriter, r *http.Request) {
	year := r.URL.Query().Get("year")
	key := year
	if u := r.URL.Query().Get("user_id"); u != "" {
		key = u + "-" + year
	}
	s.mu.Lock()
	amount := s.Dividends[key]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"dividend": amount})
}

func (s *Server) users(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role := core.Role(r.URL.Query().Get("role"))
	out := []core.User{}
	for _, u := range s.Users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) usersSummary(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum core.UsersSummary
	for _, u := range s.Users {
		switch u.Role {
		case core.RoleAdmin:
			sum.Roles.Admin++
		case core.RoleKaryawan:
			sum.Roles.Karyawan++
		}
	}
	savings, loans := decimal.Zero, decimal.Zero
	for _, sv := range s.Savings {
		savings = savings.Add(sv.Amount.Decimal)
	}
	for _, l := range s.Loans {
		loans = loans.Add(l.Amount.Decimal)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roles":         sum.Roles,
		"total_savings": savings,
		"total_loans":   loans,
	})
}

// SeedLoans adds n loans for user 42, numbered from 1, all in month with
// the given status.
func (s *Server) SeedLoans(n int, month string, status core.LoanStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := core.User{ID: "42", Name: "Budi Santoso"}
	for i := 1; i <= n; i++ {
		uu := u
		s.Loans = append(s.Loans, core.Loan{
			ID:              core.ID(strconv.Itoa(len(s.Loans) + 1)),
			UserID:          u.ID,
			User:            &uu,
			Amount:          core.NewMoney(int64(i) * 1_000_000),
			SubmittedAt:     fmt.Sprintf("%s-%02d 09:00:00", month, (i-1)%28+1),
			PhoneSnapshot:   "0812000" + strconv.Itoa(i),
			AddressSnapshot: "Jl. Merdeka " + strconv.Itoa(i),
			Status:          status,
		})
	}
}
