package core

import "time"

// RoleCounts is the number of registered users per role.
type RoleCounts struct {
	Admin    int `json:"admin"`
	Karyawan int `json:"karyawan"`
}

// UsersSummary is the admin dashboard overview.
type UsersSummary struct {
	Roles        RoleCounts `json:"roles"`
	TotalSavings Money      `json:"total_savings"`
	TotalLoans   Money      `json:"total_loans"`
}

// SavingsSummary holds yearly savings totals for one employee.
type SavingsSummary struct {
	TotalWajib Money `json:"total_wajib"`
	TotalPokok Money `json:"total_pokok"`
}

// Dividend is the yearly profit share ("bagi hasil") of a member.
type Dividend struct {
	Dividend Money `json:"dividend"`
}

// MonthTotal is the savings total of one month.
type MonthTotal struct {
	Month string
	Total Money
}

// ExportRecord describes one completed export.
type ExportRecord struct {
	Resource  string
	Scope     string
	Sink      string
	Location  string
	Rows      int
	CreatedAt time.Time
}

// AuditEvent is a moderation action as recorded by the audit worker.
type AuditEvent struct {
	EventID    string
	Resource   string
	ResourceID string
	Action     string
	ActorID    string
	Detail     string
	OccurredAt time.Time
	RecordedAt time.Time
}
