package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"koperasi/internal/cache"
	"koperasi/internal/core"
	applog "koperasi/internal/log"
)

type DashboardAPI interface {
	SavingsSummary(ctx context.Context, year int, userID core.ID) (core.SavingsSummary, error)
	Dividend(ctx context.Context, year int, userID core.ID) (core.Money, error)
	UsersSummary(ctx context.Context) (core.UsersSummary, error)
}

// EmployeeOverview is the employee home card. A failed dividend lookup
// leaves HasDividend false instead of failing the card.
type EmployeeOverview struct {
	Year        int
	Summary     core.SavingsSummary
	Dividend    core.Money
	HasDividend bool
}

// Total is wajib plus pokok.
func (o EmployeeOverview) Total() core.Money {
	return core.MoneyFromDecimal(o.Summary.TotalWajib.Add(o.Summary.TotalPokok.Decimal))
}

type Dashboard struct {
	api    DashboardAPI
	logger *applog.Logger
}

func NewDashboard(a DashboardAPI, logger *applog.Logger) *Dashboard {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Dashboard{api: a, logger: logger}
}

// Employee loads the summary and the dividend of userID for year
// concurrently. An empty userID means the signed-in employee.
func (d *Dashboard) Employee(ctx context.Context, year int, userID core.ID) (EmployeeOverview, error) {
	out := EmployeeOverview{Year: year}
	var g errgroup.Group
	g.Go(func() error {
		s, err := d.api.SavingsSummary(ctx, year, userID)
		if err != nil {
			return fmt.Errorf("savings summary %d: %w", year, err)
		}
		out.Summary = s
		return nil
	})
	g.Go(func() error {
		div, err := d.api.Dividend(ctx, year, userID)
		if err != nil {
			d.logger.WarnContext(ctx, "Dividend unavailable",
				applog.FieldYear, year,
				applog.FieldError, err)
			return nil
		}
		out.Dividend = div
		out.HasDividend = true
		return nil
	})
	if err := g.Wait(); err != nil {
		return EmployeeOverview{}, err
	}
	return out, nil
}

func (d *Dashboard) Admin(ctx context.Context) (core.UsersSummary, error) {
	s, err := d.api.UsersSummary(ctx)
	if err != nil {
		return core.UsersSummary{}, fmt.Errorf("users summary: %w", err)
	}
	return s, nil
}

type UsersAPI interface {
	Users(ctx context.Context, role core.Role) ([]core.User, error)
}

const directoryKey = "users:karyawan"

// Directory serves the employee pick list from a TTL cache. Concurrent
// misses share one request.
type Directory struct {
	api    UsersAPI
	cache  *cache.LRUCache[[]core.User]
	group  singleflight.Group
	logger *applog.Logger
}

func NewDirectory(a UsersAPI, c *cache.LRUCache[[]core.User], logger *applog.Logger) *Directory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Directory{api: a, cache: c, logger: logger.WithComponent(applog.ComponentCache)}
}

// Employees returns the users with role karyawan.
func (d *Directory) Employees(ctx context.Context) ([]core.User, error) {
	if users, ok := d.cache.Get(directoryKey); ok {
		d.logger.DebugContext(ctx, "Cache hit", applog.FieldCacheKey, directoryKey)
		return users, nil
	}
	v, err, _ := d.group.Do(directoryKey, func() (any, error) {
		users, err := d.api.Users(ctx, core.RoleKaryawan)
		if err != nil {
			return nil, err
		}
		d.cache.Set(directoryKey, users)
		return users, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return v.([]core.User), nil
}

// Invalidate drops the cached list.
func (d *Directory) Invalidate() {
	d.cache.Delete(directoryKey)
}
