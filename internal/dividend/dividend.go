// Package dividend resolves yearly dividend ("bagi hasil") amounts for the
// rows on screen and caches them for the rest of the session.
package dividend

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"koperasi/internal/cache"
	"koperasi/internal/core"
	applog "koperasi/internal/log"
)

// Pending is displayed for keys that have not been resolved yet.
const Pending = "…"

// Lookup fetches one dividend; an empty subject means the caller.
type Lookup interface {
	Dividend(ctx context.Context, year int, subject core.ID) (core.Money, error)
}

// Key identifies one cached dividend.
type Key struct {
	Subject core.ID
	Year    string
}

// String renders "42-2024", or "2024" when there is no subject.
func (k Key) String() string {
	if k.Subject == "" {
		return k.Year
	}
	return k.Subject.String() + "-" + k.Year
}

// Ref is the part of a row that selects a dividend.
type Ref struct {
	Subject core.ID
	Date    string
}

// KeyOf returns the key for r, or false when the date has no four digit
// year.
func KeyOf(r Ref) (Key, bool) {
	y, ok := core.YearOf(r.Date)
	if !ok {
		return Key{}, false
	}
	return Key{Subject: r.Subject, Year: y}, true
}

// Keys returns the distinct keys referenced by refs in first-seen order.
func Keys(refs []Ref) []Key {
	seen := make(map[Key]struct{}, len(refs))
	var out []Key
	for _, r := range refs {
		k, ok := KeyOf(r)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// SavingRefs maps savings rows to refs. perEmployee selects the admin view
// keyed by employee; otherwise the key is the year alone.
func SavingRefs(rows []core.Saving, perEmployee bool) []Ref {
	out := make([]Ref, 0, len(rows))
	for _, s := range rows {
		r := Ref{Date: s.Month}
		if perEmployee {
			r.Subject = s.UserID
			if r.Subject == "" && s.User != nil {
				r.Subject = s.User.ID
			}
		}
		out = append(out, r)
	}
	return out
}

// Enricher is safe for concurrent use. Entries are never replaced or
// evicted; a new Enricher starts a new session.
type Enricher struct {
	lookup  Lookup
	entries *cache.AppendOnly[core.Money]
	flight  singleflight.Group
	logger  *applog.Logger
}

func New(lookup Lookup, logger *applog.Logger) *Enricher {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Enricher{
		lookup:  lookup,
		entries: cache.NewAppendOnly[core.Money](),
		logger:  logger.WithComponent(applog.ComponentDividend),
	}
}

// Enrich resolves every key referenced by refs that is not cached yet, one
// request per key in parallel. A failed lookup resolves to zero and never
// aborts the others. It returns the number of keys that were missing.
func (e *Enricher) Enrich(ctx context.Context, refs []Ref) int {
	keys := Keys(refs)
	names := make([]string, len(keys))
	byName := make(map[string]Key, len(keys))
	for i, k := range keys {
		names[i] = k.String()
		byName[names[i]] = k
	}
	missing := e.entries.Missing(names)
	if len(missing) == 0 {
		return 0
	}

	start := time.Now()
	var g errgroup.Group
	for _, name := range missing {
		g.Go(func() error {
			e.resolve(ctx, byName[name])
			return nil
		})
	}
	_ = g.Wait()

	e.logger.DebugContext(ctx, "Dividends resolved",
		applog.FieldOperation, applog.OpEnrich,
		"requested", len(missing),
		"cached", e.entries.Size(),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return len(missing)
}

// resolve fetches k once per session. Concurrent callers for the same key
// share one request; a key already stored is not fetched again.
func (e *Enricher) resolve(ctx context.Context, k Key) {
	name := k.String()
	_, _, _ = e.flight.Do(name, func() (any, error) {
		if _, ok := e.entries.Get(name); ok {
			return nil, nil
		}
		year, err := strconv.Atoi(k.Year)
		if err != nil {
			return nil, nil
		}
		amount, err := e.lookup.Dividend(ctx, year, k.Subject)
		if err != nil {
			if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return nil, nil
			}
			e.logger.WarnContext(ctx, "Dividend lookup failed, using zero",
				applog.FieldCacheKey, name,
				applog.FieldError, err)
			amount = core.Money{}
		}
		e.entries.Add(name, amount)
		return nil, nil
	})
}

// Amount returns the cached dividend for k.
func (e *Enricher) Amount(k Key) (core.Money, bool) {
	return e.entries.Get(k.String())
}

// Display renders the cached amount or Pending.
func (e *Enricher) Display(k Key) string {
	if m, ok := e.Amount(k); ok {
		return m.FormatIDR()
	}
	return Pending
}

// DisplayRef renders the dividend column for a row. Rows without a valid
// year show an empty cell.
func (e *Enricher) DisplayRef(r Ref) string {
	k, ok := KeyOf(r)
	if !ok {
		return ""
	}
	return e.Display(k)
}

// Size returns the number of cached keys.
func (e *Enricher) Size() int {
	return e.entries.Size()
}
