package export

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"koperasi/internal/core"
	"koperasi/internal/listing"
)

// Mode selects how every page of a resource is fetched.
type Mode string

const (
	// ModeSequential requests page N+1 only after page N arrived.
	ModeSequential Mode = "sequential"
	// ModeParallel requests page 1 to learn last_page, then the remaining
	// pages concurrently.
	ModeParallel Mode = "parallel"
)

func (m Mode) Valid() bool {
	return m == ModeSequential || m == ModeParallel
}

// DefaultConcurrency bounds parallel page requests.
const DefaultConcurrency = 4

// CollectAll fetches pages 1..last_page with filter f and returns the
// items that still match f. Any failed page fails the whole collection.
func CollectAll[T any](ctx context.Context, fetch listing.Fetcher[T], match listing.Predicate[T], f core.Filter, mode Mode, concurrency int) ([]T, error) {
	var (
		items []T
		err   error
	)
	switch mode {
	case ModeParallel:
		items, err = collectParallel(ctx, fetch, f, concurrency)
	default:
		items, err = collectSequential(ctx, fetch, f)
	}
	if err != nil {
		return nil, err
	}
	if !f.Active() || match == nil {
		return items, nil
	}
	return listing.Apply(items, f, match), nil
}

func collectSequential[T any](ctx context.Context, fetch listing.Fetcher[T], f core.Filter) ([]T, error) {
	var all []T
	for p, last := 1, 1; p <= last; {
		page, err := fetch(ctx, f, p)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", p, err)
		}
		all = append(all, page.Items...)
		last = page.Meta.LastPage
		// never request the same page twice, even if the server echoes an
		// older current_page
		p = max(page.Meta.CurrentPage, p) + 1
	}
	return all, nil
}

func collectParallel[T any](ctx context.Context, fetch listing.Fetcher[T], f core.Filter, concurrency int) ([]T, error) {
	first, err := fetch(ctx, f, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch page 1: %w", err)
	}
	last := first.Meta.LastPage
	if last <= 1 {
		return first.Items, nil
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	rest := make([][]T, last-1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for p := 2; p <= last; p++ {
		g.Go(func() error {
			page, err := fetch(gctx, f, p)
			if err != nil {
				return fmt.Errorf("fetch page %d: %w", p, err)
			}
			rest[p-2] = page.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := first.Items
	for _, items := range rest {
		all = append(all, items...)
	}
	return all, nil
}
