// Package pagination normalizes the list responses of the koperasi API.
//
// The backend answers list endpoints in one of three shapes:
//
//	classic  {"current_page": 2, "last_page": 3, "total": 25, "data": [...], ...}
//	wrapped  {"data": [...], "meta": {...}, "links": {...}}
//	bare     [...]
//
// Detect resolves a body once into one of the variants and Normalize maps
// every variant onto the same Page descriptor. Callers never look at the
// raw shape.
package pagination

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// ErrUnrecognizedShape is returned for bodies that are neither an object
// nor an array.
var ErrUnrecognizedShape = errors.New("unrecognized page shape")

// Shape tags the variant a body was detected as.
type Shape int

const (
	ShapeClassic Shape = iota + 1
	ShapeWrapped
	ShapeBare
)

func (s Shape) String() string {
	switch s {
	case ShapeClassic:
		return "classic"
	case ShapeWrapped:
		return "wrapped"
	case ShapeBare:
		return "bare"
	default:
		return "unknown"
	}
}

// Meta is the normalized pagination metadata.
type Meta struct {
	CurrentPage int     `json:"current_page"`
	LastPage    int     `json:"last_page"`
	Total       int     `json:"total"`
	From        int     `json:"from"`
	To          int     `json:"to"`
	PrevPageURL *string `json:"prev_page_url"`
	NextPageURL *string `json:"next_page_url"`
}

// Page is the normalized result of a list fetch.
type Page[T any] struct {
	Items []T
	Meta  Meta
}

// HasNext reports whether a later page exists.
func (m Meta) HasNext() bool { return m.CurrentPage < m.LastPage }

// HasPrev reports whether an earlier page exists.
func (m Meta) HasPrev() bool { return m.CurrentPage > 1 }

// Empty returns the descriptor of an empty first page.
func Empty[T any]() Page[T] {
	return Page[T]{Items: []T{}, Meta: Meta{CurrentPage: 1, LastPage: 1}}
}

// number accepts JSON numbers and numeric strings; null leaves it unset.
type number struct {
	v   int
	set bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		b = []byte(s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("decode page number %s: %w", b, err)
	}
	n.v, n.set = int(f), true
	return nil
}

func (n number) or(def int) int {
	if n.set {
		return n.v
	}
	return def
}

// classicPage is the flat paginator payload.
type classicPage struct {
	CurrentPage number          `json:"current_page"`
	LastPage    number          `json:"last_page"`
	Total       number          `json:"total"`
	From        number          `json:"from"`
	To          number          `json:"to"`
	PrevPageURL *string         `json:"prev_page_url"`
	NextPageURL *string         `json:"next_page_url"`
	Data        json.RawMessage `json:"data"`
}

// wrappedPage is the resource collection payload.
type wrappedPage struct {
	Data json.RawMessage `json:"data"`
	Meta *struct {
		CurrentPage number `json:"current_page"`
		LastPage    number `json:"last_page"`
		Total       number `json:"total"`
		From        number `json:"from"`
		To          number `json:"to"`
	} `json:"meta"`
	Links *struct {
		Prev *string `json:"prev"`
		Next *string `json:"next"`
	} `json:"links"`
}

// Raw is a body resolved into exactly one variant.
type Raw struct {
	Shape   Shape
	classic *classicPage
	wrapped *wrappedPage
	bare    json.RawMessage
}

// Detect resolves body into its variant. A top-level object with a non-null
// current_page is classic, any other object is wrapped, an array is bare.
// An empty body or null is treated as an empty wrapped page.
func Detect(body []byte) (Raw, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return Raw{Shape: ShapeWrapped, wrapped: &wrappedPage{}}, nil
	}

	switch trimmed[0] {
	case '[':
		return Raw{Shape: ShapeBare, bare: json.RawMessage(trimmed)}, nil
	case '{':
		var probe struct {
			CurrentPage json.RawMessage `json:"current_page"`
		}
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return Raw{}, fmt.Errorf("decode page: %w", err)
		}
		if len(probe.CurrentPage) > 0 && string(probe.CurrentPage) != "null" {
			var c classicPage
			if err := json.Unmarshal(trimmed, &c); err != nil {
				return Raw{}, fmt.Errorf("decode classic page: %w", err)
			}
			return Raw{Shape: ShapeClassic, classic: &c}, nil
		}
		var w wrappedPage
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return Raw{}, fmt.Errorf("decode wrapped page: %w", err)
		}
		return Raw{Shape: ShapeWrapped, wrapped: &w}, nil
	default:
		return Raw{}, ErrUnrecognizedShape
	}
}

// Normalize converts a raw list body into a Page. requestedPage is used when
// the server omits the current page.
func Normalize[T any](body []byte, requestedPage int) (Page[T], error) {
	raw, err := Detect(body)
	if err != nil {
		return Page[T]{}, err
	}
	return Resolve[T](raw, requestedPage)
}

// Resolve maps a detected variant onto the Page descriptor.
func Resolve[T any](raw Raw, requestedPage int) (Page[T], error) {
	if requestedPage < 1 {
		requestedPage = 1
	}

	var (
		items []T
		meta  Meta
		err   error
	)

	switch raw.Shape {
	case ShapeClassic:
		c := raw.classic
		if items, err = decodeItems[T](c.Data); err != nil {
			return Page[T]{}, err
		}
		n := len(items)
		meta = Meta{
			CurrentPage: c.CurrentPage.or(requestedPage),
			LastPage:    c.LastPage.or(1),
			Total:       c.Total.or(n),
			From:        c.From.or(1),
			To:          c.To.or(n),
			PrevPageURL: c.PrevPageURL,
			NextPageURL: c.NextPageURL,
		}
	case ShapeWrapped:
		w := raw.wrapped
		if items, err = decodeItems[T](w.Data); err != nil {
			return Page[T]{}, err
		}
		n := len(items)
		meta = Meta{CurrentPage: requestedPage, LastPage: 1, Total: n, From: 1, To: n}
		if m := w.Meta; m != nil {
			meta.CurrentPage = m.CurrentPage.or(requestedPage)
			meta.LastPage = m.LastPage.or(1)
			meta.Total = m.Total.or(n)
			meta.From = m.From.or(1)
			meta.To = m.To.or(n)
		}
		if l := w.Links; l != nil {
			meta.PrevPageURL = l.Prev
			meta.NextPageURL = l.Next
		}
	case ShapeBare:
		if items, err = decodeItems[T](raw.bare); err != nil {
			return Page[T]{}, err
		}
		n := len(items)
		meta = Meta{CurrentPage: 1, LastPage: 1, Total: n, From: 1, To: n}
	default:
		return Page[T]{}, ErrUnrecognizedShape
	}

	return Page[T]{Items: items, Meta: clamp(meta)}, nil
}

// clamp enforces 1 <= current_page <= last_page and total >= 0.
func clamp(m Meta) Meta {
	if m.CurrentPage < 1 {
		m.CurrentPage = 1
	}
	if m.LastPage < 1 {
		m.LastPage = 1
	}
	if m.CurrentPage > m.LastPage {
		m.LastPage = m.CurrentPage
	}
	if m.Total < 0 {
		m.Total = 0
	}
	if m.From < 0 {
		m.From = 0
	}
	if m.To < 0 {
		m.To = 0
	}
	return m
}

func decodeItems[T any](data json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []T{}, nil
	}
	if trimmed[0] != '[' {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode page items: %w", err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
