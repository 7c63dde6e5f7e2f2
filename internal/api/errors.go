package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnauthenticated is returned when there is no session or the server
	// rejected the token. Callers route the user to sign-in.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTransport wraps network failures (no response from the server).
	ErrTransport = errors.New("transport failure")
)

// Kind classifies server-reported failures.
type Kind int

const (
	KindServer Kind = iota
	KindValidation
)

// FieldError holds the messages the server reported for one input field.
type FieldError struct {
	Field    string
	Messages []string
}

// Error is a non-2xx response. The body is either {"message": "..."} or
// {"message": "...", "errors": {"field": ["msg", ...]}}; some endpoints send
// "errors" as a plain list of strings.
type Error struct {
	StatusCode int
	Message    string
	Fields     []FieldError
	List       []string
}

func (e *Error) Error() string {
	if msg := e.firstField(); msg != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
	}
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrUnauthenticated) match 401 responses.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthenticated && e.StatusCode == http.StatusUnauthorized
}

// Kind reports whether the server rejected the input or failed otherwise.
func (e *Error) Kind() Kind {
	if len(e.Fields) > 0 || len(e.List) > 0 || e.StatusCode == http.StatusUnprocessableEntity {
		return KindValidation
	}
	return KindServer
}

func (e *Error) firstField() string {
	for _, f := range e.Fields {
		for _, m := range f.Messages {
			if m != "" {
				return m
			}
		}
	}
	return ""
}

// FieldMessages returns the first message per field.
func (e *Error) FieldMessages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if len(f.Messages) > 0 {
			out[f.Field] = f.Messages[0]
		}
	}
	return out
}

// UserMessage converts any failure into a user-facing string: the first
// field-level message, else the error list, else the server message, else
// the error text, else fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if msg := apiErr.firstField(); msg != "" {
			return msg
		}
		if len(apiErr.List) > 0 {
			return strings.Join(apiErr.List, ", ")
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	if errors.Is(err, ErrUnauthenticated) {
		return "Sesi berakhir, silakan masuk kembali."
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// parseError builds an Error from a failed response body.
func parseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status}
	var payload struct {
		Message string          `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return e
	}
	e.Message = payload.Message

	raw := bytes.TrimSpace(payload.Errors)
	if len(raw) == 0 {
		return e
	}
	switch raw[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			e.List = list
		}
	case '{':
		e.Fields = orderedFields(raw)
	}
	return e
}

// orderedFields decodes {"field": ["msg", ...]} keeping the server's field
// order, so "first field" means the same thing it does on the wire.
func orderedFields(raw []byte) []FieldError {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	var out []FieldError
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		field, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return out
		}
		var msgs []string
		if err := json.Unmarshal(value, &msgs); err != nil {
			var single string
			if err := json.Unmarshal(value, &single); err != nil {
				continue
			}
			msgs = []string{single}
		}
		out = append(out, FieldError{Field: field, Messages: msgs})
	}
	return out
}

// readError drains a failed response into an Error.
func readError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return parseError(resp.StatusCode, body)
}
