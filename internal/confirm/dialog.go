// Package confirm guards state-changing actions behind an explicit
// confirmation step.
//
// A Dialog moves Closed -> Pending -> Submitting and then either back to
// Closed on success or to Pending with the server message on failure.
// Every successful action reloads the list it came from; no row is
// patched locally, deletions included.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"koperasi/internal/api"
	applog "koperasi/internal/log"
)

var (
	ErrNotOpen    = errors.New("no action awaiting confirmation")
	ErrSubmitting = errors.New("action already submitting")
)

// Action is the kind of mutation being confirmed.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
)

// Fallback returns the message shown when a failed action carries no
// usable server message.
func Fallback(a Action) string {
	switch a {
	case ActionEdit:
		return "Gagal mengubah data."
	case ActionDelete:
		return "Gagal menghapus."
	default:
		return "Gagal memperbarui status"
	}
}

type State int

const (
	Closed State = iota
	Pending
	Submitting
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Pending:
		return "confirm_pending"
	case Submitting:
		return "submitting"
	}
	return "unknown"
}

// Mutation performs action on row.
type Mutation[T any] func(ctx context.Context, row T, action Action) error

// Reloader re-runs the list load for the current page.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Snapshot is what the dialog presents. Row is the copy captured by Open.
type Snapshot[T any] struct {
	State  State
	Row    T
	Action Action
	Err    string
}

type Dialog[T any] struct {
	mutate Mutation[T]
	reload Reloader
	logger *applog.Logger

	mu     sync.Mutex
	state  State
	row    T
	action Action
	errMsg string
}

// New returns a closed dialog. reload may be nil.
func New[T any](mutate Mutation[T], reload Reloader, logger *applog.Logger) *Dialog[T] {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Dialog[T]{mutate: mutate, reload: reload, logger: logger.WithComponent(applog.ComponentConfirm)}
}

// Open captures row and action. It fails while a submission is running.
func (d *Dialog[T]) Open(row T, action Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Submitting {
		return ErrSubmitting
	}
	d.state = Pending
	d.row = row
	d.action = action
	d.errMsg = ""
	return nil
}

// Cancel closes a pending dialog.
func (d *Dialog[T]) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Submitting {
		return ErrSubmitting
	}
	d.closeLocked()
	return nil
}

func (d *Dialog[T]) closeLocked() {
	var zero T
	d.state = Closed
	d.row = zero
	d.action = ""
	d.errMsg = ""
}

// Submit runs the captured action once. On success the dialog closes and
// the list reloads; on failure it stays open with the error message.
func (d *Dialog[T]) Submit(ctx context.Context) error {
	d.mu.Lock()
	switch d.state {
	case Closed:
		d.mu.Unlock()
		return ErrNotOpen
	case Submitting:
		d.mu.Unlock()
		return ErrSubmitting
	}
	d.state = Submitting
	d.errMsg = ""
	row, action := d.row, d.action
	d.mu.Unlock()

	err := d.mutate(ctx, row, action)

	d.mu.Lock()
	if err != nil {
		d.state = Pending
		d.errMsg = api.UserMessage(err, Fallback(action))
		d.mu.Unlock()
		d.logger.WarnContext(ctx, "Action failed",
			applog.FieldAction, string(action),
			applog.FieldError, err)
		return fmt.Errorf("%s: %w", action, err)
	}
	d.closeLocked()
	d.mu.Unlock()

	d.logger.InfoContext(ctx, "Action confirmed", applog.FieldAction, string(action))
	if d.reload != nil {
		if err := d.reload.Reload(ctx); err != nil {
			d.logger.WarnContext(ctx, "Reload after action failed",
				applog.FieldAction, string(action),
				applog.FieldError, err)
		}
	}
	return nil
}

func (d *Dialog[T]) Snapshot() Snapshot[T] {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot[T]{State: d.state, Row: d.row, Action: d.action, Err: d.errMsg}
}
