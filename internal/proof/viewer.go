// Package proof shows settlement payment proofs.
//
// A Viewer moves Idle -> Loading -> Displaying or Failed, and back to Idle
// on Close. It holds at most one transient handle: every Open releases
// the previous one first, and a completion that lost its race releases
// the handle it just acquired.
package proof

import (
	"context"
	"errors"
	"mime"
	"strings"
	"sync"

	"koperasi/internal/api"
	"koperasi/internal/core"
	"koperasi/internal/handle"
	applog "koperasi/internal/log"
)

// Fallback is shown when a failure carries no usable message.
const Fallback = "Gagal memuat bukti."

var (
	ErrSuperseded = errors.New("proof request superseded")
	ErrShutdown   = errors.New("proof viewer shut down")
	ErrNoPreview  = errors.New("no proof displayed")
)

type State int

const (
	Idle State = iota
	Loading
	Displaying
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Displaying:
		return "displaying"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Kind is derived from the declared content type.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
	KindOther Kind = "other"
)

// KindOf classifies a content type.
func KindOf(contentType string) Kind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case mt == "application/pdf":
		return KindPDF
	}
	return KindOther
}

// Fetcher downloads a proof.
type Fetcher interface {
	SettlementProof(ctx context.Context, id core.ID) (api.Attachment, error)
}

// Preview is the displayed attachment.
type Preview struct {
	Kind        Kind
	ContentType string
	Path        string
	URL         string
	Size        int
	// External is set for PDFs, which open in a separate viewer instead
	// of inline.
	External bool
}

// Snapshot is a consistent copy of the viewer state.
type Snapshot struct {
	State    State
	Selected *core.Settlement
	Preview  *Preview
	Err      string
}

type Viewer struct {
	fetch   Fetcher
	handles *handle.Registry
	logger  *applog.Logger

	mu       sync.Mutex
	state    State
	selected *core.Settlement
	current  *handle.Handle
	errMsg   string
	seq      uint64
	inflight context.CancelFunc
	shutdown bool
}

func NewViewer(fetch Fetcher, handles *handle.Registry, logger *applog.Logger) *Viewer {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Viewer{fetch: fetch, handles: handles, logger: logger.WithComponent(applog.ComponentProof)}
}

// Open shows the proof of s. Any held handle is released before the
// download starts and an in-flight download is abandoned.
func (v *Viewer) Open(ctx context.Context, s core.Settlement) (Snapshot, error) {
	v.mu.Lock()
	if v.shutdown {
		v.mu.Unlock()
		return Snapshot{}, ErrShutdown
	}
	v.resetLocked()
	v.seq++
	seq := v.seq
	sel := s
	v.selected = &sel
	v.state = Loading
	reqCtx, cancel := context.WithCancel(ctx)
	v.inflight = cancel
	v.mu.Unlock()
	defer cancel()

	att, err := v.fetch.SettlementProof(reqCtx, s.ID)

	var h *handle.Handle
	if err == nil {
		h, err = v.handles.Acquire(att.Data, att.ContentType)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.seq || v.shutdown {
		if h != nil {
			_ = h.Release()
		}
		v.logger.DebugContext(ctx, "Discarding stale proof completion", applog.FieldResourceID, s.ID.String())
		return v.snapshotLocked(), ErrSuperseded
	}
	v.inflight = nil

	if err != nil {
		v.state = Failed
		v.errMsg = api.UserMessage(err, Fallback)
		v.logger.WarnContext(ctx, "Proof preview failed",
			applog.FieldOperation, applog.OpPreview,
			applog.FieldResourceID, s.ID.String(),
			applog.FieldError, err)
		return v.snapshotLocked(), err
	}

	v.current = h
	v.state = Displaying
	v.logger.DebugContext(ctx, "Proof displayed",
		applog.FieldOperation, applog.OpPreview,
		applog.FieldResourceID, s.ID.String(),
		applog.FieldContentType, att.ContentType)
	return v.snapshotLocked(), nil
}

// Close releases the held handle, clears the selection and returns to
// Idle. A download still running is abandoned.
func (v *Viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	v.resetLocked()
}

// Shutdown closes the viewer for good.
func (v *Viewer) Shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	v.resetLocked()
	v.shutdown = true
}

func (v *Viewer) resetLocked() {
	if v.inflight != nil {
		v.inflight()
		v.inflight = nil
	}
	if v.current != nil {
		if err := v.current.Release(); err != nil {
			v.logger.Warn("Failed to release proof preview", applog.FieldError, err)
		}
		v.current = nil
	}
	v.state = Idle
	v.selected = nil
	v.errMsg = ""
}

func (v *Viewer) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *Viewer) snapshotLocked() Snapshot {
	snap := Snapshot{State: v.state, Err: v.errMsg}
	if v.selected != nil {
		sel := *v.selected
		snap.Selected = &sel
	}
	if v.current != nil {
		kind := KindOf(v.current.ContentType())
		snap.Preview = &Preview{
			Kind:        kind,
			ContentType: v.current.ContentType(),
			Path:        v.current.Path(),
			URL:         v.current.URL(),
			Size:        v.current.Size(),
			External:    kind == KindPDF,
		}
	}
	return snap
}

// SaveAs copies the displayed proof to dst.
func (v *Viewer) SaveAs(dst string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return ErrNoPreview
	}
	return v.current.SaveAs(dst)
}
