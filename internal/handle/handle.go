// Package handle manages transient on-disk copies of downloaded or
// generated content. Every Acquire must be paired with exactly one
// effective Release; Registry.Live reports the handles still held.
package handle

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"

	applog "koperasi/internal/log"
)

// ErrReleased is returned when a released handle is used.
var ErrReleased = errors.New("handle already released")

// Registry creates handles in one directory and tracks the live ones.
type Registry struct {
	dir    string
	logger *applog.Logger

	mu   sync.Mutex
	live map[*Handle]struct{}
}

// NewRegistry creates handles under dir, or the system temp directory when
// dir is empty.
func NewRegistry(dir string, logger *applog.Logger) *Registry {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Registry{dir: dir, logger: logger, live: map[*Handle]struct{}{}}
}

// Handle is one transient file.
type Handle struct {
	reg         *Registry
	path        string
	contentType string
	size        int

	once     sync.Once
	mu       sync.Mutex
	released bool
}

// Acquire writes data to a new transient file.
func (r *Registry) Acquire(data []byte, contentType string) (*Handle, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create handle dir: %w", err)
	}
	f, err := os.CreateTemp(r.dir, "koperasi-*"+extensionFor(contentType))
	if err != nil {
		return nil, fmt.Errorf("create handle: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write handle: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close handle: %w", err)
	}

	h := &Handle{reg: r, path: f.Name(), contentType: contentType, size: len(data)}
	r.mu.Lock()
	r.live[h] = struct{}{}
	r.mu.Unlock()
	return h, nil
}

func extensionFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mt {
	case "application/pdf":
		return ".pdf"
	case "text/csv":
		return ".csv"
	case "image/jpeg":
		return ".jpg"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	}
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// Live returns the number of acquired handles not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// ReleaseAll releases every live handle.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.live))
	for h := range r.live {
		handles = append(handles, h)
	}
	r.mu.Unlock()
	for _, h := range handles {
		_ = h.Release()
	}
}

func (h *Handle) Path() string        { return h.path }
func (h *Handle) ContentType() string { return h.contentType }
func (h *Handle) Size() int           { return h.size }

// URL returns a file:// URL for opening the content in another program.
func (h *Handle) URL() string {
	abs, err := filepath.Abs(h.path)
	if err != nil {
		abs = h.path
	}
	return "file://" + filepath.ToSlash(abs)
}

// Released reports whether Release has run.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release removes the file. Only the first call has an effect.
func (h *Handle) Release() error {
	var err error
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		h.mu.Unlock()

		h.reg.mu.Lock()
		delete(h.reg.live, h)
		h.reg.mu.Unlock()

		if rmErr := os.Remove(h.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = fmt.Errorf("remove handle: %w", rmErr)
			h.reg.logger.Warn("Failed to remove transient file", applog.FieldLocation, h.path, applog.FieldError, rmErr)
		}
	})
	return err
}

// SaveAs copies the content to dst, creating parent directories.
func (h *Handle) SaveAs(dst string) error {
	if h.Released() {
		return ErrReleased
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	src, err := os.Open(h.path)
	if err != nil {
		return fmt.Errorf("open handle: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}

// Bytes reads the content back.
func (h *Handle) Bytes() ([]byte, error) {
	if h.Released() {
		return nil, ErrReleased
	}
	return os.ReadFile(h.path)
}
