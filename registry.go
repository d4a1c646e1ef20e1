package scanner

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

const TextCodeScannerNotFound = "SCAN_SCANNER_NOT_FOUND"

// Operator is the operation surface of a mounted scanner.
type Operator interface {
	Name() string
	Config() Config
	Decode(ctx context.Context, token Token) (bool, error)
	ScanAgain(ctx context.Context) error
	ToggleFacing(ctx context.Context) (Facing, error)
	Refresh(ctx context.Context) error
	State(ctx context.Context) (Snapshot, error)
}

// Directory resolves scanners by name.
type Directory interface {
	Lookup(name string) (Operator, error)
}

// Registry keeps the scanners a host has mounted, keyed by name.
type Registry struct {
	mu       sync.RWMutex
	scanners map[string]*Scanner
}

func NewRegistry(scanners ...*Scanner) (*Registry, error) {
	r := &Registry{scanners: map[string]*Scanner{}}
	for _, s := range scanners {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds s. Names must be unique.
func (r *Registry) Register(s *Scanner) error {
	if s == nil {
		return goerrors.New("scanner is required", goerrors.CategoryValidation).
			WithCode(http.StatusBadRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scanners[s.Name()]; exists {
		return goerrors.New("scanner already registered", goerrors.CategoryConflict).
			WithCode(http.StatusConflict).
			WithMetadata(map[string]any{"scanner": s.Name()})
	}
	r.scanners[s.Name()] = s
	return nil
}

// Lookup implements Directory.
func (r *Registry) Lookup(name string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scanners[strings.TrimSpace(name)]
	if !ok {
		return nil, goerrors.New("scanner not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeScannerNotFound).
			WithCode(http.StatusNotFound).
			WithMetadata(map[string]any{"scanner": name})
	}
	return s, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MountAll mounts every registered scanner. Already mounted ones are skipped.
func (r *Registry) MountAll(ctx context.Context) error {
	for _, name := range r.Names() {
		r.mu.RLock()
		s := r.scanners[name]
		r.mu.RUnlock()

		if err := s.Mount(ctx); err != nil && !errors.Is(err, ErrScannerMounted) {
			return err
		}
	}
	return nil
}

// UnmountAll stops every registered scanner.
func (r *Registry) UnmountAll() {
	for _, name := range r.Names() {
		r.mu.RLock()
		s := r.scanners[name]
		r.mu.RUnlock()
		_ = s.Unmount()
	}
}

var _ Directory = (*Registry)(nil)
var _ Operator = (*Scanner)(nil)
