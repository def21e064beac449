package compose

import (
	"io"
	"os"

	"go.uber.org/zap"
)

// Scope owns every handle opened during one composition run and releases
// them in reverse acquisition order. It is not safe for concurrent use.
type Scope struct {
	logger  *zap.Logger
	handles []*Handle
	closed  bool
}

// Handle is one registered resource. Release may be called early; the
// underlying Close still runs exactly once.
type Handle struct {
	name     string
	closer   io.Closer
	scope    *Scope
	released bool
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func NewScope(logger *zap.Logger) *Scope {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scope{logger: logger}
}

// Acquire registers c. Acquiring on a closed scope closes c immediately.
func (s *Scope) Acquire(name string, c io.Closer) *Handle {
	h := &Handle{name: name, closer: c, scope: s}
	if s.closed {
		h.Release()
		return h
	}
	s.handles = append(s.handles, h)
	return h
}

// AcquireFunc registers a release callback
func (s *Scope) AcquireFunc(name string, fn func() error) *Handle {
	return s.Acquire(name, closerFunc(fn))
}

// AcquireDir registers a directory to be removed with its contents
func (s *Scope) AcquireDir(path string) *Handle {
	return s.AcquireFunc("dir "+path, func() error { return os.RemoveAll(path) })
}

// Held reports how many handles have not been released yet
func (s *Scope) Held() int {
	n := 0
	for _, h := range s.handles {
		if !h.released {
			n++
		}
	}
	return n
}

// Close releases every held handle, newest first. Errors are logged only.
func (s *Scope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for i := len(s.handles) - 1; i >= 0; i-- {
		s.handles[i].Release()
	}
	s.handles = nil
}

func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	if err := h.closer.Close(); err != nil {
		h.scope.logger.Warn("release failed", zap.String("handle", h.name), zap.Error(err))
	}
}
