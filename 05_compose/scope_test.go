package compose

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestScopeReleasesInReverseOrder(t *testing.T) {
	s := NewScope(zap.NewNop())
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		s.AcquireFunc(name, func() error {
			order = append(order, name)
			return nil
		})
	}
	s.Close()

	if want := []string{"c", "b", "a"}; !reflect.DeepEqual(order, want) {
		t.Errorf("release order = %v, want %v", order, want)
	}
}

func TestScopeReleasesExactlyOnce(t *testing.T) {
	s := NewScope(zap.NewNop())
	calls := 0
	h := s.AcquireFunc("x", func() error { calls++; return nil })

	h.Release()
	h.Release()
	s.Close()
	s.Close()

	if calls != 1 {
		t.Errorf("close calls = %d, want 1", calls)
	}
	if s.Held() != 0 {
		t.Errorf("Held() = %d, want 0", s.Held())
	}
}

func TestScopeContinuesPastFailingHandle(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := NewScope(zap.New(core))

	released := 0
	s.AcquireFunc("first", func() error { released++; return nil })
	s.AcquireFunc("broken", func() error { return errors.New("boom") })
	s.AcquireFunc("last", func() error { released++; return nil })
	s.Close()

	if released != 2 {
		t.Errorf("released = %d, want 2", released)
	}
	if n := logs.FilterMessage("release failed").Len(); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}

func TestScopeAcquireAfterClose(t *testing.T) {
	s := NewScope(nil)
	s.Close()

	calls := 0
	s.AcquireFunc("late", func() error { calls++; return nil })
	if calls != 1 {
		t.Errorf("late handle closed %d times, want 1", calls)
	}
}

func TestScopeAcquireDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	s := NewScope(nil)
	s.AcquireDir(dir)
	s.Close()

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("work dir still present: %v", err)
	}
}
