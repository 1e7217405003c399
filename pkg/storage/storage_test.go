package storage

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gateerrors "github.com/modelsaur/storagegate/pkg/errors"
)

type fixedChecker bool

func (c fixedChecker) CanWrite() bool { return bool(c) }

func newTestStore(t *testing.T, canWrite bool) *Store {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(filepath.Join(root, "external", "designs"), filepath.Join(root, "internal"), fixedChecker(canWrite), logger)
}

func TestSaveDesignRefusedWithoutPermission(t *testing.T) {
	s := newTestStore(t, false)

	_, err := s.SaveDesign("ABCD1234.ply", strings.NewReader("ply"))
	if !errors.Is(err, ErrWriteNotGranted) {
		t.Fatalf("SaveDesign error = %v, want ErrWriteNotGranted", err)
	}
	if _, err := os.Stat(s.externalDir); !os.IsNotExist(err) {
		t.Error("refused save must not touch external storage")
	}
}

func TestSaveDesign(t *testing.T) {
	s := newTestStore(t, true)

	path, err := s.SaveDesign("ABCD1234.ply", strings.NewReader("ply v1"))
	if err != nil {
		t.Fatalf("SaveDesign error: %v", err)
	}
	if path != filepath.Join(s.externalDir, "ABCD1234.ply") {
		t.Errorf("path = %q", path)
	}

	if _, err := s.SaveDesign("ABCD1234.ply", strings.NewReader("ply v2")); err != nil {
		t.Fatalf("overwrite error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ply v2" {
		t.Errorf("contents = %q, want %q", data, "ply v2")
	}
}

func TestSaveDesignInvalidName(t *testing.T) {
	s := newTestStore(t, true)
	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		if _, err := s.SaveDesign(name, strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
			t.Errorf("SaveDesign(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestPreferencesNotGated(t *testing.T) {
	s := newTestStore(t, false)

	data, err := s.LoadPreferences()
	if err != nil || data != nil {
		t.Fatalf("LoadPreferences on empty dir = (%q, %v), want (nil, nil)", data, err)
	}
	if err := s.SavePreferences(strings.NewReader("tutorial=3")); err != nil {
		t.Fatalf("SavePreferences error: %v", err)
	}
	data, err = s.LoadPreferences()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "tutorial=3" {
		t.Errorf("preferences = %q, want %q", data, "tutorial=3")
	}
}

func TestDesignName(t *testing.T) {
	tests := []struct {
		unix int64
		want string
	}{
		{0, "AAAA1111"},
		{4, "AAAA1112"},
		{4 * 8, "AAAA1121"},
		{4 * 4096, "AAAB1111"},
	}
	for _, tt := range tests {
		if got := DesignName(time.Unix(tt.unix, 0)); got != tt.want {
			t.Errorf("DesignName(%d) = %q, want %q", tt.unix, got, tt.want)
		}
	}

	// Codes are stable within a four second tick.
	base := time.Unix(1_700_000_000, 0)
	if DesignName(base) != DesignName(base.Add(time.Second)) {
		t.Error("names within one tick should match")
	}
	if len(DesignName(time.Now())) != 8 {
		t.Error("name should be eight characters")
	}
}

type recordingHandler struct {
	errs []*gateerrors.GateError
}

func (h *recordingHandler) HandleError(err *gateerrors.GateError) { h.errs = append(h.errs, err) }
func (h *recordingHandler) HandlePanic(*gateerrors.PanicError) {}

func TestSaveFailuresAreReported(t *testing.T) {
	h := &recordingHandler{}
	gateerrors.SetHandler(h)
	t.Cleanup(func() { gateerrors.SetHandler(nil) })

	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(filepath.Join(blocker, "designs"), filepath.Join(blocker, "internal"), fixedChecker(true), logger)

	if _, err := s.SaveDesign("ABCD1234.ply", strings.NewReader("ply")); err == nil {
		t.Fatal("expected SaveDesign to fail under a regular file")
	}
	if err := s.SavePreferences(strings.NewReader("prefs")); err == nil {
		t.Fatal("expected SavePreferences to fail under a regular file")
	}

	wantOps := []string{"storage.SaveDesign", "storage.SavePreferences"}
	if len(h.errs) != len(wantOps) {
		t.Fatalf("reported errors = %d, want %d", len(h.errs), len(wantOps))
	}
	for i, op := range wantOps {
		if h.errs[i].Op != op || h.errs[i].Kind != gateerrors.KindStorage {
			t.Errorf("report %d = (%s, %s), want (%s, storage)", i, h.errs[i].Op, h.errs[i].Kind, op)
		}
	}

	// A refusal is a policy outcome, not a failure.
	denied := New(filepath.Join(root, "designs"), root, fixedChecker(false), logger)
	_, _ = denied.SaveDesign("ABCD1234.ply", strings.NewReader("ply"))
	if len(h.errs) != len(wantOps) {
		t.Errorf("refused save was reported: %v", h.errs[len(h.errs)-1])
	}
}
