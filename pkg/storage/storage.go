// Package storage persists designs and preferences for the native layer.
//
// Designs go to shared external storage and need the write capability the
// permission gate publishes. Preferences live in app-internal storage, which
// needs no grant.
package storage

import (
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelsaur/storagegate/pkg/errors"
	"github.com/natefinch/atomic"
)

// ErrWriteNotGranted is returned when a design save is attempted without the
// storage-write permission.
var ErrWriteNotGranted = goerrors.New("storage: write access not granted")

// ErrInvalidName is returned for design names that are empty or would
// escape the designs directory.
var ErrInvalidName = goerrors.New("storage: invalid design name")

// PermissionNotice is the message shown to the user when a save is refused.
const PermissionNotice = "Unable to access filesystem.\n\n" +
	"Please grant storage permissions for the app to save your work."

// PreferencesFile is the name of the preferences file in the internal dir.
const PreferencesFile = "config"

// WriteChecker reports whether external writes are currently permitted.
// *gate.Capabilities satisfies it.
type WriteChecker interface {
	CanWrite() bool
}

// Store saves designs under its external directory and preferences under its
// internal directory.
type Store struct {
	externalDir string
	internalDir string
	caps        WriteChecker
	logger      *slog.Logger
}

// New creates a Store. A nil logger means slog.Default().
func New(externalDir, internalDir string, caps WriteChecker, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		externalDir: externalDir,
		internalDir: internalDir,
		caps:        caps,
		logger:      logger,
	}
}

// SaveDesign writes r to name under the external dir and returns the full
// path. The write is atomic: readers see either the old file or the new one.
func (s *Store) SaveDesign(name string, r io.Reader) (string, error) {
	if !s.caps.CanWrite() {
		s.logger.Warn("design save refused", "name", name)
		return "", ErrWriteNotGranted
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := os.MkdirAll(s.externalDir, 0o755); err != nil {
		return "", report("storage.SaveDesign", fmt.Errorf("create designs dir: %w", err))
	}

	path := filepath.Join(s.externalDir, name)
	if err := atomic.WriteFile(path, r); err != nil {
		return "", report("storage.SaveDesign", fmt.Errorf("save design %s: %w", name, err))
	}
	s.logger.Info("design saved", "path", path)
	return path, nil
}

// SavePreferences replaces the preferences file.
func (s *Store) SavePreferences(r io.Reader) error {
	if err := os.MkdirAll(s.internalDir, 0o770); err != nil {
		return report("storage.SavePreferences", fmt.Errorf("create preferences dir: %w", err))
	}
	path := filepath.Join(s.internalDir, PreferencesFile)
	if err := atomic.WriteFile(path, r); err != nil {
		return report("storage.SavePreferences", fmt.Errorf("save preferences: %w", err))
	}
	return nil
}

// LoadPreferences returns the preferences file contents. A missing file
// yields nil and no error.
func (s *Store) LoadPreferences() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.internalDir, PreferencesFile))
	if goerrors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, report("storage.LoadPreferences", fmt.Errorf("load preferences: %w", err))
	}
	return data, nil
}

// DesignName returns an eight character code for t: four letters then four
// digits, changing every four seconds.
func DesignName(t time.Time) string {
	const letters = "ABCDEFGHIJKLMNOP"
	const digits = "12345678"

	n := uint32(t.Unix()) >> 2
	var code [8]byte
	for i := 7; i >= 4; i-- {
		code[i] = digits[n&0b111]
		n >>= 3
	}
	for i := 3; i >= 0; i-- {
		code[i] = letters[n&0b1111]
		n >>= 4
	}
	return string(code[:])
}

// report sends an I/O failure to the global error handler and returns it.
func report(op string, err error) error {
	errors.Report(&errors.GateError{
		Op:   op,
		Kind: errors.KindStorage,
		Err:  err,
	})
	return err
}
