package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelsaur/storagegate/pkg/gate"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"gopkg.in/yaml.v3"
)

// FileName is the optional configuration file looked up in the project root.
const FileName = "storagegate.yaml"

// Config represents the optional storagegate.yaml configuration.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Gate    GateConfig    `yaml:"gate"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// AppConfig contains application metadata.
type AppConfig struct {
	Name string `yaml:"name,omitempty"`
	ID   string `yaml:"id,omitempty"`
}

// GateConfig overrides the storage request issued at start.
type GateConfig struct {
	Permission    string `yaml:"permission,omitempty"`
	Justification string `yaml:"justification,omitempty"`
	RequestCode   int    `yaml:"request_code,omitempty"`
	RuntimeSDK    int    `yaml:"runtime_sdk,omitempty"`
	AckLabel      string `yaml:"ack_label,omitempty"`
}

// StorageConfig locates design and preference storage.
type StorageConfig struct {
	ExternalDir string `yaml:"external_dir,omitempty"`
	InternalDir string `yaml:"internal_dir,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Resolved contains resolved configuration values.
type Resolved struct {
	Root        string
	ModulePath  string
	AppName     string
	AppID       string
	Request     gate.Request
	RuntimeSDK  int
	AckLabel    string
	ExternalDir string
	InternalDir string
	LogLevel    slog.Level
}

// LoadOptional reads storagegate.yaml if present.
func LoadOptional(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}

	return &cfg, nil
}

// Resolve loads storagegate.yaml (if present) and resolves defaults.
func Resolve(dir string) (*Resolved, error) {
	modPath, err := modulePath(dir)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadOptional(dir)
	if err != nil {
		return nil, err
	}

	appName := strings.TrimSpace(cfg.App.Name)
	if appName == "" {
		appName = defaultAppName(modPath, dir)
	}

	appID := strings.TrimSpace(cfg.App.ID)
	if appID == "" {
		appID = defaultAppID(modPath, appName)
	}
	if err := validateAppID(appID); err != nil {
		return nil, err
	}

	req := gate.WriteStorage
	if p := strings.TrimSpace(cfg.Gate.Permission); p != "" {
		req.Permission = gate.Permission(p)
	}
	if j := strings.TrimSpace(cfg.Gate.Justification); j != "" {
		req.Justification = j
	}
	if cfg.Gate.RequestCode < 0 {
		return nil, fmt.Errorf("gate.request_code must not be negative (got %d)", cfg.Gate.RequestCode)
	}
	if cfg.Gate.RequestCode > 0 {
		req.Code = gate.RequestCode(cfg.Gate.RequestCode)
	}

	runtimeSDK := cfg.Gate.RuntimeSDK
	if runtimeSDK == 0 {
		runtimeSDK = gate.RuntimePermissionsSDK
	}

	ackLabel := strings.TrimSpace(cfg.Gate.AckLabel)
	if ackLabel == "" {
		ackLabel = "OK"
	}

	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	externalDir := cfg.Storage.ExternalDir
	if externalDir == "" {
		externalDir = filepath.Join(dir, "designs")
	}
	internalDir := cfg.Storage.InternalDir
	if internalDir == "" {
		internalDir = filepath.Join(dir, ".storagegate")
	}

	return &Resolved{
		Root:        dir,
		ModulePath:  modPath,
		AppName:     appName,
		AppID:       appID,
		Request:     req,
		RuntimeSDK:  runtimeSDK,
		AckLabel:    ackLabel,
		ExternalDir: externalDir,
		InternalDir: internalDir,
		LogLevel:    level,
	}, nil
}

// FindProjectRoot walks up from the current directory to find go.mod or
// storagegate.yaml. It falls back to the current directory.
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for {
		for _, marker := range []string{"go.mod", FileName} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd, nil
		}
		dir = parent
	}
}

// modulePath returns the module path from go.mod, or "" if there is none.
func modulePath(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", fmt.Errorf("could not determine module path from go.mod")
	}
	return path, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func defaultAppName(modulePath, dir string) string {
	base := filepath.Base(dir)
	if modName, _, ok := module.SplitPathVersion(modulePath); ok && modName != "" {
		parts := strings.Split(modName, "/")
		base = parts[len(parts)-1]
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "storagegate_app"
	}
	return base
}

// defaultAppID reverses the module host and appends the path, so
// github.com/modelsaur/storagegate becomes com.github.modelsaur.storagegate.
func defaultAppID(modulePath, appName string) string {
	parts := strings.Split(modulePath, "/")
	if len(parts) < 2 || !strings.Contains(parts[0], ".") {
		return fmt.Sprintf("com.example.%s", sanitizeSegment(appName))
	}

	host := strings.Split(parts[0], ".")
	for i, j := 0, len(host)-1; i < j; i, j = i+1, j-1 {
		host[i], host[j] = host[j], host[i]
	}

	segments := host
	for _, p := range parts[1:] {
		if p != "" {
			segments = append(segments, p)
		}
	}
	for i, segment := range segments {
		segments[i] = sanitizeSegment(segment)
	}
	return strings.Join(segments, ".")
}

// sanitizeSegment lowercases segment and keeps only characters valid in an
// Android package name segment.
func sanitizeSegment(segment string) string {
	var out []rune
	for _, r := range strings.TrimSpace(segment) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		}
	}
	for len(out) > 0 && out[0] == '_' {
		out = out[1:]
	}
	if len(out) == 0 {
		return "app"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = append([]rune{'a'}, out...)
	}
	return string(out)
}

func validateAppID(appID string) error {
	if !strings.Contains(appID, ".") {
		return fmt.Errorf("app.id must contain at least one '.' (got %q)", appID)
	}
	for _, segment := range strings.Split(appID, ".") {
		if segment == "" {
			return fmt.Errorf("app.id contains an empty segment (%q)", appID)
		}
		if segment[0] >= '0' && segment[0] <= '9' {
			return fmt.Errorf("app.id segments cannot start with a digit (%q)", appID)
		}
		if segment[0] == '_' {
			return fmt.Errorf("app.id segments cannot start with '_' (%q)", appID)
		}
		for _, r := range segment {
			if !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
				return fmt.Errorf("app.id contains invalid character %q in %q", r, appID)
			}
		}
	}
	return nil
}
