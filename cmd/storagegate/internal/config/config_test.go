package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelsaur/storagegate/pkg/gate"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func projectDir(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadOptionalMissing(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg == nil || cfg.App.Name != "" || cfg.Gate.RequestCode != 0 {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestLoadOptionalMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "gate: [unclosed\n")
	if _, err := LoadOptional(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolveDefaults(t *testing.T) {
	dir := projectDir(t, "designer")
	writeFile(t, dir, "go.mod", "module github.com/modelsaur/storagegate\n\ngo 1.24\n")

	cfg, err := Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.ModulePath != "github.com/modelsaur/storagegate" {
		t.Errorf("ModulePath = %q", cfg.ModulePath)
	}
	if cfg.AppName != "storagegate" {
		t.Errorf("AppName = %q, want storagegate", cfg.AppName)
	}
	if cfg.AppID != "com.github.modelsaur.storagegate" {
		t.Errorf("AppID = %q", cfg.AppID)
	}
	if cfg.Request != gate.WriteStorage {
		t.Errorf("Request = %+v, want %+v", cfg.Request, gate.WriteStorage)
	}
	if cfg.RuntimeSDK != gate.RuntimePermissionsSDK {
		t.Errorf("RuntimeSDK = %d", cfg.RuntimeSDK)
	}
	if cfg.AckLabel != "OK" {
		t.Errorf("AckLabel = %q", cfg.AckLabel)
	}
	if cfg.ExternalDir != filepath.Join(dir, "designs") {
		t.Errorf("ExternalDir = %q", cfg.ExternalDir)
	}
	if cfg.InternalDir != filepath.Join(dir, ".storagegate") {
		t.Errorf("InternalDir = %q", cfg.InternalDir)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestResolveWithoutGoMod(t *testing.T) {
	dir := projectDir(t, "designer")

	cfg, err := Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.ModulePath != "" {
		t.Errorf("ModulePath = %q, want empty", cfg.ModulePath)
	}
	if cfg.AppName != "designer" {
		t.Errorf("AppName = %q, want designer", cfg.AppName)
	}
	if cfg.AppID != "com.example.designer" {
		t.Errorf("AppID = %q, want com.example.designer", cfg.AppID)
	}
}

func TestResolveOverrides(t *testing.T) {
	dir := projectDir(t, "designer")
	writeFile(t, dir, FileName, `app:
  name: Modelsaur
  id: org.modelsaur.app
gate:
  permission: android.permission.READ_EXTERNAL_STORAGE
  justification: Needed to open your designs.
  request_code: 42
  runtime_sdk: 30
  ack_label: Continue
storage:
  external_dir: /sdcard/Modelsaur
  internal_dir: /data/modelsaur
log:
  level: debug
`)

	cfg, err := Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := gate.Request{
		Permission:    "android.permission.READ_EXTERNAL_STORAGE",
		Justification: "Needed to open your designs.",
		Code:          42,
	}
	if cfg.Request != want {
		t.Errorf("Request = %+v, want %+v", cfg.Request, want)
	}
	if cfg.AppName != "Modelsaur" || cfg.AppID != "org.modelsaur.app" {
		t.Errorf("App = %q (%q)", cfg.AppName, cfg.AppID)
	}
	if cfg.RuntimeSDK != 30 || cfg.AckLabel != "Continue" {
		t.Errorf("RuntimeSDK = %d, AckLabel = %q", cfg.RuntimeSDK, cfg.AckLabel)
	}
	if cfg.ExternalDir != "/sdcard/Modelsaur" || cfg.InternalDir != "/data/modelsaur" {
		t.Errorf("dirs = %q, %q", cfg.ExternalDir, cfg.InternalDir)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"negative request code", "gate:\n  request_code: -1\n", "request_code"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"app id without dot", "app:\n  id: modelsaur\n", "at least one '.'"},
		{"app id uppercase", "app:\n  id: com.Modelsaur\n", "invalid character"},
		{"app id digit segment", "app:\n  id: com.9lives\n", "start with a digit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := projectDir(t, "designer")
			writeFile(t, dir, FileName, tt.yaml)
			_, err := Resolve(dir)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Resolve error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultAppID(t *testing.T) {
	tests := []struct {
		module  string
		appName string
		want    string
	}{
		{"github.com/modelsaur/storagegate", "storagegate", "com.github.modelsaur.storagegate"},
		{"example.org/My-App", "My-App", "org.example.myapp"},
		{"designer", "designer", "com.example.designer"},
		{"", "9lives", "com.example.a9lives"},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			if got := defaultAppID(tt.module, tt.appName); got != tt.want {
				t.Errorf("defaultAppID(%q, %q) = %q, want %q", tt.module, tt.appName, got, tt.want)
			}
		})
	}
}

func TestSanitizeSegment(t *testing.T) {
	tests := map[string]string{
		"Modelsaur": "modelsaur",
		"my-app":    "myapp",
		"__x":       "x",
		"9lives":    "a9lives",
		"":          "app",
		"---":       "app",
	}
	for in, want := range tests {
		if got := sanitizeSegment(in); got != want {
			t.Errorf("sanitizeSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := projectDir(t, "designer")
	writeFile(t, root, FileName, "app:\n  name: designer\n")
	nested := filepath.Join(root, "assets", "designs")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	got, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("FindProjectRoot: %v", err)
	}
	// TempDir may sit behind a symlink (macOS /var -> /private/var).
	want, _ := filepath.EvalSymlinks(root)
	if resolved, _ := filepath.EvalSymlinks(got); resolved != want {
		t.Errorf("FindProjectRoot = %q, want %q", got, root)
	}
}
