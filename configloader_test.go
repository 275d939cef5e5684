package warden

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadConfig returned nil")
	}
	if !cfg.GetBoolOrTrue("core.service.404-redirect.enabled") {
		t.Error("feature flag should default to enabled on an empty config")
	}
}

func TestLoadConfigWithArgs(t *testing.T) {
	t.Chdir(t.TempDir())

	args := []string{"--http.port=9090", "--debug", "--store_driver", "sqlite"}
	cfg, err := LoadConfig("", args)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{key: "http.port", want: "9090"},
		{key: "debug", want: "true"},
		{key: "store.driver", want: "sqlite"},
	}
	for _, tt := range tests {
		if got, ok := cfg.GetString(tt.key); !ok || got != tt.want {
			t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLoadConfigWithEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WARDEN_HTTP_PORT", "7070")
	t.Setenv("WARDEN_CORE_SERVICE_404-REDIRECT_ENABLED", "false")

	cfg, err := LoadConfig("WARDEN", nil)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if got, ok := cfg.GetString("http.port"); !ok || got != "7070" {
		t.Errorf("http.port = %q, want 7070", got)
	}
	if cfg.GetBoolOrTrue("core.service.404-redirect.enabled") {
		t.Error("env should disable the feature flag")
	}
}

func TestLoadConfigEnvAliases(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WARDEN_ADMIN_INTERNAL_ONLY", "true")

	cfg, err := LoadConfig("WARDEN_", nil)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if !cfg.GetBoolOrFalse("admin.internal_only") {
		t.Error("admin.internal_only alias should be set")
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "custom.yaml")
	content := `
http:
  port: 5050
store:
  driver: sqlite
  dsn: "file::memory:"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WARDEN_STORE_DRIVER", "mongo")

	cfg, err := LoadConfig("WARDEN", []string{"--config=" + path, "--http.port=6060"})
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if got, _ := cfg.GetString("http.port"); got != "6060" {
		t.Errorf("args should win over file, http.port = %q", got)
	}
	if got, _ := cfg.GetString("store.driver"); got != "mongo" {
		t.Errorf("env should win over file, store.driver = %q", got)
	}
	if got, _ := cfg.GetString("store.dsn"); got != "file::memory:" {
		t.Errorf("store.dsn = %q", got)
	}
	if _, ok := cfg.Get(ConfigPathKey); ok {
		t.Error("config path argument should not be stored")
	}
}

func TestLoadConfigDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "admin:\n  realm: test realm\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	path, ok := findConfigFile()
	if !ok || path != "config/config.yaml" {
		t.Errorf("findConfigFile() = %q, %v", path, ok)
	}

	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if got := cfg.GetStringOrDef("admin.realm", ""); got != "test realm" {
		t.Errorf("admin.realm = %q", got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := LoadConfig("", []string{"--config=/nonexistent/warden.yaml"}); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestParseArgsToMap(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]any
	}{
		{
			name: "empty",
			want: map[string]any{},
		},
		{
			name: "equals form",
			args: []string{"--http.port=8080"},
			want: map[string]any{"http.port": "8080"},
		},
		{
			name: "space form",
			args: []string{"--store.driver", "mongo"},
			want: map[string]any{"store.driver": "mongo"},
		},
		{
			name: "boolean flag",
			args: []string{"--debug", "--verbose"},
			want: map[string]any{"debug": "true", "verbose": "true"},
		},
		{
			name: "underscores become dots",
			args: []string{"--admin_ui_enabled=false"},
			want: map[string]any{"admin.ui.enabled": "false"},
		},
		{
			name: "positional ignored",
			args: []string{"serve", "-x", "--", "--log.level=debug"},
			want: map[string]any{"log.level": "debug"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseArgsToMap(tt.args)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseArgsToMap(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}

func TestConfigPathFromArgs(t *testing.T) {
	tests := []struct {
		name   string
		kv     map[string]any
		want   string
		wantOK bool
	}{
		{name: "absent", kv: map[string]any{}},
		{name: "path", kv: map[string]any{ConfigPathKey: "conf.yaml"}, want: "conf.yaml", wantOK: true},
		{name: "bare flag", kv: map[string]any{ConfigPathKey: "true"}, want: "true"},
		{name: "blank", kv: map[string]any{ConfigPathKey: " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := configPathFromArgs(tt.kv)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("configPathFromArgs() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
			if _, exists := tt.kv[ConfigPathKey]; exists {
				t.Error("config key should be removed from the args map")
			}
		})
	}
}
