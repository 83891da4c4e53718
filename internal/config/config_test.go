package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
)

func init() {
	// Tests point HOME at temp dirs.
	homedir.DisableCache = true
}

func TestDir_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	if dir != filepath.Join("/tmp/xdg", "envstate") {
		t.Errorf("Dir() = %q", dir)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load() returned error for missing file: %v", err)
	}
	if cfg.StateBackend != BackendJSON {
		t.Errorf("StateBackend = %q, want json", cfg.StateBackend)
	}
	if cfg.Timeouts.Scan.Std() != 45*time.Second || cfg.Timeouts.Verify.Std() != 10*time.Second {
		t.Errorf("unexpected default timeouts: %+v", cfg.Timeouts)
	}
	if filepath.Base(cfg.StatePath) != "environment.json" {
		t.Errorf("StatePath = %q", cfg.StatePath)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(t.TempDir(), FileName)
	content := `
state_backend = "sqlite"
db_path = "~/data/env.db"
log_level = "debug"

[timeouts]
scan = "1m30s"

[advisor]
endpoint = "https://advisor.example.com"
api_key_env = "MY_KEY"

[aliases]
rg = "ripgrep"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("MY_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.StateBackend != BackendSQLite {
		t.Errorf("StateBackend = %q", cfg.StateBackend)
	}
	if cfg.DBPath != filepath.Join(home, "data", "env.db") {
		t.Errorf("DBPath = %q, want ~ expanded", cfg.DBPath)
	}
	if cfg.Timeouts.Scan.Std() != 90*time.Second {
		t.Errorf("Timeouts.Scan = %v", cfg.Timeouts.Scan.Std())
	}
	if cfg.Timeouts.UpdateCheck.Std() != 45*time.Second {
		t.Errorf("unset timeout lost its default: %v", cfg.Timeouts.UpdateCheck.Std())
	}
	if cfg.Advisor.APIKey() != "secret" {
		t.Errorf("APIKey() = %q", cfg.Advisor.APIKey())
	}
	if cfg.ResolveAlias("rg") != "ripgrep" || cfg.ResolveAlias("git") != "git" {
		t.Errorf("unexpected alias resolution")
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", `colour = "red"`},
		{"bad backend", `state_backend = "redis"`},
		{"bad level", `log_level = "loud"`},
		{"bad format", `log_format = "xml"`},
		{"bad duration", "[timeouts]\nscan = \"soon\""},
		{"negative duration", "[timeouts]\nverify = \"-1s\""},
		{"syntax", `state_path = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			if err != nil {
				t.Fatal(err)
			}
			err = Parse([]byte(tt.content), "test.toml", cfg)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
		})
	}
}
