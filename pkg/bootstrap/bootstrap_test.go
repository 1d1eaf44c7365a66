package bootstrap

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestPreParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantConfig  string
		wantVerbose bool
	}{
		{"none", []string{"shist", "history"}, "", false},
		{"long config", []string{"shist", "--config", "a.toml", "history"}, "a.toml", false},
		{"config equals", []string{"shist", "--config=b.toml"}, "b.toml", false},
		{"short config attached", []string{"shist", "-Cc.toml", "-v"}, "c.toml", true},
		{"verbose", []string{"shist", "--verbose", "history"}, "", true},
		{"stops at subcommand", []string{"shist", "history", "-v"}, "", false},
		{"stops at marker", []string{"shist", "--", "-v"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, verbose := PreParseGlobalFlags(tt.args)
			if cfg != tt.wantConfig || verbose != tt.wantVerbose {
				t.Errorf("PreParseGlobalFlags(%v) = (%q, %v), want (%q, %v)", tt.args, cfg, verbose, tt.wantConfig, tt.wantVerbose)
			}
		})
	}
}

func TestInitConfig_ExplicitFile(t *testing.T) {
	t.Setenv("GO_TEST", "true")
	t.Setenv("HISTCONTROL", "")
	t.Cleanup(func() {
		Reset()
		viper.Reset()
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[history]\ndir = '" + filepath.Join(dir, "sessions") + "'\nbuffer_size = 7\ncontrol = ['ignoreerr']\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := InitConfig(path, false)
	if err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}
	if cfg.History.BufferSize != 7 {
		t.Errorf("BufferSize = %d, want 7", cfg.History.BufferSize)
	}
	if cfg.History.Dir != filepath.Join(dir, "sessions") {
		t.Errorf("Dir = %q", cfg.History.Dir)
	}
	if len(cfg.History.Control) != 1 || cfg.History.Control[0] != "ignoreerr" {
		t.Errorf("Control = %v", cfg.History.Control)
	}
}

func TestInitConfig_MissingExplicitFile(t *testing.T) {
	t.Setenv("GO_TEST", "true")
	t.Cleanup(func() {
		Reset()
		viper.Reset()
	})

	_, _, err := InitConfig(filepath.Join(t.TempDir(), "nope.toml"), false)
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestInitConfig_UnknownControlIsNotFatal(t *testing.T) {
	t.Setenv("GO_TEST", "true")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HISTCONTROL", "ignoreboth")
	t.Cleanup(func() {
		Reset()
		viper.Reset()
	})

	if _, _, err := InitConfig("", false); err != nil {
		t.Errorf("InitConfig() error = %v", err)
	}
}

func TestInitConfig_InvalidDatetimeFormat(t *testing.T) {
	t.Setenv("GO_TEST", "true")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HISTCONTROL", "")
	t.Setenv("SHIST_HISTORY_DATETIME_FORMAT", "%Q")
	t.Cleanup(func() {
		Reset()
		viper.Reset()
	})

	_, _, err := InitConfig("", false)
	if err == nil || !strings.Contains(err.Error(), "datetime_format") {
		t.Errorf("InitConfig() error = %v, want datetime_format error", err)
	}
}

func TestNewLogger(t *testing.T) {
	if NewLogger(&bytes.Buffer{}, false) != nil {
		t.Error("quiet logger should be nil")
	}

	var buf bytes.Buffer
	logger := NewLogger(&buf, true)
	logger.Debug("History flushed", "records", 3)
	if !strings.Contains(buf.String(), "records=3") {
		t.Errorf("debug output missing: %q", buf.String())
	}
}
