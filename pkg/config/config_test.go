package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"thoreinstein.com/shist/pkg/errors"
	"thoreinstein.com/shist/pkg/history"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, vars := range envBindings {
		for _, v := range vars {
			t.Setenv(v, "")
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	h := cfg.History
	if h.Dir != filepath.Join(home, ".local", "share", "shist") {
		t.Errorf("Dir = %q", h.Dir)
	}
	if h.BufferSize != history.DefaultBufferSize {
		t.Errorf("BufferSize = %d, want %d", h.BufferSize, history.DefaultBufferSize)
	}
	if !h.GC || h.MaxSessions != 100 {
		t.Errorf("GC = %v, MaxSessions = %d", h.GC, h.MaxSessions)
	}
	if h.MaxAge != 30*24*time.Hour {
		t.Errorf("MaxAge = %v", h.MaxAge)
	}
	if h.DatetimeFormat != history.DefaultDatetimeFormat {
		t.Errorf("DatetimeFormat = %q", h.DatetimeFormat)
	}
	if len(h.Control) != 0 {
		t.Errorf("Control = %v, want empty", h.Control)
	}
}

func TestLoad_ShellEnvironment(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("HISTCONTROL", "ignoredups:ignoreerr")
	t.Setenv("SHIST_HISTORY_DIR", dir)
	t.Setenv("HISTFILE", "~/custom_history")
	t.Setenv("SHIST_SESSION", "abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	control, ignored := cfg.History.ControlModes()
	if len(ignored) != 0 {
		t.Errorf("ControlModes() ignored = %v, want none", ignored)
	}
	if !control.Has(history.IgnoreDups) || !control.Has(history.IgnoreErr) {
		t.Errorf("control = %v, want both modes", control)
	}
	if cfg.History.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.History.Dir, dir)
	}
	if cfg.History.SessionID != "abc" {
		t.Errorf("SessionID = %q", cfg.History.SessionID)
	}
	if strings.HasPrefix(cfg.History.BashPath, "~") || !strings.HasSuffix(cfg.History.BashPath, "custom_history") {
		t.Errorf("BashPath = %q, want expanded", cfg.History.BashPath)
	}
}

func TestLoad_DistributionHistcontrol(t *testing.T) {
	resetViper(t)
	t.Setenv("HISTCONTROL", "ignoreboth:erasedups")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	control, ignored := cfg.History.ControlModes()
	if !control.Has(history.IgnoreDups) || control.Has(history.IgnoreErr) {
		t.Errorf("control = %v, want ignoredups", control)
	}
	if len(ignored) != 1 || ignored[0] != "erasedups" {
		t.Errorf("ignored = %v, want [erasedups]", ignored)
	}
}

func TestLoad_PrefixedControlWins(t *testing.T) {
	resetViper(t)
	t.Setenv("HISTCONTROL", "ignoredups")
	t.Setenv("SHIST_HISTORY_CONTROL", "ignoreerr")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.History.Control) != 1 || cfg.History.Control[0] != "ignoreerr" {
		t.Errorf("Control = %v, want [ignoreerr]", cfg.History.Control)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*HistoryConfig)
		field   string
		wantErr bool
	}{
		{"valid", func(h *HistoryConfig) {}, "", false},
		{"unknown control is ignored", func(h *HistoryConfig) { h.Control = []string{"erasedups"} }, "", false},
		{"negative buffer", func(h *HistoryConfig) { h.BufferSize = -1 }, "history.buffer_size", true},
		{"negative sessions", func(h *HistoryConfig) { h.MaxSessions = -3 }, "history.max_sessions", true},
		{"negative age", func(h *HistoryConfig) { h.MaxAge = -time.Hour }, "history.max_age", true},
		{"bad datetime format", func(h *HistoryConfig) { h.DatetimeFormat = "%Y-%Q" }, "history.datetime_format", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{History: HistoryConfig{BufferSize: 10, DatetimeFormat: "%H:%M"}}
			tt.mutate(&cfg.History)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var ce *errors.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error %v is not a ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "shist", "config.toml")

	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"[history]", "buffer_size = 100", "ignoredups", "720h0m0s"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config missing %q:\n%s", want, data)
		}
	}

	if err := WriteDefault(path, false); !errors.IsConfigError(err) {
		t.Errorf("second WriteDefault() error = %v, want ConfigError", err)
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("forced WriteDefault() error = %v", err)
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.History.MaxAge != 720*time.Hour {
		t.Errorf("MaxAge = %v, want 720h", cfg.History.MaxAge)
	}
	if len(cfg.History.Control) != 1 || cfg.History.Control[0] != "ignoredups" {
		t.Errorf("Control = %v", cfg.History.Control)
	}
}
