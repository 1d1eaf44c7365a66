package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"thoreinstein.com/shist/pkg/errors"
	"thoreinstein.com/shist/pkg/history"
)

// Config represents the application configuration
type Config struct {
	History HistoryConfig `mapstructure:"history" toml:"history"`
}

// HistoryConfig holds shell history configuration
type HistoryConfig struct {
	Dir            string        `mapstructure:"dir" toml:"dir"`                         // Directory holding session files
	SessionID      string        `mapstructure:"session_id" toml:"session_id,omitempty"` // Session the shell hook writes to
	Control        []string      `mapstructure:"control" toml:"control"`                 // HISTCONTROL modes
	BufferSize     int           `mapstructure:"buffer_size" toml:"buffer_size"`         // Unflushed records that trigger a flush
	StoreOutput    bool          `mapstructure:"store_output" toml:"store_output"`
	GC             bool          `mapstructure:"gc" toml:"gc"`
	MaxSessions    int           `mapstructure:"max_sessions" toml:"max_sessions"` // 0 = unlimited
	MaxAge         time.Duration `mapstructure:"max_age" toml:"max_age"`           // 0 = unlimited
	BashPath       string        `mapstructure:"bash_path" toml:"bash_path"`
	ZshPath        string        `mapstructure:"zsh_path" toml:"zsh_path"`
	DatabasePath   string        `mapstructure:"database_path" toml:"database_path"` // zsh-histdb sqlite
	AtuinPath      string        `mapstructure:"atuin_path" toml:"atuin_path"`
	DatetimeFormat string        `mapstructure:"datetime_format" toml:"datetime_format"`
}

// ControlModes parses Control into an admission policy. Words naming no
// mode shist implements are returned alongside it.
func (h HistoryConfig) ControlModes() (history.Control, []string) {
	return history.ParseControl(h.Control...)
}

// envBindings maps config keys to the shell variables that may set them.
var envBindings = map[string][]string{
	"history.control":    {"SHIST_HISTORY_CONTROL", "HISTCONTROL"},
	"history.dir":        {"SHIST_HISTORY_DIR"},
	"history.session_id": {"SHIST_SESSION"},
	"history.bash_path":  {"SHIST_HISTORY_BASH_PATH", "HISTFILE"},
}

// BindEnv binds the shell environment variables in envBindings. The first
// variable listed for a key wins when several are set.
func BindEnv() error {
	for key, vars := range envBindings {
		args := append([]string{key}, vars...)
		if err := viper.BindEnv(args...); err != nil {
			return errors.Wrapf(err, "bind %s", key)
		}
	}
	return nil
}

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	config := &Config{}

	// Set defaults
	setDefaults()

	if err := BindEnv(); err != nil {
		return nil, err
	}

	// HISTCONTROL arrives as one comma separated string.
	if raw := viper.GetString("history.control"); raw != "" && len(viper.GetStringSlice("history.control")) <= 1 {
		viper.Set("history.control", splitList(raw))
	}

	// Unmarshal the config
	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	// Expand paths
	if err := expandPaths(config); err != nil {
		return nil, errors.Wrap(err, "failed to expand paths")
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return config, nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ':' || r == ' '
	})
}

// Validate validates the configuration and returns any validation errors.
func (c *Config) Validate() error {
	h := c.History
	if h.BufferSize < 0 {
		return errors.NewConfigError("history.buffer_size", "must not be negative")
	}
	if h.MaxSessions < 0 {
		return errors.NewConfigError("history.max_sessions", "must not be negative")
	}
	if h.MaxAge < 0 {
		return errors.NewConfigError("history.max_age", "must not be negative")
	}
	if h.DatetimeFormat != "" {
		if _, err := strftime.Layout(h.DatetimeFormat); err != nil {
			return errors.NewConfigErrorWithCause("history.datetime_format", "invalid strftime format", err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fall back to current directory if home dir can't be determined
		homeDir = "."
	}

	for key, value := range Defaults(homeDir) {
		viper.SetDefault(key, value)
	}
}

// Defaults returns the default value of every key, rooted at homeDir.
func Defaults(homeDir string) map[string]any {
	return map[string]any{
		"history.dir":             filepath.Join(homeDir, ".local", "share", "shist"),
		"history.session_id":      "",
		"history.control":         []string{},
		"history.buffer_size":     history.DefaultBufferSize,
		"history.store_output":    false,
		"history.gc":              true,
		"history.max_sessions":    100,
		"history.max_age":         30 * 24 * time.Hour,
		"history.bash_path":       filepath.Join(homeDir, ".bash_history"),
		"history.zsh_path":        filepath.Join(homeDir, ".zsh_history"),
		"history.database_path":   filepath.Join(homeDir, ".histdb", "zsh-history.db"),
		"history.atuin_path":      filepath.Join(homeDir, ".local", "share", "atuin", "history.db"),
		"history.datetime_format": history.DefaultDatetimeFormat,
	}
}

// defaultFile is the TOML shape written by WriteDefault. Durations are
// strings so the file stays readable.
type defaultFile struct {
	History struct {
		Dir            string   `toml:"dir"`
		Control        []string `toml:"control"`
		BufferSize     int      `toml:"buffer_size"`
		StoreOutput    bool     `toml:"store_output"`
		GC             bool     `toml:"gc"`
		MaxSessions    int      `toml:"max_sessions"`
		MaxAge         string   `toml:"max_age"`
		BashPath       string   `toml:"bash_path"`
		ZshPath        string   `toml:"zsh_path"`
		DatabasePath   string   `toml:"database_path"`
		AtuinPath      string   `toml:"atuin_path"`
		DatetimeFormat string   `toml:"datetime_format"`
	} `toml:"history"`
}

// WriteDefault writes a config file holding every default to path. An
// existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.NewConfigError("config", path+" already exists (use --force to overwrite)")
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "~"
	}
	d := Defaults(homeDir)

	var f defaultFile
	f.History.Dir = d["history.dir"].(string)
	f.History.Control = []string{string(history.IgnoreDups)}
	f.History.BufferSize = d["history.buffer_size"].(int)
	f.History.StoreOutput = d["history.store_output"].(bool)
	f.History.GC = d["history.gc"].(bool)
	f.History.MaxSessions = d["history.max_sessions"].(int)
	f.History.MaxAge = d["history.max_age"].(time.Duration).String()
	f.History.BashPath = d["history.bash_path"].(string)
	f.History.ZshPath = d["history.zsh_path"].(string)
	f.History.DatabasePath = d["history.database_path"].(string)
	f.History.AtuinPath = d["history.atuin_path"].(string)
	f.History.DatetimeFormat = d["history.datetime_format"].(string)

	data, err := toml.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// expandPaths expands ~ and environment variables in paths
func expandPaths(config *Config) error {
	paths := []*string{
		&config.History.Dir,
		&config.History.BashPath,
		&config.History.ZshPath,
		&config.History.DatabasePath,
		&config.History.AtuinPath,
	}
	for _, p := range paths {
		expanded, err := expandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// expandPath expands ~ to home directory and $VARS
func expandPath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, path[1:]), nil
}
