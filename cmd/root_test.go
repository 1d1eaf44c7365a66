package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestRootCommandStructure(t *testing.T) {
	// Not parallel - accesses global rootCmd
	cmd := rootCmd

	if cmd.Use != "shist" {
		t.Errorf("root command Use = %q, want %q", cmd.Use, "shist")
	}

	if cmd.Short == "" {
		t.Error("root command should have Short description")
	}

	if cmd.Long == "" {
		t.Error("root command should have Long description")
	}

	expectedKeywords := []string{"history", "session", "slices"}
	for _, keyword := range expectedKeywords {
		if !strings.Contains(cmd.Long, keyword) {
			t.Errorf("root command Long description should mention %q", keyword)
		}
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	// Not parallel - accesses global rootCmd
	cmd := rootCmd

	configFlag := cmd.PersistentFlags().Lookup("config")
	if configFlag == nil {
		t.Fatal("root command should have --config persistent flag")
	}
	if configFlag.DefValue != "" {
		t.Errorf("--config default should be empty, got %q", configFlag.DefValue)
	}
	if configFlag.Shorthand != "C" {
		t.Errorf("--config shorthand should be 'C', got %q", configFlag.Shorthand)
	}
	if !strings.Contains(configFlag.Usage, "$HOME/.config/shist") {
		t.Error("--config usage should mention default config location")
	}

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	if verboseFlag == nil {
		t.Fatal("root command should have --verbose persistent flag")
	}
	if verboseFlag.DefValue != "false" {
		t.Errorf("--verbose default should be 'false', got %q", verboseFlag.DefValue)
	}
	if verboseFlag.Shorthand != "v" {
		t.Errorf("--verbose shorthand should be 'v', got %q", verboseFlag.Shorthand)
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	// Not parallel - accesses global rootCmd
	registered := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		registered[strings.Split(sub.Use, " ")[0]] = true
	}

	for _, expected := range []string{"history", "config"} {
		if !registered[expected] {
			t.Errorf("root command should have %q subcommand registered", expected)
		}
	}
}

func TestInitConfig_WithCustomConfigFile(t *testing.T) {
	// Don't run in parallel - modifies global viper state
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configContent := `[history]
dir = "/custom/history"
max_sessions = 7
datetime_format = "%H:%M"
`
	customConfigPath := filepath.Join(tmpDir, "custom-config.toml")
	if err := os.WriteFile(customConfigPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write custom config: %v", err)
	}

	resetConfig()
	defer resetConfig()

	oldCfgFile := cfgFile
	cfgFile = customConfigPath
	defer func() { cfgFile = oldCfgFile }()

	if err := initConfig(); err != nil {
		t.Fatalf("initConfig() error = %v", err)
	}

	if appConfig.History.Dir != "/custom/history" {
		t.Errorf("history.dir = %q, want %q", appConfig.History.Dir, "/custom/history")
	}
	if appConfig.History.MaxSessions != 7 {
		t.Errorf("history.max_sessions = %d, want 7", appConfig.History.MaxSessions)
	}
	if appConfig.History.DatetimeFormat != "%H:%M" {
		t.Errorf("history.datetime_format = %q, want %q", appConfig.History.DatetimeFormat, "%H:%M")
	}
}

func TestInitConfig_WithDefaultLocation(t *testing.T) {
	// Don't run in parallel - modifies global viper state
	tmpDir := t.TempDir()

	configDir := filepath.Join(tmpDir, ".config", "shist")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	configContent := `[history]
store_output = true
`
	if err := os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetConfig()
	defer resetConfig()
	t.Setenv("HOME", tmpDir)

	oldCfgFile := cfgFile
	cfgFile = ""
	defer func() { cfgFile = oldCfgFile }()

	if err := initConfig(); err != nil {
		t.Fatalf("initConfig() error = %v", err)
	}

	if !viper.GetBool("history.store_output") {
		t.Error("history.store_output should be read from the default location")
	}
	if want := filepath.Join(tmpDir, ".local", "share", "shist"); appConfig.History.Dir != want {
		t.Errorf("history.dir = %q, want default %q", appConfig.History.Dir, want)
	}
}

func TestInitConfig_MissingExplicitFile(t *testing.T) {
	// Don't run in parallel - modifies global viper state
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	resetConfig()
	defer resetConfig()

	oldCfgFile := cfgFile
	cfgFile = filepath.Join(tmpDir, "nope.toml")
	defer func() { cfgFile = oldCfgFile }()

	if err := initConfig(); err == nil {
		t.Error("initConfig() with a missing --config file should fail")
	}
}

func TestInitConfig_VerboseOutput(t *testing.T) {
	// Don't run in parallel - modifies global viper state
	tmpDir := t.TempDir()

	configDir := filepath.Join(tmpDir, ".config", "shist")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[history]\ngc = false\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetConfig()
	defer resetConfig()
	t.Setenv("HOME", tmpDir)

	oldVerbose := verbose
	verbose = true
	defer func() { verbose = oldVerbose }()

	oldCfgFile := cfgFile
	cfgFile = ""
	defer func() { cfgFile = oldCfgFile }()

	// Capture stderr to verify verbose output
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	_ = initConfig()

	w.Close()
	os.Stderr = oldStderr

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	output := buf.String()

	if !strings.Contains(output, "Using config file:") {
		t.Errorf("Verbose mode should print 'Using config file:', got: %q", output)
	}
	if !strings.Contains(output, configPath) {
		t.Errorf("Verbose mode should print config path %q, got: %q", configPath, output)
	}
}

func TestExecute_HelpCommand(t *testing.T) {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test command",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	cmd.SetArgs([]string{"--help"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err != nil {
		t.Errorf("Execute with --help returned error: %v", err)
	}
}

func TestRootCommand_ExecuteWithUnknownCommand(t *testing.T) {
	setupHistoryEnv(t)

	if _, err := runShist(t, "unknown-subcommand-xyz"); err == nil {
		t.Error("Execute with unknown subcommand should return error")
	}
}
