package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"thoreinstein.com/shist/pkg/config"
	"thoreinstein.com/shist/pkg/errors"
	"thoreinstein.com/shist/pkg/history"
	"thoreinstein.com/shist/pkg/ui"
)

// historyCmd represents the history command. Without a subcommand it shows
// history, so `shist history -n -10:` works like `shist history show -n -10:`.
var historyCmd = &cobra.Command{
	Use:   "history [show] [SESSION] [SLICE...]",
	Short: "Show and manage shell history",
	Long: `Show and manage shell history.

SESSION selects what to read: "session" (the current session, default),
"all" (every stored session, oldest first), a stored session id, or a
foreign history: "bash", "zsh", "histdb" (zsh-histdb) or "atuin".

Each SLICE narrows the selection further: an integer selects one command
(negative counts from the end), start:stop:step selects a range, and any
other text selects the most recent command containing it.

Examples:
  shist history                       # Current session
  shist history -n -10:               # Last ten commands, numbered
  shist history all ::-1              # Everything, newest first
  shist history bash 3:5              # Commands 3 and 4 of ~/.bash_history
  shist history --start-time "2024-06-01 09:00" --timestamp`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryShowCommand(cmd, args)
	},
}

// historyShowCmd shows history
var historyShowCmd = &cobra.Command{
	Use:                "show [SESSION] [SLICE...]",
	Short:              "Show commands from a history session",
	Long:               `Show commands from a history session. See "shist history --help" for the selector syntax.`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryShowCommand(cmd, args)
	},
}

// historyGetCmd prints one command, optionally narrowed to some of its words
var historyGetCmd = &cobra.Command{
	Use:   "get KEY [WORDS]",
	Short: "Print one command from history",
	Long: `Print one command from history.

KEY is an integer index or a fragment of the command. WORDS optionally
selects whitespace-separated words of it with an index or slice.

Examples:
  shist history get -1            # Last command
  shist history get -1 -1         # Last word of the last command
  shist history get kitty 1:      # Most recent command containing "kitty", minus its first word`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryGetCommand(cmd, args)
	},
}

// historyInfoCmd describes a history session or source
var historyInfoCmd = &cobra.Command{
	Use:   "info [SESSION]",
	Short: "Show information about history sessions",
	Long: `Display information about a history session: its file, header and record
count. "all" lists every stored session; "histdb" and "atuin" describe the
configured sqlite databases.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		selector := history.SelectCurrent
		if len(args) > 0 {
			selector = args[0]
		}
		return runHistoryInfoCommand(cmd, selector)
	},
}

// historyGCCmd removes old session files
var historyGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove old history sessions",
	Long: `Remove stored sessions beyond history.max_sessions or older than
history.max_age. The current session and sessions still being written are
never removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryGCCommand(cmd)
	},
}

// historyStartCmd creates a session for a shell to record into
var historyStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new history session and print its id",
	Long: `Create a new, empty history session and print its id, for shell startup:

  export SHIST_SESSION=$(shist history start)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryStartCommand(cmd)
	},
}

// historyRecordCmd appends one command to a session
var historyRecordCmd = &cobra.Command{
	Use:   "record [flags] -- COMMAND...",
	Short: "Append one command to a history session",
	Long: `Append one command to a history session, creating the session if needed.
Intended for shell hooks.

Example (zsh precmd):
  shist history record --rtn $? --ts-start $start --ts-end $EPOCHREALTIME -- "$cmd"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryRecordCommand(cmd, strings.Join(args, " "))
	},
}

// historyTimelineCmd renders a markdown timeline
var historyTimelineCmd = &cobra.Command{
	Use:   "timeline [SESSION] [SLICE...]",
	Short: "Render history as a markdown timeline",
	Long:  `Render the selected commands as a markdown timeline grouped by day, with exit status, duration and directory.`,
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryTimelineCommand(cmd, args)
	},
}

// historyPickCmd picks a command interactively
var historyPickCmd = &cobra.Command{
	Use:   "pick [SESSION] [SLICE...]",
	Short: "Pick a command from history with fzf",
	Long: `Pick a command from history with fzf and print it, newest first.

Example (zsh widget):
  BUFFER=$(shist history pick all)`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryPickCommand(cmd, args)
	},
}

var (
	historyInfoFormat string
	historyGCForce    bool

	historyRecordSession string
	historyRecordRtn     int
	historyRecordCwd     string
	historyRecordOut     string
	historyRecordTsStart float64
	historyRecordTsEnd   float64
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyGetCmd)
	historyCmd.AddCommand(historyInfoCmd)
	historyCmd.AddCommand(historyGCCmd)
	historyCmd.AddCommand(historyStartCmd)
	historyCmd.AddCommand(historyRecordCmd)
	historyCmd.AddCommand(historyTimelineCmd)
	historyCmd.AddCommand(historyPickCmd)

	// Registered for help output; parsing uses a fresh set per run.
	historyCmd.Flags().AddFlagSet(newShowFlagSet(&showOptions{}))
	historyShowCmd.Flags().AddFlagSet(newShowFlagSet(&showOptions{}))
	historyGetCmd.Flags().AddFlagSet(newGetFlagSet(new(string)))

	historyInfoCmd.Flags().StringVar(&historyInfoFormat, "format", "text", "Output format: text or yaml")
	historyGCCmd.Flags().BoolVar(&historyGCForce, "force", false, "Collect even when history.gc is disabled")

	historyRecordCmd.Flags().StringVar(&historyRecordSession, "session", "", "Session id (default $SHIST_SESSION)")
	historyRecordCmd.Flags().IntVar(&historyRecordRtn, "rtn", 0, "Return code of the command")
	historyRecordCmd.Flags().StringVar(&historyRecordCwd, "cwd", "", "Working directory of the command")
	historyRecordCmd.Flags().StringVar(&historyRecordOut, "out", "", "Captured output (kept only with history.store_output)")
	historyRecordCmd.Flags().Float64Var(&historyRecordTsStart, "ts-start", 0, "Start time in epoch seconds (default now)")
	historyRecordCmd.Flags().Float64Var(&historyRecordTsEnd, "ts-end", 0, "End time in epoch seconds")
}

type showOptions struct {
	numerate       bool
	reverse        bool
	timestamp      bool
	startTime      string
	endTime        string
	datetimeFormat string
	help           bool
}

func newShowFlagSet(o *showOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
	fs.BoolVarP(&o.numerate, "numerate", "n", false, "Number each command with its index")
	fs.BoolVarP(&o.reverse, "reverse", "r", false, "Show newest first")
	fs.BoolVarP(&o.timestamp, "timestamp", "t", false, "Show start times")
	fs.StringVar(&o.startTime, "start-time", "", "Only commands started at or after this time")
	fs.StringVar(&o.endTime, "end-time", "", "Only commands started at or before this time")
	fs.StringVarP(&o.datetimeFormat, "datetime-format", "f", "", "strftime format for --start-time, --end-time and --timestamp")
	return fs
}

func newGetFlagSet(session *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)
	fs.StringVarP(session, "session", "s", history.SelectCurrent, "Session to read")
	return fs
}

// newEngine wires the query engine to the configured history locations.
func newEngine(cfg *config.Config) *history.Engine {
	h := cfg.History
	log := logger()
	catalog := history.NewCatalog(h.Dir, log)

	current := h.SessionID
	if current == "" {
		// Outside a recording shell, "session" means the newest stored one.
		if sessions, err := catalog.Sessions(); err == nil && len(sessions) > 0 {
			current = sessions[len(sessions)-1].ID
		}
	}

	return &history.Engine{
		CurrentID: current,
		Catalog:   catalog,
		Logger:    log,
		Sources: map[string]history.Source{
			"bash": func(ctx context.Context) ([]history.Record, error) {
				return history.ReadBashHistory(h.BashPath)
			},
			"zsh": func(ctx context.Context) ([]history.Record, error) {
				return history.ReadZshHistory(h.ZshPath)
			},
			"histdb": func(ctx context.Context) ([]history.Record, error) {
				return history.NewDatabaseManager(h.DatabasePath, log).QueryCommands()
			},
			"atuin": func(ctx context.Context) ([]history.Record, error) {
				return history.NewDatabaseManager(h.AtuinPath, log).QueryCommands()
			},
		},
	}
}

// controlModes returns the configured admission policy. Modes shist does
// not implement, like bash's ignorespace or erasedups, are skipped.
func controlModes(cfg *config.Config) history.Control {
	control, ignored := cfg.History.ControlModes()
	if log := logger(); log != nil && len(ignored) > 0 {
		log.Debug("Ignoring unsupported history control modes", "modes", ignored)
	}
	return control
}

// splitSelector peels an optional leading "show" and session selector off
// the positional arguments.
func splitSelector(engine *history.Engine, args []string) (string, []string) {
	if len(args) > 0 && args[0] == "show" {
		args = args[1:]
	}
	if len(args) > 0 && engine.IsSession(args[0]) {
		return args[0], args[1:]
	}
	return history.SelectCurrent, args
}

func runHistoryShowCommand(cmd *cobra.Command, args []string) error {
	var opts showOptions
	rest, help, err := parseSelectorArgs(cmd, newShowFlagSet(&opts), args)
	if err != nil {
		return err
	}
	if help {
		return cmd.Help()
	}

	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	engine := newEngine(cfg)
	session, slices := splitSelector(engine, rest)

	// Bounds parse with an explicit --datetime-format or the built-in
	// layouts; the configured format only affects display.
	q := history.Query{
		Action:         "show",
		Session:        session,
		Slices:         slices,
		Numerate:       opts.numerate,
		Reverse:        opts.reverse,
		StartTime:      opts.startTime,
		EndTime:        opts.endTime,
		DatetimeFormat: opts.datetimeFormat,
		Timestamp:      opts.timestamp,
	}
	results, err := engine.Run(cmd.Context(), q)
	if err != nil {
		return err
	}
	if q.DatetimeFormat == "" {
		q.DatetimeFormat = cfg.History.DatetimeFormat
	}

	out := cmd.OutOrStdout()
	return history.Render(out, results, q, terminalWidth(out))
}

func runHistoryGetCommand(cmd *cobra.Command, args []string) error {
	var session string
	rest, help, err := parseSelectorArgs(cmd, newGetFlagSet(&session), args)
	if err != nil {
		return err
	}
	if help {
		return cmd.Help()
	}
	if len(rest) < 1 || len(rest) > 2 {
		return errors.Newf("expected KEY [WORDS], got %d arguments", len(rest))
	}

	var words *history.Slice
	if len(rest) == 2 {
		s, err := history.ParseSlice(rest[1])
		if err != nil {
			return err
		}
		words = &s
	}

	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	view, release, err := newEngine(cfg).Open(cmd.Context(), session)
	if err != nil {
		return err
	}
	defer release()

	line, err := view.Command(rest[0], words)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
	return nil
}

func runHistoryStartCommand(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	control := controlModes(cfg)
	s, err := history.NewSession(history.SessionOptions{
		Dir:         cfg.History.Dir,
		Here:        here(),
		Control:     control,
		BufferSize:  cfg.History.BufferSize,
		StoreOutput: cfg.History.StoreOutput,
		Logger:      logger(),
	})
	if err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return err
	}

	if cfg.History.GC {
		if _, err := collectGarbage(cmd.Context(), cfg, s.ID()); err != nil && verbose {
			fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), s.ID())
	return nil
}

func runHistoryRecordCommand(cmd *cobra.Command, input string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	id := historyRecordSession
	if id == "" {
		id = cfg.History.SessionID
	}
	if id == "" {
		return errors.NewConfigError("history.session_id", "no session given (use --session or set SHIST_SESSION)")
	}
	control := controlModes(cfg)

	rec := history.Record{Input: input, TimestampStart: historyRecordTsStart}
	if rec.TimestampStart == 0 {
		rec.TimestampStart = float64(time.Now().UnixNano()) / float64(time.Second)
	}
	flags := cmd.Flags()
	if flags.Changed("rtn") {
		rec.ReturnCode = history.Int32(int32(historyRecordRtn))
	}
	if flags.Changed("ts-end") {
		rec.TimestampEnd = history.Float(historyRecordTsEnd)
	}
	if flags.Changed("cwd") {
		rec.Cwd = history.String(historyRecordCwd)
	} else if wd, err := os.Getwd(); err == nil {
		rec.Cwd = history.String(wd)
	}
	if flags.Changed("out") {
		rec.Output = history.String(historyRecordOut)
	}

	opts := history.SessionOptions{
		Dir:         cfg.History.Dir,
		ID:          id,
		Here:        here(),
		Control:     control,
		BufferSize:  cfg.History.BufferSize,
		StoreOutput: cfg.History.StoreOutput,
		Logger:      logger(),
	}

	var s *history.Session
	path := history.SessionPath(cfg.History.Dir, id)
	if _, statErr := os.Stat(path); statErr == nil {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		s, err = history.OpenSession(ctx, path, opts)
	} else {
		s, err = history.NewSession(opts)
	}
	if err != nil {
		return err
	}

	s.Append(rec)
	return s.Close()
}

func runHistoryTimelineCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	engine := newEngine(cfg)
	session, slices := splitSelector(engine, args)
	matches, err := engine.Select(cmd.Context(), history.Query{Session: session, Slices: slices})
	if err != nil {
		return err
	}

	records := make([]history.Record, 0, len(matches))
	for _, m := range matches {
		records = append(records, m.Record)
	}

	title := session
	if session == history.SelectCurrent && engine.CurrentID != "" {
		title = engine.CurrentID
	}
	fmt.Fprint(cmd.OutOrStdout(), history.FormatTimeline(records, title, time.Now()))
	return nil
}

func runHistoryPickCommand(cmd *cobra.Command, args []string) error {
	rest, help, err := parseSelectorArgs(cmd, pflag.NewFlagSet("pick", pflag.ContinueOnError), args)
	if err != nil {
		return err
	}
	if help {
		return cmd.Help()
	}

	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	engine := newEngine(cfg)
	session, slices := splitSelector(engine, rest)
	matches, err := engine.Select(cmd.Context(), history.Query{Session: session, Slices: slices})
	if err != nil {
		return err
	}

	picked, err := ui.SelectCommand(matches)
	if err != nil {
		if errors.Is(err, ui.ErrCancelled) {
			return nil
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), picked.Record.Input)
	return nil
}
