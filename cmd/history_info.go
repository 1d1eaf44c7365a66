package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"thoreinstein.com/shist/pkg/config"
	"thoreinstein.com/shist/pkg/errors"
	"thoreinstein.com/shist/pkg/history"
)

// sessionReport is the info output for one stored session.
type sessionReport struct {
	ID      string    `yaml:"id"`
	Path    string    `yaml:"path"`
	Here    string    `yaml:"here,omitempty"`
	Version string    `yaml:"version"`
	Created time.Time `yaml:"created"`
	Size    int64     `yaml:"size"`
	Records int       `yaml:"records"`
	Current bool      `yaml:"current,omitempty"`
}

// sourceReport is the info output for a foreign history.
type sourceReport struct {
	Name     string    `yaml:"name"`
	Path     string    `yaml:"path"`
	Exists   bool      `yaml:"exists"`
	Usable   bool      `yaml:"usable"`
	Size     int64     `yaml:"size,omitempty"`
	Modified time.Time `yaml:"modified,omitempty"`
	Schema   string    `yaml:"schema,omitempty"`
	Records  int64     `yaml:"records"`
	Error    string    `yaml:"error,omitempty"`
}

func runHistoryInfoCommand(cmd *cobra.Command, selector string) error {
	if historyInfoFormat != "text" && historyInfoFormat != "yaml" {
		return errors.Newf("unknown format %q (use text or yaml)", historyInfoFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	engine := newEngine(cfg)
	out := cmd.OutOrStdout()

	var report any
	switch selector {
	case history.SelectAll, "*":
		report, err = allSessionsReport(engine)
	case "bash", "zsh", "histdb", "atuin":
		report, err = sourceInfo(cfg, selector)
	default:
		report, err = sessionInfo(engine, selector)
	}
	if err != nil {
		return err
	}

	if historyInfoFormat == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return errors.Wrap(err, "failed to encode info")
		}
		return enc.Close()
	}

	switch r := report.(type) {
	case []sessionReport:
		fmt.Fprintln(out, "History Sessions")
		fmt.Fprintln(out, "================")
		if len(r) == 0 {
			fmt.Fprintf(out, "No sessions in %s\n", cfg.History.Dir)
		}
		for _, s := range r {
			marker := " "
			if s.Current {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s  %s  %5d commands  %s\n", marker, s.ID, s.Created.Format("2006-01-02 15:04:05"), s.Records, s.Here)
		}
	case sessionReport:
		printSessionReport(out, r)
	case sourceReport:
		printSourceReport(out, r)
	}
	return nil
}

func allSessionsReport(engine *history.Engine) ([]sessionReport, error) {
	sessions, err := engine.Catalog.Sessions()
	if err != nil {
		return nil, err
	}
	reports := make([]sessionReport, 0, len(sessions))
	for _, info := range sessions {
		r, err := describeSession(engine, info)
		if err != nil {
			if engine.Logger != nil {
				engine.Logger.Warn("Skipping unreadable history session", "path", info.Path, "error", err)
			}
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func sessionInfo(engine *history.Engine, selector string) (sessionReport, error) {
	id := selector
	if id == history.SelectCurrent || id == "" {
		id = engine.CurrentID
	}
	if id == "" {
		return sessionReport{}, errors.NewConfigError("history.session_id", "no current session (set SHIST_SESSION or run \"shist history start\")")
	}
	info, err := engine.Catalog.Find(id)
	if err != nil {
		return sessionReport{}, err
	}
	return describeSession(engine, info)
}

func describeSession(engine *history.Engine, info history.SessionInfo) (sessionReport, error) {
	view, index, err := engine.Catalog.Open(info)
	if err != nil {
		return sessionReport{}, err
	}
	defer index.Close()

	return sessionReport{
		ID:      info.ID,
		Path:    info.Path,
		Here:    info.Here,
		Version: info.Version,
		Created: info.Created,
		Size:    info.Size,
		Records: view.Len(),
		Current: info.ID == engine.CurrentID,
	}, nil
}

func sourceInfo(cfg *config.Config, name string) (sourceReport, error) {
	h := cfg.History
	r := sourceReport{Name: name}

	switch name {
	case "bash", "zsh":
		r.Path = h.BashPath
		read := history.ReadBashHistory
		if name == "zsh" {
			r.Path = h.ZshPath
			read = history.ReadZshHistory
		}
		records, err := read(r.Path)
		if err != nil {
			r.Error = err.Error()
			return r, nil
		}
		r.Exists = true
		r.Usable = true
		r.Records = int64(len(records))
		return r, nil
	}

	r.Path = h.DatabasePath
	if name == "atuin" {
		r.Path = h.AtuinPath
	}
	dm := history.NewDatabaseManager(r.Path, logger())
	info, err := dm.GetDatabaseInfo()
	if err != nil {
		return r, errors.Wrap(err, "failed to get database info")
	}
	r.Usable = dm.IsAvailable()
	r.Exists, _ = info["exists"].(bool)
	r.Size, _ = info["size"].(int64)
	r.Modified, _ = info["modified"].(time.Time)
	r.Schema, _ = info["schema"].(string)
	r.Records, _ = info["command_count"].(int64)
	r.Error, _ = info["error"].(string)
	return r, nil
}

func printSessionReport(out io.Writer, r sessionReport) {
	fmt.Fprintln(out, "History Session Information")
	fmt.Fprintln(out, "===========================")
	fmt.Fprintf(out, "Session: %s\n", r.ID)
	fmt.Fprintf(out, "Path: %s\n", r.Path)
	if r.Here != "" {
		fmt.Fprintf(out, "Started on: %s\n", r.Here)
	}
	fmt.Fprintf(out, "Created: %s\n", r.Created.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Format: %s\n", r.Version)
	fmt.Fprintf(out, "Size: %d bytes\n", r.Size)
	fmt.Fprintf(out, "Commands: %d\n", r.Records)
}

func printSourceReport(out io.Writer, r sourceReport) {
	fmt.Fprintln(out, "History Source Information")
	fmt.Fprintln(out, "==========================")
	fmt.Fprintf(out, "Source: %s\n", r.Name)
	fmt.Fprintf(out, "Path: %s\n", r.Path)
	fmt.Fprintf(out, "Exists: %v\n", r.Exists)
	if !r.Exists && r.Error == "" {
		fmt.Fprintln(out, "History file does not exist.")
		return
	}
	if r.Usable {
		fmt.Fprintln(out, "Status: Available ✓")
	} else {
		fmt.Fprintln(out, "Status: Not available ✗")
	}
	if r.Size > 0 {
		fmt.Fprintf(out, "Size: %d bytes\n", r.Size)
	}
	if !r.Modified.IsZero() {
		fmt.Fprintf(out, "Modified: %s\n", r.Modified.Format("2006-01-02 15:04:05"))
	}
	if r.Schema != "" {
		fmt.Fprintf(out, "Schema: %s\n", r.Schema)
	}
	fmt.Fprintf(out, "Commands: %d\n", r.Records)
	if r.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", r.Error)
	}
}

func runHistoryGCCommand(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if !cfg.History.GC && !historyGCForce {
		fmt.Fprintln(cmd.OutOrStdout(), "Garbage collection is disabled (history.gc = false); use --force to run it anyway.")
		return nil
	}

	removed, err := collectGarbage(cmd.Context(), cfg, cfg.History.SessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session(s)\n", len(removed))
	for _, path := range removed {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", path)
	}
	return nil
}

// collectGarbage sweeps the history directory, sparing keep.
func collectGarbage(ctx context.Context, cfg *config.Config, keep string) ([]string, error) {
	log := logger()
	c := &history.Collector{
		Catalog:     history.NewCatalog(cfg.History.Dir, log),
		MaxSessions: cfg.History.MaxSessions,
		MaxAge:      cfg.History.MaxAge,
		Logger:      log,
	}
	removed, err := c.Sweep(ctx, keep)
	if err != nil {
		return removed, errors.Wrap(err, "history garbage collection failed")
	}
	return removed, nil
}
