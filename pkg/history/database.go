package history

import (
	"database/sql"
	"io"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"thoreinstein.com/shist/pkg/errors"
)

// zsh-histdb stores times and durations in seconds.
const zshHistdbQuery = `SELECT c.argv, c.start_time, c.duration, c.exit_status, p.dir, s.session
	FROM commands c
	LEFT JOIN places p ON c.place_id = p.id
	LEFT JOIN sessions s ON c.session_id = s.id
	ORDER BY c.start_time, c.id`

// atuin stores them in nanoseconds and soft-deletes rows.
const atuinQuery = `SELECT command, timestamp, duration, exit, cwd, session
	FROM history
	WHERE deleted_at IS NULL
	ORDER BY timestamp`

// Schema names of the sqlite history databases DatabaseManager reads.
const (
	SchemaZshHistdb = "zsh-histdb"
	SchemaAtuin     = "atuin"
)

// DatabaseManager reads another shell's history from a zsh-histdb or atuin
// sqlite database, so it can be shown next to native sessions.
type DatabaseManager struct {
	path   string
	logger *slog.Logger
}

// NewDatabaseManager creates a manager for the database at path. A nil
// logger discards query traces.
func NewDatabaseManager(path string, logger *slog.Logger) *DatabaseManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DatabaseManager{path: path, logger: logger}
}

// IsAvailable reports whether the database exists and has a known schema.
func (dm *DatabaseManager) IsAvailable() bool {
	if dm.path == "" {
		return false
	}
	db, err := dm.open()
	if err != nil {
		return false
	}
	defer db.Close()
	_, err = detectSchema(db)
	return err == nil
}

func (dm *DatabaseManager) open() (*sql.DB, error) {
	if _, err := os.Stat(dm.path); err != nil {
		return nil, errors.NewSourceError("sqlite", dm.path, "database not found", err)
	}
	db, err := sql.Open("sqlite", dm.path)
	if err != nil {
		return nil, errors.NewSourceError("sqlite", dm.path, "failed to open database", err)
	}
	return db, nil
}

func detectSchema(db *sql.DB) (string, error) {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('commands','history') ORDER BY name='commands' DESC LIMIT 1`).Scan(&name)
	if err != nil {
		return "", errors.Wrap(err, "detect history schema")
	}
	switch name {
	case "commands":
		return SchemaZshHistdb, nil
	case "history":
		return SchemaAtuin, nil
	}
	return "", errors.Newf("unknown history schema (table %q)", name)
}

// QueryCommands returns every command in the database as records, oldest
// first. Time bounds are applied by the query engine after slicing, so the
// whole table is read to keep logical indices stable.
func (dm *DatabaseManager) QueryCommands() ([]Record, error) {
	db, err := dm.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	schema, err := detectSchema(db)
	if err != nil {
		return nil, errors.NewSourceError("sqlite", dm.path, "unrecognized database", err)
	}

	query := atuinQuery
	if schema == SchemaZshHistdb {
		query = zshHistdbQuery
	}
	dm.logger.Debug("History database query", "schema", schema, "path", dm.path, "query", query)

	rows, err := db.Query(query)
	if err != nil {
		return nil, errors.NewSourceError(schema, dm.path, "query failed", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			argv     string
			start    int64
			duration sql.NullInt64
			exit     sql.NullInt64
			dir      sql.NullString
			session  sql.NullString
		)
		if err := rows.Scan(&argv, &start, &duration, &exit, &dir, &session); err != nil {
			return nil, errors.NewSourceError(schema, dm.path, "scan failed", err)
		}
		records = append(records, dm.toRecord(schema, argv, start, duration, exit, dir, session))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSourceError(schema, dm.path, "read failed", err)
	}
	return records, nil
}

func (dm *DatabaseManager) toRecord(schema, argv string, start int64, duration, exit sql.NullInt64, dir, session sql.NullString) Record {
	r := Record{Input: argv, SessionID: session.String}
	var dur float64
	if schema == SchemaZshHistdb {
		r.TimestampStart = float64(start)
		dur = float64(duration.Int64)
	} else {
		r.TimestampStart = float64(start) / float64(time.Second)
		dur = float64(duration.Int64) / float64(time.Second)
	}
	if duration.Valid && dur >= 0 {
		r.TimestampEnd = Float(r.TimestampStart + dur)
	}
	if exit.Valid {
		r.ReturnCode = Int32(int32(exit.Int64))
	}
	if dir.Valid && dir.String != "" {
		r.Cwd = String(dir.String)
	}
	return r
}

// GetDatabaseInfo describes the database for `history info`.
func (dm *DatabaseManager) GetDatabaseInfo() (map[string]interface{}, error) {
	info := map[string]interface{}{
		"path":   dm.path,
		"exists": false,
	}
	stat, err := os.Stat(dm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return nil, errors.Wrapf(err, "stat %s", dm.path)
	}
	info["exists"] = true
	info["size"] = stat.Size()
	info["modified"] = stat.ModTime()

	db, err := dm.open()
	if err != nil {
		info["error"] = err.Error()
		return info, nil
	}
	defer db.Close()

	schema, err := detectSchema(db)
	if err != nil {
		info["error"] = err.Error()
		return info, nil
	}
	info["schema"] = schema

	table := "history"
	if schema == SchemaZshHistdb {
		table = "commands"
	}
	var count int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		info["error"] = err.Error()
		return info, nil
	}
	info["command_count"] = count
	return info, nil
}
