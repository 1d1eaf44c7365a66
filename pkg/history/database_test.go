package history

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"thoreinstein.com/shist/pkg/errors"
)

func createDatabase(t *testing.T, schema string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return path
}

const histdbSchema = `
	CREATE TABLE commands (
		id INTEGER PRIMARY KEY,
		argv TEXT,
		start_time INTEGER,
		duration INTEGER,
		exit_status INTEGER,
		place_id INTEGER,
		session_id INTEGER,
		hostname TEXT
	);
	CREATE TABLE places (id INTEGER PRIMARY KEY, dir TEXT);
	CREATE TABLE sessions (id INTEGER PRIMARY KEY, session TEXT);

	INSERT INTO places (id, dir) VALUES (1, '/home'), (2, '/srv/app');
	INSERT INTO sessions (id, session) VALUES (1, 'session1'), (2, 'session2');

	INSERT INTO commands (argv, start_time, duration, exit_status, place_id, session_id)
	VALUES ('ls', 100, 1, 0, 1, 1);
	INSERT INTO commands (argv, start_time, duration, exit_status, place_id, session_id)
	VALUES ('sleep 5', 200, 5, 0, 2, 1);
	INSERT INTO commands (argv, start_time, duration, exit_status, place_id, session_id)
	VALUES ('false', 300, NULL, 1, 1, 2);
`

const atuinSchema = `
	CREATE TABLE history (
		id TEXT PRIMARY KEY,
		timestamp INTEGER,
		duration INTEGER,
		exit INTEGER,
		command TEXT,
		cwd TEXT,
		session TEXT,
		hostname TEXT,
		deleted_at INTEGER
	);
	INSERT INTO history VALUES ('a', 1000000000000, 2000000000, 0, 'make', '/src', 'u1', 'h', NULL);
	INSERT INTO history VALUES ('b', 2000000000000, 500000000, 2, 'make test', '/src', 'u1', 'h', NULL);
	INSERT INTO history VALUES ('c', 3000000000000, 1, 0, 'rm -rf x', '/src', 'u1', 'h', 1);
`

func TestQueryCommands_ZshHistdb(t *testing.T) {
	dm := NewDatabaseManager(createDatabase(t, histdbSchema), nil)

	records, err := dm.QueryCommands()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"ls", "sleep 5", "false"}, []string{records[0].Input, records[1].Input, records[2].Input})

	sleep := records[1]
	assert.Equal(t, 200.0, sleep.TimestampStart)
	require.NotNil(t, sleep.TimestampEnd)
	assert.Equal(t, 205.0, *sleep.TimestampEnd)
	assert.Equal(t, 5*time.Second, sleep.Duration())
	require.NotNil(t, sleep.Cwd)
	assert.Equal(t, "/srv/app", *sleep.Cwd)
	assert.Equal(t, "session1", sleep.SessionID)

	failed := records[2]
	assert.Nil(t, failed.TimestampEnd)
	assert.True(t, failed.Failed())
}

func TestQueryCommands_TracesQueryToLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dm := NewDatabaseManager(createDatabase(t, histdbSchema), log)

	_, err := dm.QueryCommands()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "History database query")
	assert.Contains(t, buf.String(), "schema="+SchemaZshHistdb)
}

func TestQueryCommands_Atuin(t *testing.T) {
	dm := NewDatabaseManager(createDatabase(t, atuinSchema), nil)

	records, err := dm.QueryCommands()
	require.NoError(t, err)
	require.Len(t, records, 2, "deleted rows are skipped")

	assert.Equal(t, "make", records[0].Input)
	assert.Equal(t, 1000.0, records[0].TimestampStart)
	assert.Equal(t, 2*time.Second, records[0].Duration())
	assert.True(t, records[1].Failed())

}

func TestIsAvailable(t *testing.T) {
	assert.True(t, NewDatabaseManager(createDatabase(t, histdbSchema), nil).IsAvailable())
	assert.True(t, NewDatabaseManager(createDatabase(t, atuinSchema), nil).IsAvailable())
	assert.False(t, NewDatabaseManager(createDatabase(t, `CREATE TABLE notes (body TEXT);`), nil).IsAvailable())
	assert.False(t, NewDatabaseManager(filepath.Join(t.TempDir(), "missing.db"), nil).IsAvailable())
	assert.False(t, NewDatabaseManager("", nil).IsAvailable())
}

func TestEngine_MissingDatabaseSource(t *testing.T) {
	dm := NewDatabaseManager(filepath.Join(t.TempDir(), "missing.db"), nil)
	engine := &Engine{Sources: map[string]Source{
		"histdb": func(ctx context.Context) ([]Record, error) {
			return dm.QueryCommands()
		},
	}}

	_, err := engine.Run(context.Background(), Query{Session: "histdb"})
	require.Error(t, err)
	var se *errors.SourceError
	assert.True(t, errors.As(err, &se), "got %v", err)
}

func TestQueryCommands_UnknownSchema(t *testing.T) {
	dm := NewDatabaseManager(createDatabase(t, `CREATE TABLE notes (body TEXT);`), nil)

	_, err := dm.QueryCommands()
	require.Error(t, err)
	var se *errors.SourceError
	assert.True(t, errors.As(err, &se), "got %v", err)
}

func TestGetDatabaseInfo(t *testing.T) {
	path := createDatabase(t, histdbSchema)
	info, err := NewDatabaseManager(path, nil).GetDatabaseInfo()
	require.NoError(t, err)

	assert.Equal(t, true, info["exists"])
	assert.Equal(t, SchemaZshHistdb, info["schema"])
	assert.Equal(t, int64(3), info["command_count"])

	info, err = NewDatabaseManager(filepath.Join(t.TempDir(), "missing.db"), nil).GetDatabaseInfo()
	require.NoError(t, err)
	assert.Equal(t, false, info["exists"])
}
