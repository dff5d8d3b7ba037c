package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/litewrap/internal/paths"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// workspace isolates a test from the user's configuration and returns the config
// directory and database path to pass on the command line.
func workspace(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(paths.EnvConfigDir, "")
	t.Setenv(paths.EnvDataDir, "")
	return filepath.Join(dir, "config"), filepath.Join(dir, "data", "app.db")
}

// run executes the CLI with args and returns what it wrote to stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInit(t *testing.T) {
	cfgDir, db := workspace(t)

	out, err := run(t, "", "init", "--config-dir", cfgDir, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "litewrap initialized: "+db)
	assert.FileExists(t, db)

	data, err := os.ReadFile(filepath.Join(cfgDir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "busy_timeout_ms: 1000")
	assert.Contains(t, string(data), "max_retries: 5")

	// A second init keeps the existing file.
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("max_retries: 2\n"), 0o644))
	_, err = run(t, "", "init", "--config-dir", cfgDir, "--db", db)
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(cfgDir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "max_retries: 2\n", string(data))
}

func TestInitUsesDataDir(t *testing.T) {
	cfgDir, _ := workspace(t)
	dataDir := filepath.Join(t.TempDir(), "store")

	_, err := run(t, "", "init", "--config-dir", cfgDir, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dataDir, paths.DefaultDatabaseName))

	data, err := os.ReadFile(filepath.Join(cfgDir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "data_dir: "+dataDir)

	// Later commands find the database through config.yaml.
	_, err = run(t, "", "exec", "--config-dir", cfgDir, "create table t(x)")
	require.NoError(t, err)
	out, err := run(t, "", "scalar", "--config-dir", cfgDir, "select count(*) from sqlite_master")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestExecQueryScalar(t *testing.T) {
	cfgDir, db := workspace(t)
	base := []string{"--config-dir", cfgDir, "--db", db}
	require.NoError(t, os.MkdirAll(filepath.Dir(db), 0o755))

	out, err := run(t, "create table emp(empno integer, empname text); insert into emp values(1, 'alice'); insert into emp values(2, null);",
		append([]string{"exec"}, base...)...)
	require.NoError(t, err)
	assert.Equal(t, "1 rows changed\n", out)

	out, err = run(t, "", append([]string{"scalar", "select count(*) from emp"}, base...)...)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, err = run(t, "", append([]string{"query", "select empno, empname from emp order by empno"}, base...)...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"empno", "empname"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "alice"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2"}, strings.Fields(lines[2]))

	out, err = run(t, "", append([]string{"query", "--json", "select empno, empname, x'0102' as b from emp order by empno"}, base...)...)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"empno": 1.0, "empname": "alice", "b": "AQI="}, rows[0])
	assert.Nil(t, rows[1]["empname"])
}

func TestExecError(t *testing.T) {
	cfgDir, db := workspace(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(db), 0o755))

	_, err := run(t, "", "exec", "--config-dir", cfgDir, "--db", db, "insert into missing values(1)")
	require.Error(t, err)
	assert.Equal(t, exitSysError, exitCode(err))

	_, err = run(t, "", "scalar", "--config-dir", cfgDir, "--db", db, "select 1 where 0")
	assert.ErrorIs(t, err, types.ErrInvalidScalar)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestTables(t *testing.T) {
	cfgDir, db := workspace(t)
	base := []string{"--config-dir", cfgDir, "--db", db}
	require.NoError(t, os.MkdirAll(filepath.Dir(db), 0o755))

	_, err := run(t, "", append([]string{"exec", `create table a(x); create table "b c"(y); insert into a values(1); insert into a values(2);`}, base...)...)
	require.NoError(t, err)

	out, err := run(t, "", append([]string{"tables", "--json"}, base...)...)
	require.NoError(t, err)
	var infos []tableInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, 2, infos[0].Rows)
	assert.Equal(t, "b c", infos[1].Name)
	assert.Equal(t, 0, infos[1].Rows)
	assert.Len(t, infos[0].Digest, 16)

	out, err = run(t, "", append([]string{"tables"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, db)
}

func TestBackupRestore(t *testing.T) {
	cfgDir, db := workspace(t)
	base := []string{"--config-dir", cfgDir, "--db", db}
	require.NoError(t, os.MkdirAll(filepath.Dir(db), 0o755))
	target := filepath.Join(t.TempDir(), "copy.db")

	_, err := run(t, "", append([]string{"exec", "create table a(x); insert into a values('kept');"}, base...)...)
	require.NoError(t, err)

	out, err := run(t, "", append([]string{"backup", "--verify", target}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "backed up "+db+" to "+target)

	_, err = run(t, "", append([]string{"exec", "delete from a"}, base...)...)
	require.NoError(t, err)

	out, err = run(t, "", append([]string{"restore", target}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "restored "+db)

	out, err = run(t, "", append([]string{"scalar", "select count(*) from a"}, base...)...)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = run(t, "", append([]string{"restore", filepath.Join(t.TempDir(), "missing.db")}, base...)...)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEncodeDecode(t *testing.T) {
	cfgDir, _ := workspace(t)
	dir := t.TempDir()
	raw := []byte{0x00, 0x01, '\'', 0xff, 'a', 0x00}
	in := filepath.Join(dir, "raw.bin")
	require.NoError(t, os.WriteFile(in, raw, 0o644))

	encoded, err := run(t, "", "encode", "--config-dir", cfgDir, in)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "\x00")
	assert.NotContains(t, encoded, "'")

	out := filepath.Join(dir, "out.bin")
	_, err = run(t, encoded, "decode", "--config-dir", cfgDir, "-o", out)
	require.NoError(t, err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = run(t, "", "decode", "--config-dir", cfgDir, "a\x01\x09")
	assert.ErrorIs(t, err, types.ErrMalformedBinary)
}

func TestConfigFromEnvironment(t *testing.T) {
	cfgDir, db := workspace(t)

	t.Setenv("LITEWRAP_MAX_RETRIES", "-1")
	_, err := run(t, "", "scalar", "--config-dir", cfgDir, "--db", db, "select 1")
	assert.ErrorIs(t, err, types.ErrMaxRetriesInvalid)

	t.Setenv("LITEWRAP_MAX_RETRIES", "")
	_, err = run(t, "", "version", "--config-dir", cfgDir, "--engine", "oracle")
	assert.ErrorIs(t, err, types.ErrEngineUnknown)
}

func TestConfigFile(t *testing.T) {
	cfgDir, _ := workspace(t)
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("max_retries: 7\nretry_delay_us: 10\nlog_level: warn\n"), 0o644))

	v, err := loadConfig(cfgDir)
	require.NoError(t, err)
	cfg, err := decodeConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, 10, cfg.RetryDelayUs)
	assert.Equal(t, types.LogLevelWarn, cfg.LogLevel)
	assert.Equal(t, 1000, cfg.BusyTimeoutMs)

	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("max_retries: [\n"), 0o644))
	_, err = loadConfig(cfgDir)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	cfgDir, _ := workspace(t)
	out, err := run(t, "", "version", "--config-dir", cfgDir)
	require.NoError(t, err)
	assert.Contains(t, out, "litewrap v"+Version)
	assert.Contains(t, out, "module: "+modulePath)
	assert.Contains(t, out, "sqlite: ")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitSysError, exitCode(types.NewError(sqlite3.SQLITE_BUSY, "database is locked")))
	assert.Equal(t, exitUserError, exitCode(types.ErrInvalidFieldName))
	assert.Equal(t, exitUserError, exitCode(errors.New("accepts 1 arg(s), received 0")))
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, types.LogLevelWarn)
	require.NoError(t, level.Info(logger).Log("msg", "dropped"))
	require.NoError(t, level.Warn(logger).Log("msg", "kept"))
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "level=warn")
	assert.Contains(t, buf.String(), "msg=kept")
}
