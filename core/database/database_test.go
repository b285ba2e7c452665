package database

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stagebot/core/config"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{
		Host: "db", Port: "5432", User: "bot", Password: "p@ss word", Name: "sessions", SSLMode: "disable",
	})
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/sessions", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestSQLiteDSN(t *testing.T) {
	assert.NotContains(t, SQLiteDSN(":memory:"), "journal_mode")
	dsn := SQLiteDSN("/var/lib/stagebot/sessions.db")
	assert.True(t, strings.HasPrefix(dsn, "file:/var/lib/stagebot/sessions.db?"))
	assert.Contains(t, dsn, "journal_mode")
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, driver := range []string{DriverPostgres, DriverSQLite} {
		files := listMigrationFiles("migrations/" + driver)
		assert.Equal(t, []string{"0001_sessions.up.sql"}, files, driver)
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"0001_a.up.sql", "0002_b.up.sql", "0003_c.up.sql"}
	assert.Equal(t, []string{"0002_b.up.sql", "0003_c.up.sql"}, selectApplied(files, 1, 3))
	assert.Empty(t, selectApplied(files, 3, 3))
	assert.Equal(t, uint64(2), parseVersion("0002_b.up.sql"))
}
