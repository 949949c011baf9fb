package database

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/numbers-lottery/internal/config"
)

func TestStatements(t *testing.T) {
	stmts := Statements()
	require.Len(t, stmts, 6)
	for _, s := range stmts {
		require.True(t, strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS"), s)
		require.NotContains(t, s, "--")
	}
	require.Contains(t, stmts[3], "uq_rounds_open_slot")
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range Statements() {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS")).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("denied"))
	err = Migrate(context.Background(), db)
	require.ErrorContains(t, err, "schema statement 1")
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.Config{DBUser: "lotto", DBPass: "s3cret", DBHost: "db", DBPort: "3306", DBName: "lottery"})
	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "lotto", mc.User)
	require.Equal(t, "s3cret", mc.Passwd)
	require.Equal(t, "db:3306", mc.Addr)
	require.Equal(t, "lottery", mc.DBName)
	require.True(t, mc.ParseTime)
	require.Equal(t, time.UTC, mc.Loc)
}
