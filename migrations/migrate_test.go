package migrations

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFiles() fstest.MapFS {
	return fstest.MapFS{
		"0002_second.sql": {Data: []byte("CREATE TABLE b (id INT);")},
		"0001_first.sql":  {Data: []byte("CREATE TABLE a (id INT);")},
		"README.md":       {Data: []byte("ignored")},
	}
}

func TestApplyRunsPendingMigrationsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT GET_LOCK`).WithArgs(lockName).
		WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("0001_first.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("0002_second.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`CREATE TABLE b`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("0002_second.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec(`SELECT RELEASE_LOCK`).WithArgs(lockName).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, apply(context.Background(), db, testFiles()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStopsOnFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT GET_LOCK`).WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("0001_first.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`CREATE TABLE a`).WillReturnError(errors.New("syntax error"))
	mock.ExpectExec(`SELECT RELEASE_LOCK`).WillReturnResult(sqlmock.NewResult(0, 0))

	err = apply(context.Background(), db, testFiles())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_first.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyFailsWhenLockNotGranted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT GET_LOCK`).WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(0))

	err = apply(context.Background(), db, testFiles())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFiles.ReadDir(".")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 4)
}
