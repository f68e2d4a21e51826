package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrationFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/0010_slots.sql":    {Data: []byte("CREATE INDEX slots_idx ON appointments (date);")},
		"migrations/0002_audit.sql":    {Data: []byte("CREATE TABLE audit_logs (id UUID);")},
		"migrations/0001_init.sql":     {Data: []byte("CREATE TABLE appointments (id UUID);")},
		"migrations/README.md":         {Data: []byte("notes")},
		"migrations/seed.sql":          {Data: []byte("INSERT INTO users VALUES (1);")},
		"migrations/draft_users.sql":   {Data: []byte("CREATE TABLE users (id UUID);")},
		"migrations/0003_old/down.sql": {Data: []byte("DROP TABLE audit_logs;")},
	}
}

func setupTestMigrator(t *testing.T) (*Migrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Migrator{db: sqlx.NewDb(db, "postgres"), files: testMigrationFS()}, mock
}

func TestMigrator_LoadMigrationsSortsAndSkips(t *testing.T) {
	m := &Migrator{files: testMigrationFS()}

	migrations, err := m.LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "0001_init.sql", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, 10, migrations[2].Version)
	assert.Contains(t, migrations[2].SQL, "slots_idx")
}

func TestMigrator_EmbeddedInitInstallsOverlapConstraint(t *testing.T) {
	migrations, err := NewMigrator(nil).LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "btree_gist")
	assert.Contains(t, migrations[0].SQL, "appointments_no_overlap")
}

func TestMigrator_UpSkipsApplied(t *testing.T) {
	m, mock := setupTestMigrator(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

	for _, mig := range []struct {
		version int
		name    string
		sql     string
	}{
		{2, "0002_audit.sql", "CREATE TABLE audit_logs"},
		{10, "0010_slots.sql", "CREATE INDEX slots_idx"},
	} {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(mig.sql)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
			WithArgs(mig.version, mig.name).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	count, err := m.Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_UpNothingPending(t *testing.T) {
	m, mock := setupTestMigrator(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(2).AddRow(10))

	count, err := m.Up(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_UpStopsOnFailure(t *testing.T) {
	m, mock := setupTestMigrator(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE appointments")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs(1, "0001_init.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE audit_logs")).
		WillReturnError(errors.New("relation already exists"))
	mock.ExpectRollback()

	count, err := m.Up(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 2 (0002_audit.sql)")
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
