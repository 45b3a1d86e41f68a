package writer_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	gormadapter "github.com/tigerroll/bikeshare/internal/adapter/database/gorm"
	"github.com/tigerroll/bikeshare/internal/step/writer"
)

type dbResolver struct{ conn database.Connection }

func (r dbResolver) ResolveConnection(context.Context, string) (database.Connection, error) {
	return r.conn, nil
}

func newMockConnection(t *testing.T) (database.Connection, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	conn, err := gormadapter.NewConnection(gormDB, database.DatabaseConfig{Type: "mysql"}, "analytics")
	require.NoError(t, err)
	return conn, mock
}

func newDatabaseWriter(t *testing.T, conn database.Connection) *writer.DatabaseWriter {
	t.Helper()
	w, err := writer.NewDatabaseWriter("export", writer.DatabaseWriterConfig{DatabaseRef: "analytics", BatchSize: 100},
		dbResolver{conn: conn},
		writer.ExportMetadata{ID: "exp-1", Source: "dataset/train.csv", Criteria: "all", StartedAt: time.Now()})
	require.NoError(t, err)
	return w
}

func TestDatabaseWriter_CommitsRowsAndExportRecord(t *testing.T) {
	ctx := context.Background()
	conn, mock := newMockConnection(t)
	w := newDatabaseWriter(t, conn)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `enriched_rentals`")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `enriched_rentals`")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `rental_exports`")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	all := rows("exp-1")
	require.NoError(t, w.Open(ctx))
	require.NoError(t, w.Write(ctx, all[:2]))
	require.NoError(t, w.Write(ctx, all[2:]))
	assert.Equal(t, int64(3), w.Written())
	require.NoError(t, w.Close(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseWriter_RollbackOnFailedInsert(t *testing.T) {
	ctx := context.Background()
	conn, mock := newMockConnection(t)
	w := newDatabaseWriter(t, conn)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `enriched_rentals`")).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	require.NoError(t, w.Open(ctx))
	err := w.Write(ctx, rows("exp-1"))
	assert.ErrorContains(t, err, "connection reset")
	require.NoError(t, w.Rollback(ctx))
	assert.NoError(t, w.Rollback(ctx), "second rollback is a no-op")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseWriter_CloseRollsBackWhenExportRecordFails(t *testing.T) {
	ctx := context.Background()
	conn, mock := newMockConnection(t)
	w := newDatabaseWriter(t, conn)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `rental_exports`")).WillReturnError(errors.New("table missing"))
	mock.ExpectRollback()

	require.NoError(t, w.Open(ctx))
	assert.ErrorContains(t, w.Close(ctx), "failed to record export 'exp-1'")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseWriter_Validation(t *testing.T) {
	_, err := writer.NewDatabaseWriter("export", writer.DatabaseWriterConfig{}, nil, writer.ExportMetadata{ID: "x"})
	assert.ErrorContains(t, err, "database_ref")

	_, err = writer.NewDatabaseWriter("export", writer.DatabaseWriterConfig{DatabaseRef: "analytics"}, nil, writer.ExportMetadata{})
	assert.ErrorContains(t, err, "export ID")

	w, err := writer.NewDatabaseWriter("export", writer.DatabaseWriterConfig{DatabaseRef: "analytics"}, nil, writer.ExportMetadata{ID: "x"})
	require.NoError(t, err)
	assert.Error(t, w.Write(context.Background(), rows("x")))
}
