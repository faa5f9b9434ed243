package datasource

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/natural2sql/engine/pkg/testhelpers"
)

func newSQLiteTestDB(t *testing.T, maxRows int) *SQLiteDatabase {
	t.Helper()
	db, err := NewSQLiteDatabase(&Config{Path: testhelpers.NewSQLiteFixture(t)}, maxRows, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_Execute(t *testing.T) {
	db := newSQLiteTestDB(t, 100)

	result, err := db.Execute(context.Background(),
		"SELECT member_id, age FROM members ORDER BY member_id LIMIT 3", 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, []string{"member_id", "age"}, result.Columns)
	assert.Equal(t, 3, result.RowCount)
	assert.False(t, result.Truncated)
	assert.Equal(t, int64(1), result.Rows[0]["member_id"])
	assert.Equal(t, int64(34), result.Rows[0]["age"])
	assert.Greater(t, result.Elapsed, time.Duration(0))
}

func TestSQLite_ExecuteTextColumns(t *testing.T) {
	db := newSQLiteTestDB(t, 100)

	result, err := db.Execute(context.Background(),
		"SELECT name FROM restaurants ORDER BY restaurant_id LIMIT 1", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount)
	assert.Equal(t, "Sakura Sushi", result.Rows[0]["name"])
}

func TestSQLite_DefensiveTruncation(t *testing.T) {
	db := newSQLiteTestDB(t, 2)

	// the row cap holds even when the statement's own LIMIT is larger
	result, err := db.Execute(context.Background(),
		"SELECT member_id FROM members LIMIT 1000", 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount)
	assert.True(t, result.Truncated)
}

func TestSQLite_WriteRefused(t *testing.T) {
	db := newSQLiteTestDB(t, 100)

	_, err := db.Execute(context.Background(),
		"INSERT INTO members (member_id) VALUES (99)", 10*time.Second)
	require.Error(t, err)

	var execErr *QueryExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "readonly")
}

func TestSQLite_BackendErrorVerbatim(t *testing.T) {
	db := newSQLiteTestDB(t, 100)

	_, err := db.Execute(context.Background(),
		"SELECT missing_column FROM members", 10*time.Second)
	require.Error(t, err)

	var execErr *QueryExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "missing_column")
	assert.False(t, errors.Is(err, ErrExecutionTimeout))
}

func TestSQLite_DeadlineExceeded(t *testing.T) {
	db := newSQLiteTestDB(t, 100)

	_, err := db.Execute(context.Background(),
		"SELECT * FROM members", time.Nanosecond)
	assert.ErrorIs(t, err, ErrExecutionTimeout)
}

func TestSQLite_MissingFile(t *testing.T) {
	_, err := NewSQLiteDatabase(&Config{Path: filepath.Join(t.TempDir(), "absent.db")}, 100, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ReadOnlyCapability(t *testing.T) {
	db := newSQLiteTestDB(t, 100)
	assert.True(t, db.ReadOnly())
	assert.Equal(t, "sqlite", db.Dialect())
}
