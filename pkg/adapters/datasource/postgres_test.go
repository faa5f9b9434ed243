package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/natural2sql/engine/pkg/testhelpers"
)

func newPostgresTestDB(t *testing.T, maxRows int) *PostgresDatabase {
	t.Helper()
	pg := testhelpers.GetPostgresDB(t)

	db, err := NewPostgresDatabase(context.Background(), &Config{
		Type:     "postgres",
		Host:     pg.Host,
		Port:     pg.Port,
		User:     pg.User,
		Password: pg.Password,
		Database: pg.Database,
		SSLMode:  "disable",
	}, maxRows, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgres_Execute(t *testing.T) {
	db := newPostgresTestDB(t, 100)

	result, err := db.Execute(context.Background(),
		"SELECT member_id, age FROM members ORDER BY member_id LIMIT 2", 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, []string{"member_id", "age"}, result.Columns)
	assert.Equal(t, 2, result.RowCount)
	assert.False(t, result.Truncated)
}

func TestPostgres_SessionRefusesWrites(t *testing.T) {
	db := newPostgresTestDB(t, 100)

	_, err := db.Execute(context.Background(),
		"INSERT INTO members (member_id) VALUES (99)", 10*time.Second)
	require.Error(t, err)

	var execErr *QueryExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "read-only")
}

func TestPostgres_Truncation(t *testing.T) {
	db := newPostgresTestDB(t, 3)

	result, err := db.Execute(context.Background(),
		"SELECT member_id FROM members", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowCount)
	assert.True(t, result.Truncated)
}

func TestPostgres_Introspection(t *testing.T) {
	db := newPostgresTestDB(t, 100)

	tables, err := db.GetTables(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(tables))
	for _, tbl := range tables {
		names = append(names, tbl.Name)
	}
	assert.Contains(t, names, "members")
	assert.Contains(t, names, "reservations")

	cols, err := db.GetColumns(context.Background(), "members")
	require.NoError(t, err)
	require.NotEmpty(t, cols)
	assert.Equal(t, "member_id", cols[0].Name)
	assert.True(t, cols[0].IsPrimary)
}
