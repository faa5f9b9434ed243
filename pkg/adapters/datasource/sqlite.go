package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"go.uber.org/zap"
)

// SQLiteDatabase executes against an embedded SQLite file opened in
// read-only mode. mode=ro refuses writes at the file level and
// _query_only sets PRAGMA query_only on every connection, so both the
// file handle and the session are incapable of mutation.
type SQLiteDatabase struct {
	db      *sql.DB
	path    string
	maxRows int
	logger  *zap.Logger
}

// NewSQLiteDatabase opens the database file read-only. The file must
// already exist; a read-only handle cannot create one.
func NewSQLiteDatabase(cfg *Config, maxRows int, logger *zap.Logger) (*SQLiteDatabase, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("database file not found: %s", cfg.Path)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_query_only=1", url.PathEscape(cfg.Path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	return &SQLiteDatabase{
		db:      db,
		path:    cfg.Path,
		maxRows: maxRows,
		logger:  logger.Named("sqlite"),
	}, nil
}

// Execute runs one statement on a scoped connection under the deadline.
func (d *SQLiteDatabase) Execute(ctx context.Context, statement string, deadline time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, classifyExecError(ctx, err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, classifyExecError(ctx, err)
	}
	defer rows.Close()

	result, err := collectRows(rows, d.maxRows)
	if err != nil {
		return nil, classifyExecError(ctx, err)
	}

	result.Elapsed = time.Since(start)
	d.logger.Debug("statement executed",
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

// ReadOnly implements ReadOnlyExecutor; the connection capability is
// fixed by the DSN.
func (d *SQLiteDatabase) ReadOnly() bool { return true }

// Dialect implements ReadOnlyExecutor.
func (d *SQLiteDatabase) Dialect() string { return "sqlite" }

// Close releases the pool.
func (d *SQLiteDatabase) Close() error { return d.db.Close() }

// GetTables lists user tables from sqlite_master.
func (d *SQLiteDatabase) GetTables(ctx context.Context) ([]Table, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// GetColumns reads column metadata via the table_info pragma function.
func (d *SQLiteDatabase) GetColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name, type, "notnull", pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("columns for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			c       Column
			notNull int
			pk      int
		)
		if err := rows.Scan(&c.Name, &c.DataType, &notNull, &pk); err != nil {
			return nil, err
		}
		c.IsNullable = notNull == 0
		c.IsPrimary = pk > 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

var _ Database = (*SQLiteDatabase)(nil)
