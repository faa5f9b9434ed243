package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/microsoft/go-mssqldb" // sqlserver driver
	"go.uber.org/zap"

	"github.com/natural2sql/engine/pkg/logging"
)

// MSSQLDatabase executes against SQL Server. Connections are opened with
// ApplicationIntent=ReadOnly, which routes to a read-only replica where
// one exists and otherwise relies on the configured login holding only
// SELECT permission.
type MSSQLDatabase struct {
	db      *sql.DB
	maxRows int
	logger  *zap.Logger
}

// NewMSSQLDatabase opens a read-intent connection pool.
func NewMSSQLDatabase(cfg *Config, maxRows int, logger *zap.Logger) (*MSSQLDatabase, error) {
	query := url.Values{}
	query.Set("database", cfg.Database)
	query.Set("ApplicationIntent", "ReadOnly")

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}

	db, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}

	logger.Info("sqlserver pool opened", zap.String("dsn", logging.SanitizeDSN(u.String())))

	return &MSSQLDatabase{
		db:      db,
		maxRows: maxRows,
		logger:  logger.Named("mssql"),
	}, nil
}

// Execute runs one statement on a scoped connection under the deadline.
func (d *MSSQLDatabase) Execute(ctx context.Context, statement string, deadline time.Duration) (*Result, error) {
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

// ReadOnly implements ReadOnlyExecutor.
func (d *MSSQLDatabase) ReadOnly() bool { return true }

// Dialect implements ReadOnlyExecutor.
func (d *MSSQLDatabase) Dialect() string { return "mssql" }

// Close releases the pool.
func (d *MSSQLDatabase) Close() error { return d.db.Close() }

// GetTables lists user tables from INFORMATION_SCHEMA.
func (d *MSSQLDatabase) GetTables(ctx context.Context) ([]Table, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`)
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

// GetColumns reads column metadata from INFORMATION_SCHEMA.
func (d *MSSQLDatabase) GetColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT c.COLUMN_NAME, c.DATA_TYPE,
		        CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
		        CASE WHEN kcu.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END
		 FROM INFORMATION_SCHEMA.COLUMNS c
		 LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		   ON kcu.TABLE_NAME = c.TABLE_NAME
		  AND kcu.COLUMN_NAME = c.COLUMN_NAME
		  AND OBJECTPROPERTY(OBJECT_ID(kcu.CONSTRAINT_SCHEMA + '.' + kcu.CONSTRAINT_NAME), 'IsPrimaryKey') = 1
		 WHERE c.TABLE_NAME = @p1
		 ORDER BY c.ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("columns for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			c        Column
			nullable int
			primary  int
		)
		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &primary); err != nil {
			return nil, err
		}
		c.IsNullable = nullable == 1
		c.IsPrimary = primary == 1
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

var _ Database = (*MSSQLDatabase)(nil)
