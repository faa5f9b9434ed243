package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/natural2sql/engine/pkg/logging"
)

// PostgresDatabase executes against PostgreSQL. Every connection in the
// pool runs with default_transaction_read_only=on, so the session itself
// refuses writes independently of statement screening.
type PostgresDatabase struct {
	pool    *pgxpool.Pool
	maxRows int
	logger  *zap.Logger
}

// NewPostgresDatabase opens a read-only connection pool.
func NewPostgresDatabase(ctx context.Context, cfg *Config, maxRows int, logger *zap.Logger) (*PostgresDatabase, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	logger.Info("postgres pool opened", zap.String("dsn", logging.SanitizeDSN(connStr)))

	return &PostgresDatabase{
		pool:    pool,
		maxRows: maxRows,
		logger:  logger.Named("postgres"),
	}, nil
}

// Execute runs one statement under the deadline on a pooled connection.
func (d *PostgresDatabase) Execute(ctx context.Context, statement string, deadline time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()

	rows, err := d.pool.Query(ctx, statement)
	if err != nil {
		return nil, classifyExecError(ctx, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	result := &Result{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	for rows.Next() {
		if len(result.Rows) >= d.maxRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, classifyExecError(ctx, err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		result.Rows = append(result.Rows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyExecError(ctx, err)
	}

	result.RowCount = len(result.Rows)
	result.Elapsed = time.Since(start)
	d.logger.Debug("statement executed",
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

// ReadOnly implements ReadOnlyExecutor.
func (d *PostgresDatabase) ReadOnly() bool { return true }

// Dialect implements ReadOnlyExecutor.
func (d *PostgresDatabase) Dialect() string { return "postgres" }

// Close releases the pool.
func (d *PostgresDatabase) Close() error {
	d.pool.Close()
	return nil
}

// GetTables lists user tables from information_schema.
func (d *PostgresDatabase) GetTables(ctx context.Context) ([]Table, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
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

// GetColumns reads column metadata from information_schema, marking
// primary key members via key_column_usage.
func (d *PostgresDatabase) GetColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT c.column_name, c.data_type, c.is_nullable = 'YES',
		        EXISTS (
		            SELECT 1 FROM information_schema.table_constraints tc
		            JOIN information_schema.key_column_usage kcu
		              ON tc.constraint_name = kcu.constraint_name
		            WHERE tc.table_name = c.table_name
		              AND tc.constraint_type = 'PRIMARY KEY'
		              AND kcu.column_name = c.column_name
		        )
		 FROM information_schema.columns c
		 WHERE c.table_schema = 'public' AND c.table_name = $1
		 ORDER BY c.ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("columns for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.IsPrimary); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

var _ Database = (*PostgresDatabase)(nil)
