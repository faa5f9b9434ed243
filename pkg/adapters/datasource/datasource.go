// Package datasource provides read-only execution adapters for the
// supported database backends. Every adapter opens its connections with a
// read-only capability at the connection layer, so even a statement that
// slipped past textual validation cannot mutate data.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExecutionTimeout means the statement exceeded its hard wall-clock
// deadline. The pipeline treats it as terminal: rephrasing rarely fixes a
// slow query and retrying burns the attempt budget.
var ErrExecutionTimeout = errors.New("statement execution deadline exceeded")

// QueryExecutionError wraps a backend failure (syntax error, unknown
// column, type mismatch). Message carries the backend's text verbatim;
// that text is the corrective feedback for the next generation attempt.
type QueryExecutionError struct {
	Message string
	Cause   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %s", e.Message)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Cause
}

// Result is the bounded outcome of executing one statement.
type Result struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	// Truncated is set when the underlying result was larger than the
	// row cap.
	Truncated bool          `json:"truncated"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Table represents a database table.
type Table struct {
	Name string `json:"name"`
}

// Column represents a database column.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
	IsPrimary  bool   `json:"is_primary"`
}

// ReadOnlyExecutor runs validated statements against a backend.
// Each implementation owns its connections and must be closed when done.
type ReadOnlyExecutor interface {
	// Execute runs one statement under a hard deadline and returns a
	// bounded result. The scoped connection is released on every exit
	// path, including cancellation. Errors are classified as
	// ErrExecutionTimeout or *QueryExecutionError.
	Execute(ctx context.Context, statement string, deadline time.Duration) (*Result, error)

	// ReadOnly reports whether the executor's connections carry a
	// read-only capability. The security validator refuses to pass any
	// statement to an executor that reports false.
	ReadOnly() bool

	// Dialect names the SQL dialect for prompt construction
	// ("sqlite", "postgres", "mssql").
	Dialect() string

	// Close releases the underlying pool.
	Close() error
}

// SchemaExtractor reads table and column metadata for context building.
type SchemaExtractor interface {
	// GetTables returns all user tables.
	GetTables(ctx context.Context) ([]Table, error)

	// GetColumns returns columns for a table.
	GetColumns(ctx context.Context, table string) ([]Column, error)
}

// Database combines execution and schema extraction; every adapter in
// this package implements both.
type Database interface {
	ReadOnlyExecutor
	SchemaExtractor
}

// Config holds backend connection settings, filled from the application
// configuration by the caller.
type Config struct {
	Type     string // "sqlite", "postgres", "mssql"
	Path     string // sqlite file path
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// classifyExecError maps a backend error onto the pipeline taxonomy.
// Deadline expiry wins over whatever error text the driver wrapped it in.
func classifyExecError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
	}
	return &QueryExecutionError{Message: err.Error(), Cause: err}
}
