package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"go.uber.org/zap"

	"github.com/natural2sql/engine/pkg/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is an append-only history store in its own database file,
// separate from the data source the pipeline queries. Writes are
// serialized with a mutex; sqlite tolerates only one writer at a time.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the history database and applies
// pending migrations.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("history")

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", url.PathEscape(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func runMigrations(db *sql.DB, logger *zap.Logger) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("history schema up-to-date")
			return nil
		}
		return fmt.Errorf("apply history migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("history migrations applied", zap.Uint("version", version))
	return nil
}

// Record implements Recorder.
func (s *SQLiteStore) Record(ctx context.Context, rec *models.QueryHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_history
		 (id, session_id, input_text, final_sql, success, error_message, row_count, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.SessionID, rec.InputText, rec.FinalSQL,
		rec.Success, rec.ErrorMessage, rec.RowCount, rec.Attempts,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// Recent implements Recorder.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, limit int) ([]models.QueryHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, input_text, final_sql, success, error_message, row_count, attempts, created_at
		 FROM query_history WHERE session_id = ?
		 ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryHistoryRecord
	for rows.Next() {
		var (
			rec       models.QueryHistoryRecord
			id        string
			createdAt string
		)
		if err := rows.Scan(&id, &rec.SessionID, &rec.InputText, &rec.FinalSQL,
			&rec.Success, &rec.ErrorMessage, &rec.RowCount, &rec.Attempts, &createdAt); err != nil {
			return nil, err
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt history id %q: %w", id, err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("corrupt history timestamp %q: %w", createdAt, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ Recorder = (*SQLiteStore)(nil)
