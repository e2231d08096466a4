package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/evanschultz/hrfeed/internal/app"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// tsLayout is fixed-width so stored timestamps sort lexically in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Repository persists activities, employees, attendance, and settings in SQLite.
type Repository struct {
	db *sql.DB
}

var _ app.Repository = (*Repository)(nil)

// Open opens the database at path, creating its directory and schema when missing.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create sqlite dir")
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	return openWith(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file:hrfeed-"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite memory")
	}
	return openWith(db)
}

func openWith(db *sql.DB) (*Repository, error) {
	// SQLite allows one writer; a single connection keeps transactions from tripping over each other.
	db.SetMaxOpenConns(1)
	repo := newRepository(db)
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func newRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS employees (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'employee',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		// actor_id is not a foreign key: entries outlive the employees who produced them.
		`CREATE TABLE IF NOT EXISTS activities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor_id TEXT NOT NULL,
			action TEXT NOT NULL,
			subject_type TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			subject_name TEXT NOT NULL,
			description TEXT NOT NULL,
			details_json TEXT NOT NULL DEFAULT '{}',
			occurred_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id TEXT PRIMARY KEY,
			employee_id TEXT NOT NULL,
			date TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(employee_id, date),
			FOREIGN KEY(employee_id) REFERENCES employees(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_occurred_at ON activities(occurred_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_actor_occurred_at ON activities(actor_id, occurred_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_subject_occurred_at ON activities(subject_type, subject_id, occurred_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(date);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate sqlite")
		}
	}
	// Databases created before typed details stored only the JSON payload.
	if _, err := r.db.ExecContext(ctx, `ALTER TABLE activities ADD COLUMN details_kind TEXT NOT NULL DEFAULT 'extra'`); err != nil && !isDuplicateColumnErr(err) {
		return errors.Wrap(err, "migrate sqlite add activities.details_kind")
	}
	return nil
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// isDuplicateColumnErr reports whether the expected condition is satisfied.
func isDuplicateColumnErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
