package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// SQLiteDSN builds a file DSN with the pragmas the stores rely on: foreign keys,
// a busy timeout, and IMMEDIATE transactions so a read-modify-write holds the
// write lock from its first statement.
func SQLiteDSN(path string) string {
	return "file:" + path + "?mode=rwc" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = SQLiteDSN("testroom.db")
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/testroom?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  personal_id TEXT NOT NULL UNIQUE,
  phone_number TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS roles (
  name TEXT PRIMARY KEY,
  description TEXT NOT NULL DEFAULT ''
);

INSERT INTO roles (name, description) VALUES ('ADMIN', 'Administrator with full access')
  ON CONFLICT (name) DO NOTHING;
INSERT INTO roles (name, description) VALUES ('USER', 'Standard user with basic access')
  ON CONFLICT (name) DO NOTHING;

CREATE TABLE IF NOT EXISTS user_roles (
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  role_name TEXT NOT NULL REFERENCES roles(name),
  PRIMARY KEY (user_id, role_name)
);

CREATE TABLE IF NOT EXISTS test_templates (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sections (
  id TEXT PRIMARY KEY,
  template_id TEXT NOT NULL REFERENCES test_templates(id) ON DELETE CASCADE,
  type TEXT NOT NULL,
  content_json TEXT NOT NULL,
  answers_json TEXT NOT NULL,
  UNIQUE (template_id, type)
);

CREATE TABLE IF NOT EXISTS scheduled_tests (
  id TEXT PRIMARY KEY,
  template_id TEXT NOT NULL REFERENCES test_templates(id),
  start_time INTEGER NOT NULL,
  end_time INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  scheduled_test_id TEXT NOT NULL REFERENCES scheduled_tests(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  user_answers_json TEXT NOT NULL,
  results_json TEXT,
  started_at INTEGER NOT NULL,
  completed_at INTEGER,
  UNIQUE (user_id, scheduled_test_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,          -- AttemptStarted | AttemptCompleted
  key TEXT NOT NULL,          -- natural key: attemptID
  data TEXT NOT NULL,         -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  personal_id TEXT NOT NULL UNIQUE,
  phone_number TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS roles (
  name TEXT PRIMARY KEY,
  description TEXT NOT NULL DEFAULT ''
);

INSERT INTO roles (name, description) VALUES ('ADMIN', 'Administrator with full access')
  ON CONFLICT (name) DO NOTHING;
INSERT INTO roles (name, description) VALUES ('USER', 'Standard user with basic access')
  ON CONFLICT (name) DO NOTHING;

CREATE TABLE IF NOT EXISTS user_roles (
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  role_name TEXT NOT NULL REFERENCES roles(name),
  PRIMARY KEY (user_id, role_name)
);

CREATE TABLE IF NOT EXISTS test_templates (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS sections (
  id TEXT PRIMARY KEY,
  template_id TEXT NOT NULL REFERENCES test_templates(id) ON DELETE CASCADE,
  type TEXT NOT NULL,
  content_json TEXT NOT NULL,
  answers_json TEXT NOT NULL,
  UNIQUE (template_id, type)
);

CREATE TABLE IF NOT EXISTS scheduled_tests (
  id TEXT PRIMARY KEY,
  template_id TEXT NOT NULL REFERENCES test_templates(id),
  start_time BIGINT NOT NULL,
  end_time BIGINT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  scheduled_test_id TEXT NOT NULL REFERENCES scheduled_tests(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  user_answers_json TEXT NOT NULL,
  results_json TEXT,
  started_at BIGINT NOT NULL,
  completed_at BIGINT,
  UNIQUE (user_id, scheduled_test_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
