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

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:annolti.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/annolti?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
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
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS application_instances (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  consumer_key TEXT NOT NULL UNIQUE,
  shared_secret TEXT NOT NULL,
  lms_url TEXT NOT NULL,
  developer_key TEXT NOT NULL DEFAULT '',
  developer_secret BLOB,
  aes_cipher_iv BLOB,
  provisioning INTEGER NOT NULL DEFAULT 1,
  tool_consumer_instance_guid TEXT,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  tool_consumer_instance_guid TEXT NOT NULL,
  resource_link_id TEXT NOT NULL,
  document_url TEXT NOT NULL,
  extra TEXT NOT NULL DEFAULT '{}',
  UNIQUE (tool_consumer_instance_guid, resource_link_id)
);

CREATE TABLE IF NOT EXISTS oauth2_tokens (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  consumer_key TEXT NOT NULL,
  user_id TEXT NOT NULL,
  access_token TEXT NOT NULL,
  refresh_token TEXT,
  expires_in INTEGER NOT NULL DEFAULT 0,
  received_at INTEGER NOT NULL,
  UNIQUE (consumer_key, user_id)
);

CREATE TABLE IF NOT EXISTS grading_infos (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  consumer_key TEXT NOT NULL,
  user_id TEXT NOT NULL,
  context_id TEXT NOT NULL,
  resource_link_id TEXT NOT NULL,
  lis_result_sourcedid TEXT NOT NULL,
  lis_outcome_service_url TEXT NOT NULL,
  h_username TEXT NOT NULL,
  h_display_name TEXT NOT NULL,
  product_family_code TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL,
  UNIQUE (consumer_key, user_id, context_id, resource_link_id)
);

CREATE TABLE IF NOT EXISTS group_infos (
  authority_provided_id TEXT PRIMARY KEY,
  consumer_key TEXT NOT NULL,
  context_id TEXT NOT NULL,
  context_title TEXT NOT NULL DEFAULT '',
  context_label TEXT NOT NULL DEFAULT '',
  tool_consumer_instance_guid TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lti_launches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  context_id TEXT NOT NULL,
  consumer_key TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS file_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  consumer_key TEXT NOT NULL,
  course_id TEXT NOT NULL,
  file_id TEXT NOT NULL,
  display_name TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT '',
  UNIQUE (consumer_key, file_id)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS application_instances (
  id BIGSERIAL PRIMARY KEY,
  consumer_key TEXT NOT NULL UNIQUE,
  shared_secret TEXT NOT NULL,
  lms_url TEXT NOT NULL,
  developer_key TEXT NOT NULL DEFAULT '',
  developer_secret BYTEA,
  aes_cipher_iv BYTEA,
  provisioning BOOLEAN NOT NULL DEFAULT TRUE,
  tool_consumer_instance_guid TEXT,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
  id BIGSERIAL PRIMARY KEY,
  tool_consumer_instance_guid TEXT NOT NULL,
  resource_link_id TEXT NOT NULL,
  document_url TEXT NOT NULL,
  extra TEXT NOT NULL DEFAULT '{}',
  UNIQUE (tool_consumer_instance_guid, resource_link_id)
);

CREATE TABLE IF NOT EXISTS oauth2_tokens (
  id BIGSERIAL PRIMARY KEY,
  consumer_key TEXT NOT NULL,
  user_id TEXT NOT NULL,
  access_token TEXT NOT NULL,
  refresh_token TEXT,
  expires_in INTEGER NOT NULL DEFAULT 0,
  received_at BIGINT NOT NULL,
  UNIQUE (consumer_key, user_id)
);

CREATE TABLE IF NOT EXISTS grading_infos (
  id BIGSERIAL PRIMARY KEY,
  consumer_key TEXT NOT NULL,
  user_id TEXT NOT NULL,
  context_id TEXT NOT NULL,
  resource_link_id TEXT NOT NULL,
  lis_result_sourcedid TEXT NOT NULL,
  lis_outcome_service_url TEXT NOT NULL,
  h_username TEXT NOT NULL,
  h_display_name TEXT NOT NULL,
  product_family_code TEXT NOT NULL DEFAULT '',
  updated_at BIGINT NOT NULL,
  UNIQUE (consumer_key, user_id, context_id, resource_link_id)
);

CREATE TABLE IF NOT EXISTS group_infos (
  authority_provided_id TEXT PRIMARY KEY,
  consumer_key TEXT NOT NULL,
  context_id TEXT NOT NULL,
  context_title TEXT NOT NULL DEFAULT '',
  context_label TEXT NOT NULL DEFAULT '',
  tool_consumer_instance_guid TEXT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS lti_launches (
  id BIGSERIAL PRIMARY KEY,
  context_id TEXT NOT NULL,
  consumer_key TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_records (
  id BIGSERIAL PRIMARY KEY,
  consumer_key TEXT NOT NULL,
  course_id TEXT NOT NULL,
  file_id TEXT NOT NULL,
  display_name TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT '',
  UNIQUE (consumer_key, file_id)
);
`
