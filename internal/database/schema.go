package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Table definitions for the identity core.  Usernames compare
// case-sensitively (utf8mb4_bin on MySQL, BINARY on SQLite).  Each token
// digest column is unique so a session resolves from either token.

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS principals (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		username      VARCHAR(64)  COLLATE utf8mb4_bin NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(16)  NOT NULL,
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		last_login_at DATETIME     NULL,
		created_at    DATETIME     NOT NULL,
		updated_at    DATETIME     NOT NULL,
		CONSTRAINT uq_principals_username UNIQUE (username),
		CONSTRAINT uq_principals_email UNIQUE (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id                 CHAR(36)     NOT NULL PRIMARY KEY,
		principal_id       CHAR(36)     NOT NULL,
		access_token_hash  CHAR(64)     NOT NULL,
		refresh_token_hash CHAR(64)     NOT NULL,
		client_addr        VARCHAR(64)  NOT NULL DEFAULT '',
		user_agent         VARCHAR(512) NOT NULL DEFAULT '',
		expires_at         DATETIME     NOT NULL,
		created_at         DATETIME     NOT NULL,
		updated_at         DATETIME     NOT NULL,
		CONSTRAINT uq_sessions_access_token_hash UNIQUE (access_token_hash),
		CONSTRAINT uq_sessions_refresh_token_hash UNIQUE (refresh_token_hash),
		KEY idx_sessions_principal (principal_id),
		KEY idx_sessions_expires (expires_at),
		CONSTRAINT fk_sessions_principal FOREIGN KEY (principal_id) REFERENCES principals(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS principals (
		id            TEXT     NOT NULL PRIMARY KEY,
		username      TEXT     NOT NULL,
		email         TEXT     NOT NULL,
		password_hash TEXT     NOT NULL,
		role          TEXT     NOT NULL,
		is_active     INTEGER  NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL,
		CONSTRAINT uq_principals_username UNIQUE (username),
		CONSTRAINT uq_principals_email UNIQUE (email)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id                 TEXT     NOT NULL PRIMARY KEY,
		principal_id       TEXT     NOT NULL REFERENCES principals(id),
		access_token_hash  TEXT     NOT NULL,
		refresh_token_hash TEXT     NOT NULL,
		client_addr        TEXT     NOT NULL DEFAULT '',
		user_agent         TEXT     NOT NULL DEFAULT '',
		expires_at         DATETIME NOT NULL,
		created_at         DATETIME NOT NULL,
		updated_at         DATETIME NOT NULL,
		CONSTRAINT uq_sessions_access_token_hash UNIQUE (access_token_hash),
		CONSTRAINT uq_sessions_refresh_token_hash UNIQUE (refresh_token_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_principal ON sessions(principal_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
}

// EnsureSchema creates the identity tables when they are missing.  It never
// alters existing tables.
func EnsureSchema(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case "mysql":
		stmts = mysqlSchema
	case "sqlite":
		stmts = sqliteSchema
	default:
		return fmt.Errorf("database: no schema for driver %q", driver)
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
