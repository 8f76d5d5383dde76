// Package db opens the local SQLite history database.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open connects to the SQLite database and runs schema migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			original_name TEXT NOT NULL,
			stored_path TEXT NOT NULL UNIQUE,
			format TEXT NOT NULL CHECK(format IN ('pdf','word','image')),
			uploaded_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			subject TEXT NOT NULL,
			mode TEXT NOT NULL CHECK(mode IN ('understand','exam')),
			custom_prompt TEXT NOT NULL DEFAULT '',
			source_name TEXT NOT NULL DEFAULT '',
			document_id INTEGER,
			question_count INTEGER NOT NULL,
			failed_count INTEGER NOT NULL DEFAULT 0,
			low_confidence INTEGER NOT NULL DEFAULT 0,
			output_path TEXT NOT NULL,
			page_count INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(document_id) REFERENCES documents(id) ON DELETE SET NULL
		);`,
		`CREATE TABLE IF NOT EXISTS answer_records (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			raw_marker TEXT NOT NULL DEFAULT '',
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			failed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(run_id, idx),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}
	return nil
}
