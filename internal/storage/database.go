package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database. sqlite3 DSNs are file paths
// (":memory:" works for tests); mysql DSNs follow the go-sql-driver format.
func Open(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn must be provided")
	}

	var (
		db  *sql.DB
		err error
	)
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// sqlite serializes writers anyway; one pooled connection also keeps
		// an in-memory database visible across queries.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables and indexes are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id INTEGER PRIMARY KEY,
				username TEXT NOT NULL DEFAULT '',
				first_name TEXT NOT NULL DEFAULT '',
				first_seen_at DATETIME NOT NULL,
				last_seen_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_groups (
				user_id INTEGER NOT NULL,
				chat_id INTEGER NOT NULL,
				PRIMARY KEY (user_id, chat_id)
			)`,
			`CREATE TABLE IF NOT EXISTS groups (
				chat_id INTEGER PRIMARY KEY,
				title TEXT NOT NULL,
				ai_enabled INTEGER NOT NULL DEFAULT 1,
				summarization_enabled INTEGER NOT NULL DEFAULT 1,
				explanation_enabled INTEGER NOT NULL DEFAULT 1,
				quiz_enabled INTEGER NOT NULL DEFAULT 1,
				auto_tag_enabled INTEGER NOT NULL DEFAULT 1,
				admin_only_indexing INTEGER NOT NULL DEFAULT 0,
				max_search_results INTEGER NOT NULL DEFAULT 10,
				blocked_users TEXT NOT NULL DEFAULT '[]',
				total_files INTEGER NOT NULL DEFAULT 0,
				total_ai_requests INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				last_seen_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS files (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				remote_file_id TEXT NOT NULL,
				remote_unique_id TEXT NOT NULL,
				file_name TEXT NOT NULL,
				mime_type TEXT NOT NULL,
				caption TEXT NOT NULL DEFAULT '',
				uploader_id INTEGER NOT NULL,
				uploader_username TEXT NOT NULL DEFAULT '',
				group_id INTEGER NOT NULL,
				message_id INTEGER NOT NULL,
				uploaded_at DATETIME NOT NULL,
				deleted INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_files_group_deleted ON files(group_id, deleted)`,
			`CREATE INDEX IF NOT EXISTS idx_files_uploaded_at ON files(uploaded_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_files_name ON files(file_name)`,
			`CREATE TABLE IF NOT EXISTS file_tags (
				file_id INTEGER NOT NULL,
				tag TEXT NOT NULL,
				source TEXT NOT NULL DEFAULT 'user',
				PRIMARY KEY (file_id, tag),
				FOREIGN KEY(file_id) REFERENCES files(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_file_tags_tag ON file_tags(tag)`,
			`CREATE TABLE IF NOT EXISTS search_sessions (
				session_id TEXT PRIMARY KEY,
				requester_id INTEGER NOT NULL,
				group_id INTEGER NOT NULL,
				results TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_search_sessions_expiry ON search_sessions(expires_at)`,
			`CREATE TABLE IF NOT EXISTS pending_inputs (
				user_id INTEGER NOT NULL,
				chat_id INTEGER NOT NULL,
				anchor_message_id INTEGER NOT NULL,
				kind TEXT NOT NULL,
				payload TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				PRIMARY KEY (user_id, chat_id, anchor_message_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pending_inputs_expiry ON pending_inputs(expires_at)`,
			`CREATE TABLE IF NOT EXISTS ai_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				group_id INTEGER NOT NULL,
				prompt_kind TEXT NOT NULL,
				text_snippet TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_ai_logs_group_created ON ai_logs(group_id, created_at DESC)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id BIGINT NOT NULL,
				username VARCHAR(255) NOT NULL DEFAULT '',
				first_name VARCHAR(255) NOT NULL DEFAULT '',
				first_seen_at DATETIME NOT NULL,
				last_seen_at DATETIME NOT NULL,
				PRIMARY KEY (user_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_groups (
				user_id BIGINT NOT NULL,
				chat_id BIGINT NOT NULL,
				PRIMARY KEY (user_id, chat_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			"CREATE TABLE IF NOT EXISTS `groups` (" + `
				chat_id BIGINT NOT NULL,
				title VARCHAR(255) NOT NULL,
				ai_enabled TINYINT NOT NULL DEFAULT 1,
				summarization_enabled TINYINT NOT NULL DEFAULT 1,
				explanation_enabled TINYINT NOT NULL DEFAULT 1,
				quiz_enabled TINYINT NOT NULL DEFAULT 1,
				auto_tag_enabled TINYINT NOT NULL DEFAULT 1,
				admin_only_indexing TINYINT NOT NULL DEFAULT 0,
				max_search_results INT NOT NULL DEFAULT 10,
				blocked_users TEXT NOT NULL,
				total_files BIGINT NOT NULL DEFAULT 0,
				total_ai_requests BIGINT NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				last_seen_at DATETIME NOT NULL,
				PRIMARY KEY (chat_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS files (
				id BIGINT NOT NULL AUTO_INCREMENT,
				remote_file_id VARCHAR(255) NOT NULL,
				remote_unique_id VARCHAR(255) NOT NULL,
				file_name VARCHAR(255) NOT NULL,
				mime_type VARCHAR(255) NOT NULL,
				caption TEXT NOT NULL,
				uploader_id BIGINT NOT NULL,
				uploader_username VARCHAR(255) NOT NULL DEFAULT '',
				group_id BIGINT NOT NULL,
				message_id BIGINT NOT NULL,
				uploaded_at DATETIME NOT NULL,
				deleted TINYINT NOT NULL DEFAULT 0,
				PRIMARY KEY (id),
				INDEX idx_files_group_deleted (group_id, deleted),
				INDEX idx_files_uploaded_at (uploaded_at),
				INDEX idx_files_name (file_name)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS file_tags (
				file_id BIGINT NOT NULL,
				tag VARCHAR(100) NOT NULL,
				source VARCHAR(10) NOT NULL DEFAULT 'user',
				PRIMARY KEY (file_id, tag),
				INDEX idx_file_tags_tag (tag),
				CONSTRAINT fk_file_tags_file FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS search_sessions (
				session_id VARCHAR(64) NOT NULL,
				requester_id BIGINT NOT NULL,
				group_id BIGINT NOT NULL,
				results MEDIUMTEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				PRIMARY KEY (session_id),
				INDEX idx_search_sessions_expiry (expires_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS pending_inputs (
				user_id BIGINT NOT NULL,
				chat_id BIGINT NOT NULL,
				anchor_message_id BIGINT NOT NULL,
				kind VARCHAR(50) NOT NULL,
				payload TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				PRIMARY KEY (user_id, chat_id, anchor_message_id),
				INDEX idx_pending_inputs_expiry (expires_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS ai_logs (
				id BIGINT NOT NULL AUTO_INCREMENT,
				user_id BIGINT NOT NULL,
				group_id BIGINT NOT NULL,
				prompt_kind VARCHAR(50) NOT NULL,
				text_snippet VARCHAR(255) NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_ai_logs_group_created (group_id, created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
