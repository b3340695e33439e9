package testutil

import (
	"database/sql"
	"os"
	"strconv"
	"testing"

	"github.com/xxxsen/mfolio/internal/config"
	"github.com/xxxsen/mfolio/internal/db"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// OpenTestDB connects to the postgres named by TEST_DB_* and applies the
// migrations. Tests are skipped when TEST_DB_HOST is unset.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	port, err := strconv.Atoi(envOr("TEST_DB_PORT", "5432"))
	if err != nil {
		t.Fatalf("invalid TEST_DB_PORT: %v", err)
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     envOr("TEST_DB_USER", "mfolio"),
		Password: envOr("TEST_DB_PASSWORD", "mfolio_pass"),
		DBName:   envOr("TEST_DB_NAME", "mfolio_test"),
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}

// ResetTables empties every table the tests write to.
func ResetTables(t *testing.T, conn *sql.DB) {
	t.Helper()
	const stmt = `TRUNCATE message_projects, chat_messages, chat_sessions, content_embeddings, embedding_cache, project_images, projects, facts`
	if _, err := conn.Exec(stmt); err != nil {
		t.Fatalf("reset tables: %v", err)
	}
}
