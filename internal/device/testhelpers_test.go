package device

import (
	"context"
	"database/sql"
	"testing"

	"github.com/nerrad567/gray-logic-counter/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-counter/migrations" // registers the embedded schema
)

// setupTestDB opens an in-memory database with every migration applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}
