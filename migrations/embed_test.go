package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/database"
)

func TestEmbeddedMigrationsApply(t *testing.T) {
	migrations, err := database.LoadMigrations(FS)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations")
	}
	for _, m := range migrations {
		if m.DownSQL == "" {
			t.Errorf("migration %s (%s) has no down SQL", m.Version, m.Name)
		}
	}

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "audit.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx, FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, source, created_at) VALUES ('aud-1', 'set', 'backlight', 'dbus', '2026-10-14T12:00:00Z')`,
	); err != nil {
		t.Errorf("audit_logs not usable: %v", err)
	}
}
