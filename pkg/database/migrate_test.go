package database

import (
	"strings"
	"testing"
)

func TestMigrationNamesSorted(t *testing.T) {
	names, err := MigrationNames()
	if err != nil {
		t.Fatalf("migration names: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("no embedded migrations")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("migrations out of order: %v", names)
		}
	}
}

func TestMigrationsCreateMetadataTables(t *testing.T) {
	raw, err := migrationsFS.ReadFile("migrations/001_mux_metadata.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := string(raw)
	for _, table := range []string{"custom_job_question_submission_mux_metadata", "mock_interview_message_mux_metadata"} {
		if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("migration does not create %s", table)
		}
	}
}
