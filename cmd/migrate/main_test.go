package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_expenses.sql", true, 1, "create_expenses"},
		{"0012_add_index.sql", true, 12, "add_index"},
		{"001_invalid.sql", false, 0, ""},       // wrong number format
		{"0001_test", false, 0, ""},             // missing .sql
		{"0001.sql", false, 0, ""},              // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.valid {
				t.Fatalf("valid = %v, want %v", ok, tt.valid)
			}
			if version != tt.version || name != tt.name {
				t.Errorf("got (%d, %q), want (%d, %q)", version, name, tt.version, tt.name)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0002_second.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.b` (id INT64);")
	writeFile(t, dir, "0001_first.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.a` (id INT64);")
	writeFile(t, dir, "README.md", "not a migration")

	migrations, err := readMigrations(dir, "proj", "receipts")
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("migrations not sorted by version: %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if !strings.Contains(migrations[0].SQL, "`proj.receipts.a`") {
		t.Errorf("placeholders not substituted: %s", migrations[0].SQL)
	}

	// Same file content in another project keeps its checksum.
	other, err := readMigrations(dir, "other", "ds")
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	if other[0].Checksum != migrations[0].Checksum {
		t.Error("checksum must not depend on placeholder values")
	}
	if migrations[0].Checksum == migrations[1].Checksum {
		t.Error("different content must produce different checksums")
	}
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0001_a.sql", "SELECT 1;")
	writeFile(t, dir, "0001_b.sql", "SELECT 2;")

	if _, err := readMigrations(dir, "p", "d"); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestRepositoryMigrationsParse(t *testing.T) {
	dir, err := resolveDir("migrations/bigquery")
	if err != nil {
		t.Fatalf("resolveDir: %v", err)
	}
	migrations, err := readMigrations(dir, "p", "d")
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %s has version %d, want %d", m.Filename, m.Version, i+1)
		}
		if strings.Contains(m.SQL, "{{") {
			t.Errorf("migration %s has unresolved placeholders", m.Filename)
		}
	}
}

func TestPendingAndChangedMigrations(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "a", Checksum: "sum1"},
		{Version: 2, Name: "b", Checksum: "sum2"},
		{Version: 3, Name: "c", Checksum: "sum3"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "sum1"},
		{Version: 2, Checksum: "old"},
	}

	pending := pendingMigrations(migrations, applied)
	if len(pending) != 1 || pending[0].Version != 3 {
		t.Errorf("pending = %+v, want only version 3", pending)
	}

	changed := changedMigrations(migrations, applied)
	if len(changed) != 1 || changed[0].Version != 2 {
		t.Errorf("changed = %+v, want only version 2", changed)
	}
}
