package store

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"ccswitch/internal/model"
)

const legacyDocument = `{
  "schemaVersion": "1.0",
  "activeAccountNumber": 2,
  "lastUpdated": "2025-11-01T10:00:00Z",
  "sequence": [1, 2],
  "accounts": {
    "1": {
      "email": "a@example.com",
      "uuid": "7b1f8a80-4f6e-49a1-bb2e-9a2d2f8f3c11",
      "added": "2025-10-01T08:00:00Z"
    },
    "2": {
      "email": "b@example.com",
      "uuid": "c3a0de0a-51f4-4dd6-9f2c-2f1d6bb0a902",
      "added": "2025-10-02T08:00:00Z"
    }
  }
}`

func migrationBackups(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "accounts.json.backup-*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}

func TestLoadMigratesLegacyDocument(t *testing.T) {
	s, dir := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte(legacyDocument), 0o600); err != nil {
		t.Fatalf("seed legacy file: %v", err)
	}

	reg, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if reg.SchemaVersion != model.SchemaVersion {
		t.Fatalf("version not upgraded: %q", reg.SchemaVersion)
	}
	if reg.Active() != 2 {
		t.Fatalf("active pointer lost: %d", reg.Active())
	}
	for _, n := range []int{1, 2} {
		rec, ok := reg.Account(n)
		if !ok {
			t.Fatalf("account %d lost", n)
		}
		if rec.Alias != nil || rec.LastUsed != nil {
			t.Fatalf("account %d: new nullable fields must start null", n)
		}
		if rec.UsageCount != 0 || rec.HealthStatus != model.HealthUnknown {
			t.Fatalf("account %d: unexpected defaults %+v", n, rec)
		}
	}
	if len(reg.History) != 0 {
		t.Fatalf("history must start empty, got %v", reg.History)
	}

	backups := migrationBackups(t, dir)
	if len(backups) != 1 {
		t.Fatalf("expected exactly one migration backup, got %v", backups)
	}
	original, err := os.ReadFile(backups[0])
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(original) != legacyDocument {
		t.Fatal("backup must preserve the original bytes")
	}
}

func TestMigrationPersistsUpgradeAndRunsOnce(t *testing.T) {
	s, dir := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte(legacyDocument), 0o600); err != nil {
		t.Fatalf("seed legacy file: %v", err)
	}
	if _, err := s.Load(); err != nil {
		t.Fatalf("first load: %v", err)
	}

	// A fresh store simulates the next process invocation.
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	again := NewRegistryStore(dir, log)
	reg, err := again.Load()
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if reg.SchemaVersion != model.SchemaVersion {
		t.Fatalf("upgrade not persisted: %q", reg.SchemaVersion)
	}
	if backups := migrationBackups(t, dir); len(backups) != 1 {
		t.Fatalf("migration must back up exactly once, got %v", backups)
	}
}

func TestLoadRejectsUnknownSchemaVersion(t *testing.T) {
	s, dir := newTestStore(t)
	doc := `{"schemaVersion": "9.4", "lastUpdated": "x", "sequence": [], "accounts": {}, "history": []}`
	if err := os.WriteFile(s.Path(), []byte(doc), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if _, err := s.Load(); !errors.Is(err, ErrUnknownSchema) {
		t.Fatalf("expected ErrUnknownSchema, got %v", err)
	}

	after, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(after) != doc {
		t.Fatal("unknown versions must never be rewritten")
	}
	if backups := migrationBackups(t, dir); len(backups) != 0 {
		t.Fatalf("no backup expected for unknown versions, got %v", backups)
	}
}
