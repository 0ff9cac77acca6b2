package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"ccswitch/internal/model"
)

func TestVerifyClassifiesBackupState(t *testing.T) {
	te := newTestEngine()
	te.seedAccount(1, "healthy@example.com")
	te.seedAccount(2, "nocred@example.com")
	delete(te.secrets.creds, bkey(2, "nocred@example.com"))
	te.seedAccount(3, "badconfig@example.com")
	te.secrets.configs[bkey(3, "badconfig@example.com")] = []byte(`{"theme":"dark"}`)
	te.seedAccount(4, "noconfig@example.com")
	delete(te.secrets.configs, bkey(4, "noconfig@example.com"))

	report, err := te.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(report.Checks) != 4 {
		t.Fatalf("got %d checks, want 4", len(report.Checks))
	}
	if report.Healthy() {
		t.Fatal("report should not be healthy")
	}

	want := map[int]model.HealthStatus{
		1: model.HealthHealthy,
		2: model.HealthUnhealthy,
		3: model.HealthDegraded,
		4: model.HealthUnhealthy,
	}
	for _, check := range report.Checks {
		if check.Status != want[check.Number] {
			t.Fatalf("account %d: status %q, want %q (%s)", check.Number, check.Status, want[check.Number], check.Detail)
		}
	}

	// The classifications are persisted on the records.
	for number, status := range want {
		rec, _ := te.registry.reg.Account(number)
		if rec.HealthStatus != status {
			t.Fatalf("account %d: persisted health %q, want %q", number, rec.HealthStatus, status)
		}
	}
}

func TestVerifySingleAccount(t *testing.T) {
	te := newTestEngine()
	te.seedAccount(1, "one@example.com")
	te.seedAccount(2, "two@example.com")
	delete(te.secrets.creds, bkey(2, "two@example.com"))

	report, err := te.Verify(1)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(report.Checks) != 1 || report.Checks[0].Number != 1 {
		t.Fatalf("unexpected checks: %+v", report.Checks)
	}
	if !report.Healthy() {
		t.Fatal("account 1 should be healthy")
	}

	// Account 2 was not checked, so its stored status is untouched.
	rec, _ := te.registry.reg.Account(2)
	if rec.HealthStatus != model.HealthUnknown {
		t.Fatalf("account 2 health = %q, want unknown", rec.HealthStatus)
	}
}

func TestVerifyUnknownAccount(t *testing.T) {
	te := newTestEngine()

	_, err := te.Verify(42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyNotesExpiredCredentials(t *testing.T) {
	te := newTestEngine()
	te.seedAccount(1, "one@example.com")
	expired := testNow.Add(-time.Hour).UnixMilli()
	te.secrets.creds[bkey(1, "one@example.com")] = []byte(fmt.Sprintf(`{"claudeAiOauth":{"accessToken":"t","expiresAt":%d}}`, expired))

	report, err := te.Verify(1)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	check := report.Checks[0]
	if check.Status != model.HealthHealthy {
		t.Fatalf("status = %q, expiry alone must not degrade an account", check.Status)
	}
	if check.Detail == "" {
		t.Fatal("expected an expiry note in the detail")
	}
}
