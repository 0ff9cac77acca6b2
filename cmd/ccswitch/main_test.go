package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ccswitch/internal/core"
	"ccswitch/internal/model"
	"ccswitch/internal/platform"
	"ccswitch/internal/secrets"
	"ccswitch/internal/store"
)

// cliEnv isolates one test from the host: its own data dir, live config
// path and lock dir, all routed through the CCSWITCH_* overrides.
type cliEnv struct {
	dataDir    string
	configPath string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	root := t.TempDir()
	env := cliEnv{
		dataDir:    filepath.Join(root, "state"),
		configPath: filepath.Join(root, "claude.json"),
	}
	t.Setenv("CCSWITCH_CONFIG", "")
	t.Setenv("CCSWITCH_DIR", env.dataDir)
	t.Setenv("CCSWITCH_CLAUDE_CONFIG", env.configPath)
	t.Setenv("CCSWITCH_CLAUDE_CREDENTIALS", filepath.Join(root, "credentials.json"))
	t.Setenv("CCSWITCH_CLAUDE_LOCK_DIR", filepath.Join(root, "ide"))
	t.Setenv("CCSWITCH_LOG_LEVEL", "error")
	t.Setenv("CCSWITCH_LOG_FORMAT", "")
	return env
}

func (env cliEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr, strings.NewReader(stdin))
	return stdout.String(), stderr.String(), err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (env cliEnv) registryStore(t *testing.T) *store.RegistryStore {
	t.Helper()
	return store.NewRegistryStore(env.dataDir, discardLogger())
}

func (env cliEnv) secretsStore(t *testing.T) secrets.Store {
	t.Helper()
	sec, err := secrets.NewStore(secrets.Options{
		BackupsDir:      platform.BackupsDir(env.dataDir),
		CredentialsPath: filepath.Join(env.dataDir, "live-credentials.json"),
	})
	if err != nil {
		t.Fatalf("secrets store: %v", err)
	}
	return sec
}

func configBlob(number int, email string) []byte {
	return []byte(fmt.Sprintf(
		`{"installMethod":"native","oauthAccount":{"accountUuid":"11111111-2222-4333-8444-%012d","emailAddress":%q,"organizationName":"Example Org"}}`,
		number, email))
}

func credentialBlob(number int) []byte {
	return []byte(fmt.Sprintf(`{"claudeAiOauth":{"accessToken":"token-%d","subscriptionType":"pro"}}`, number))
}

// seedAccount registers an account directly through the stores, the way a
// previous `add` would have left it.
func (env cliEnv) seedAccount(t *testing.T, number int, email, alias string, withBlobs bool) {
	t.Helper()
	if _, err := platform.EnsureDataDirs(env.dataDir); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	st := env.registryStore(t)
	reg, err := st.LoadOrInit()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	rec := model.AccountRecord{
		Email:        email,
		UUID:         fmt.Sprintf("11111111-2222-4333-8444-%012d", number),
		Added:        time.Now().UTC(),
		HealthStatus: model.HealthUnknown,
	}
	if alias != "" {
		rec.Alias = &alias
	}
	reg.SetAccount(number, rec)
	if err := st.Save(reg); err != nil {
		t.Fatalf("save registry: %v", err)
	}

	if !withBlobs {
		return
	}
	sec := env.secretsStore(t)
	if err := sec.WriteCredentialBackup(number, email, credentialBlob(number)); err != nil {
		t.Fatalf("write credential backup: %v", err)
	}
	if err := sec.WriteConfigBackup(number, email, configBlob(number, email)); err != nil {
		t.Fatalf("write config backup: %v", err)
	}
}

func (env cliEnv) setActive(t *testing.T, number int) {
	t.Helper()
	st := env.registryStore(t)
	reg, err := st.Load()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	reg.SetActive(number)
	if err := st.Save(reg); err != nil {
		t.Fatalf("save registry: %v", err)
	}
}

func TestRunRequiresCommand(t *testing.T) {
	env := newCLIEnv(t)
	_, stderr, err := env.run(t, "")
	if err == nil {
		t.Fatal("expected an error for a bare invocation")
	}
	if !strings.Contains(stderr, "ccswitch commands:") {
		t.Errorf("stderr should carry the usage text, got %q", stderr)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run(t, "", "frobnicate")
	if err == nil || !strings.Contains(err.Error(), "frobnicate") {
		t.Fatalf("expected the unknown command to be named, got %v", err)
	}
}

func TestHelpPrintsCommands(t *testing.T) {
	env := newCLIEnv(t)
	stdout, _, err := env.run(t, "", "help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, cmd := range []string{"add", "use", "next", "export", "import", "undo"} {
		if !strings.Contains(stdout, cmd) {
			t.Errorf("usage text lacks %q", cmd)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	env := newCLIEnv(t)
	stdout, _, err := env.run(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(stdout, "ccswitch") || !strings.Contains(stdout, version) {
		t.Errorf("unexpected version output %q", stdout)
	}
}

func TestListWithoutRegistry(t *testing.T) {
	env := newCLIEnv(t)
	stdout, _, err := env.run(t, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(stdout, "no accounts") {
		t.Errorf("expected the empty-state hint, got %q", stdout)
	}
	// Read-only commands never create the registry file.
	if env.registryStore(t).Exists() {
		t.Error("list created a registry file")
	}
}

func TestListShowsAccounts(t *testing.T) {
	env := newCLIEnv(t)
	env.seedAccount(t, 1, "one@example.com", "", true)
	env.seedAccount(t, 2, "two@example.com", "work", true)
	env.setActive(t, 2)

	stdout, _, err := env.run(t, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(stdout, "one@example.com") || !strings.Contains(stdout, "two@example.com") {
		t.Errorf("listing lacks seeded accounts:\n%s", stdout)
	}
	if !strings.Contains(stdout, "work") {
		t.Errorf("listing lacks the alias:\n%s", stdout)
	}
	if !strings.Contains(stdout, "* 2") {
		t.Errorf("active account 2 is not marked:\n%s", stdout)
	}

	stdout, _, err = env.run(t, "", "list", "--json")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var infos []core.AccountInfo
	if err := json.Unmarshal([]byte(stdout), &infos); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(infos))
	}
	if infos[0].Active || !infos[1].Active {
		t.Errorf("active flags wrong: %+v", infos)
	}
	if infos[1].Alias != "work" {
		t.Errorf("alias not reported: %+v", infos[1])
	}
}

func TestListRejectsUnknownFlag(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run(t, "", "list", "--bogus")
	if err == nil {
		t.Fatal("expected a flag parse error")
	}
}

func TestStatusSignedOut(t *testing.T) {
	env := newCLIEnv(t)
	stdout, _, err := env.run(t, "", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(stdout, "signed out") {
		t.Errorf("expected signed out, got %q", stdout)
	}

	stdout, _, err = env.run(t, "", "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var res core.StatusResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if res.SignedIn {
		t.Error("status reported a signed-in identity with no live config")
	}
}

func TestStatusSignedInManaged(t *testing.T) {
	env := newCLIEnv(t)
	env.seedAccount(t, 1, "one@example.com", "", true)
	env.setActive(t, 1)
	if err := os.WriteFile(env.configPath, configBlob(1, "one@example.com"), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := env.run(t, "", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(stdout, "signed in as one@example.com (account 1)") {
		t.Errorf("unexpected status output %q", stdout)
	}
	if strings.Contains(stdout, "repaired") {
		t.Errorf("pointer already agreed, nothing to repair: %q", stdout)
	}
}

func TestAliasLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	env.seedAccount(t, 1, "one@example.com", "", false)

	stdout, _, err := env.run(t, "", "alias", "1", "team")
	if err != nil {
		t.Fatalf("alias: %v", err)
	}
	if !strings.Contains(stdout, `"team"`) {
		t.Errorf("alias confirmation missing, got %q", stdout)
	}

	// The alias now resolves as a reference.
	stdout, _, err = env.run(t, "", "alias", "team", "--clear")
	if err != nil {
		t.Fatalf("alias --clear: %v", err)
	}
	if !strings.Contains(stdout, "cleared alias") {
		t.Errorf("clear confirmation missing, got %q", stdout)
	}

	stdout, _, err = env.run(t, "", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var infos []core.AccountInfo
	if err := json.Unmarshal([]byte(stdout), &infos); err != nil {
		t.Fatal(err)
	}
	if infos[0].Alias != "" {
		t.Errorf("alias should be gone, got %q", infos[0].Alias)
	}
}

func TestAliasUsage(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run(t, "", "alias")
	if err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Fatalf("expected a usage error, got %v", err)
	}
}

func TestRemovePromptAborts(t *testing.T) {
	env := newCLIEnv(t)
	env.seedAccount(t, 1, "one@example.com", "", true)

	stdout, _, err := env.run(t, "n\n", "remove", "1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !strings.Contains(stdout, "aborted") {
		t.Errorf("expected the abort notice, got %q", stdout)
	}

	stdout, _, err = env.run(t, "", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "one@example.com") {
		t.Error("account was removed despite the aborted prompt")
	}
}

func TestRemoveConfirmed(t *testing.T) {
	env := newCLIEnv(t)
	env.seedAccount(t, 1, "one@example.com", "", true)

	stdout, _, err := env.run(t, "y\n", "remove", "one@example.com")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !strings.Contains(stdout, "removed account 1 (one@example.com)") {
		t.Errorf("unexpected remove output %q", stdout)
	}

	sec := env.secretsStore(t)
	if _, err := sec.ReadCredentialBackup(1, "one@example.com"); !errors.Is(err, secrets.ErrNotFound) {
		t.Errorf("credential backup should be gone, got %v", err)
	}
}

func TestRemoveYesSkipsPrompt(t *testing.T) {
	env := newCLIEnv(t)
	env.seedAccount(t, 1, "one@example.com", "", true)

	stdout, _, err := env.run(t, "", "remove", "1", "--yes")
	if err != nil {
		t.Fatalf("remove --yes: %v", err)
	}
	if strings.Contains(stdout, "[y/N]") {
		t.Errorf("prompt shown despite --yes: %q", stdout)
	}
	if !strings.Contains(stdout, "removed account 1") {
		t.Errorf("unexpected output %q", stdout)
	}
}

func TestUseUnknownReference(t *testing.T) {
	env := newCLIEnv(t)
	env.seedAccount(t, 1, "one@example.com", "", true)

	_, _, err := env.run(t, "", "use", "9")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyFindsProblems(t *testing.T) {
	env := newCLIEnv(t)
	env.seedAccount(t, 1, "one@example.com", "", true)
	env.seedAccount(t, 2, "two@example.com", "", false)

	stdout, _, err := env.run(t, "", "verify")
	if err == nil {
		t.Fatal("verify should fail when an account has no backups")
	}
	if !strings.Contains(stdout, "account 1 (one@example.com): healthy") {
		t.Errorf("account 1 should be healthy:\n%s", stdout)
	}
	if !strings.Contains(stdout, "account 2 (two@example.com): unhealthy") {
		t.Errorf("account 2 should be unhealthy:\n%s", stdout)
	}

	// Scoped to the healthy account the command succeeds.
	if _, _, err := env.run(t, "", "verify", "1"); err != nil {
		t.Fatalf("verify 1: %v", err)
	}
}

func TestHistoryOutput(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run(t, "", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(stdout, "no switches recorded") {
		t.Errorf("expected the empty-state hint, got %q", stdout)
	}

	env.seedAccount(t, 1, "one@example.com", "", false)
	env.seedAccount(t, 2, "two@example.com", "", false)
	st := env.registryStore(t)
	reg, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	reg.AppendSwitch(0, 1, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	reg.AppendSwitch(1, 2, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC))
	if err := st.Save(reg); err != nil {
		t.Fatal(err)
	}

	stdout, _, err = env.run(t, "", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(stdout, "(signed out) -> one@example.com") {
		t.Errorf("signed-out origin not rendered:\n%s", stdout)
	}
	if !strings.Contains(stdout, "one@example.com -> two@example.com") {
		t.Errorf("switch line missing:\n%s", stdout)
	}
}

func TestExportWithoutRegistry(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run(t, "", "export", filepath.Join(env.dataDir, "bundle.tar.gz"))
	if !errors.Is(err, store.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	env := newCLIEnv(t)
	env.seedAccount(t, 1, "one@example.com", "work", true)

	bundle := filepath.Join(t.TempDir(), "bundle.tar.gz")
	stdout, _, err := env.run(t, "", "export", bundle)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(stdout, "exported 1 account(s)") {
		t.Errorf("unexpected export output %q", stdout)
	}
	if _, err := os.Stat(bundle); err != nil {
		t.Fatalf("bundle not written: %v", err)
	}

	// Import into a fresh machine, simulated by switching the data dir.
	second := filepath.Join(t.TempDir(), "state2")
	t.Setenv("CCSWITCH_DIR", second)

	stdout, _, err = env.run(t, "", "import", bundle)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(stdout, "imported one@example.com as account 1") {
		t.Errorf("unexpected import output %q", stdout)
	}

	stdout, _, err = env.run(t, "", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "one@example.com") || !strings.Contains(stdout, "work") {
		t.Errorf("imported account not listed:\n%s", stdout)
	}

	// A second import of the same bundle only skips.
	stdout, _, err = env.run(t, "", "import", bundle)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if !strings.Contains(stdout, "skipped one@example.com") {
		t.Errorf("unexpected re-import output %q", stdout)
	}
}
