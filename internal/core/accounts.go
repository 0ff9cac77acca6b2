package core

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"

	"ccswitch/internal/claudeauth"
	"ccswitch/internal/model"
	"ccswitch/internal/secrets"
)

// AddResult reports what capturing the live identity did. Updated means
// the email was already managed and only its backups were refreshed;
// Changed means the captured credentials differ from the previous backup.
type AddResult struct {
	Number  int    `json:"number"`
	Email   string `json:"email"`
	Updated bool   `json:"updated"`
	Changed bool   `json:"changed"`
}

// Add captures the signed-in identity as a managed account: live
// credentials and live config go into the account's backup slot. Adding
// an email that is already managed refreshes its backups instead of
// creating a duplicate.
func (e *Engine) Add() (*AddResult, error) {
	reg, err := e.registry.LoadOrInit()
	if err != nil {
		return nil, err
	}

	data, err := e.app.ReadConfigRaw()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: the application has never signed in here", ErrNoLiveIdentity)
	}
	if err != nil {
		return nil, fmt.Errorf("read live config: %w", err)
	}
	ident, err := claudeauth.IdentityFromConfig(data)
	if errors.Is(err, claudeauth.ErrNoIdentity) {
		return nil, fmt.Errorf("%w: sign in first, then add", ErrNoLiveIdentity)
	}
	if err != nil {
		return nil, err
	}

	cred, err := e.secrets.ReadCurrent()
	if errors.Is(err, secrets.ErrNotFound) {
		return nil, fmt.Errorf("%w: no live credentials to capture", ErrNoLiveIdentity)
	}
	if err != nil {
		return nil, err
	}

	if number, ok := reg.FindByEmail(ident.Email); ok {
		return e.refreshExisting(reg, number, ident, data, cred)
	}

	number, err := e.captureNew(reg, ident, data, cred)
	if err != nil {
		return nil, err
	}
	e.log.Info("added account", "number", number, "email", ident.Email)
	return &AddResult{Number: number, Email: ident.Email, Changed: true}, nil
}

// captureNew allocates the next account number, writes both backups and
// then commits the registry entry. The backups are removed again if the
// registry save fails, so a failed add leaves no trace.
func (e *Engine) captureNew(reg *model.Registry, ident claudeauth.Identity, liveConfig, cred []byte) (int, error) {
	number := reg.NextNumber()

	if err := e.secrets.WriteCredentialBackup(number, ident.Email, cred); err != nil {
		return 0, fmt.Errorf("write credential backup: %w", err)
	}
	if err := e.secrets.WriteConfigBackup(number, ident.Email, liveConfig); err != nil {
		_ = e.secrets.DeleteBackups(number, ident.Email)
		return 0, fmt.Errorf("write config backup: %w", err)
	}

	reg.SetAccount(number, model.AccountRecord{
		Email:        ident.Email,
		UUID:         accountUUID(ident.UUID),
		Added:        e.now().UTC(),
		HealthStatus: model.HealthUnknown,
	})
	if err := e.registry.Save(reg); err != nil {
		if rollbackErr := e.secrets.DeleteBackups(number, ident.Email); rollbackErr != nil {
			return 0, fmt.Errorf("persist registry: %w (backup rollback failed: %v)", err, rollbackErr)
		}
		return 0, fmt.Errorf("persist registry: %w", err)
	}
	return number, nil
}

// refreshExisting re-captures backups for an account that already
// manages this email. Change detection compares credential hashes so the
// caller can tell a real re-login from a no-op.
func (e *Engine) refreshExisting(reg *model.Registry, number int, ident claudeauth.Identity, liveConfig, cred []byte) (*AddResult, error) {
	previous, err := e.secrets.ReadCredentialBackup(number, ident.Email)
	changed := errors.Is(err, secrets.ErrNotFound) || (err == nil && !bytes.Equal(hashBlob(previous), hashBlob(cred)))
	if err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return nil, err
	}

	if err := e.secrets.WriteCredentialBackup(number, ident.Email, cred); err != nil {
		return nil, fmt.Errorf("refresh credential backup: %w", err)
	}
	if err := e.secrets.WriteConfigBackup(number, ident.Email, liveConfig); err != nil {
		return nil, fmt.Errorf("refresh config backup: %w", err)
	}

	rec, _ := reg.Account(number)
	if ident.UUID != "" {
		rec.UUID = accountUUID(ident.UUID)
	}
	rec.HealthStatus = model.HealthUnknown
	reg.SetAccount(number, rec)
	if err := e.registry.Save(reg); err != nil {
		return nil, err
	}

	e.log.Info("refreshed account backups", "number", number, "email", ident.Email, "changed", changed)
	return &AddResult{Number: number, Email: ident.Email, Updated: true, Changed: changed}, nil
}

func hashBlob(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// accountUUID keeps the session's uuid when it parses, otherwise mints a
// fresh one so every record carries a stable opaque token.
func accountUUID(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if _, err := uuid.Parse(candidate); err == nil {
		return candidate
	}
	return uuid.NewString()
}

// RemoveResult names what was deleted.
type RemoveResult struct {
	Number int    `json:"number"`
	Email  string `json:"email"`
}

// Remove drops an account from the registry and deletes its backups. The
// registry save is the commit point; blob deletion afterwards is best
// effort and only logged, so a failed save never costs a valid backup.
func (e *Engine) Remove(number int) (*RemoveResult, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}
	rec, ok := reg.Account(number)
	if !ok {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, number)
	}

	reg.RemoveAccount(number)
	if err := e.registry.Save(reg); err != nil {
		return nil, err
	}

	if err := e.secrets.DeleteBackups(number, rec.Email); err != nil {
		e.log.Warn("account removed but backup cleanup failed", "number", number, "error", err)
	}

	e.log.Info("removed account", "number", number, "email", rec.Email)
	return &RemoveResult{Number: number, Email: rec.Email}, nil
}

// AliasResult reports an alias change.
type AliasResult struct {
	Number int    `json:"number"`
	Email  string `json:"email"`
	Alias  string `json:"alias,omitempty"`
}

// SetAlias names an account. Aliases are unique across the registry so
// alias resolution can never be ambiguous.
func (e *Engine) SetAlias(number int, alias string) (*AliasResult, error) {
	if !model.ValidAlias(alias) {
		return nil, fmt.Errorf("invalid alias %q: use letters, digits, - or _ and at least one non-digit", alias)
	}

	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}
	rec, ok := reg.Account(number)
	if !ok {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, number)
	}
	if holder, ok := reg.FindByAlias(alias); ok && holder != number {
		return nil, fmt.Errorf("%w: %q belongs to account %d", ErrAliasTaken, alias, holder)
	}

	rec.Alias = &alias
	reg.SetAccount(number, rec)
	if err := e.registry.Save(reg); err != nil {
		return nil, err
	}
	return &AliasResult{Number: number, Email: rec.Email, Alias: alias}, nil
}

// ClearAlias removes an account's alias.
func (e *Engine) ClearAlias(number int) (*AliasResult, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}
	rec, ok := reg.Account(number)
	if !ok {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, number)
	}

	rec.Alias = nil
	reg.SetAccount(number, rec)
	if err := e.registry.Save(reg); err != nil {
		return nil, err
	}
	return &AliasResult{Number: number, Email: rec.Email}, nil
}

// AccountInfo is one row of the account listing.
type AccountInfo struct {
	Number     int                `json:"number"`
	Email      string             `json:"email"`
	Alias      string             `json:"alias,omitempty"`
	Added      time.Time          `json:"added"`
	LastUsed   *time.Time         `json:"lastUsed,omitempty"`
	UsageCount int                `json:"usageCount"`
	Health     model.HealthStatus `json:"healthStatus"`
	Active     bool               `json:"active"`
}

// List returns the managed accounts in sequence order. A missing
// registry is an empty list, not an error.
func (e *Engine) List() ([]AccountInfo, error) {
	reg, err := e.registry.LoadOrInit()
	if err != nil {
		return nil, err
	}

	active := reg.Active()
	infos := make([]AccountInfo, 0, len(reg.Sequence))
	for _, n := range reg.Sequence {
		rec, ok := reg.Account(n)
		if !ok {
			continue
		}
		info := AccountInfo{
			Number:     n,
			Email:      rec.Email,
			Added:      rec.Added,
			LastUsed:   rec.LastUsed,
			UsageCount: rec.UsageCount,
			Health:     rec.HealthStatus,
			Active:     n == active,
		}
		if rec.Alias != nil {
			info.Alias = *rec.Alias
		}
		infos = append(infos, info)
	}
	return infos, nil
}
