// Package core implements the account switch engine: capturing the live
// identity as a managed account, swapping credentials between accounts,
// verifying backups and undoing switches. All durable state lives in the
// registry store and the credential store; the engine itself is
// stateless across invocations.
package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"ccswitch/internal/claudeauth"
	"ccswitch/internal/model"
	"ccswitch/internal/secrets"
)

// registryStore is the slice of store.RegistryStore the engine uses.
type registryStore interface {
	Load() (*model.Registry, error)
	LoadOrInit() (*model.Registry, error)
	Save(*model.Registry) error
}

// appClient is the live-application adapter (claudeauth.Client).
type appClient interface {
	ReadConfigRaw() ([]byte, error)
	MergeIdentity(backupConfig []byte) error
	Running() (bool, error)
	WaitUntilClosed(ctx context.Context) error
}

// Options wires an Engine. Registry, Secrets and App are required; the
// rest defaults sensibly.
type Options struct {
	Registry registryStore
	Secrets  secrets.Store
	App      appClient
	Log      *slog.Logger

	// WaitForExit blocks switches on open application sessions instead
	// of failing with ErrAppRunning. Cancelled via context.
	WaitForExit bool

	// Now stubs the clock in tests.
	Now func() time.Time
}

type Engine struct {
	registry registryStore
	secrets  secrets.Store
	app      appClient
	log      *slog.Logger
	wait     bool
	now      func() time.Time
}

func NewEngine(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		registry: opts.Registry,
		secrets:  opts.Secrets,
		app:      opts.App,
		log:      log,
		wait:     opts.WaitForExit,
		now:      now,
	}
}

// SwitchResult describes a completed switch. Warning is set when the
// live identity was switched but the follow-up bookkeeping failed; the
// switch still counts as done and `verify` repairs the rest.
type SwitchResult struct {
	From    int    `json:"from"`
	To      int    `json:"to"`
	Email   string `json:"email"`
	Warning string `json:"warning,omitempty"`
}

// Switch replaces the live identity with the target account's backup.
//
// The order is load-bearing: the outgoing session is backed up before
// anything else, and both integrity gates run before the first live
// mutation. Failures after the live credential write no longer abort,
// they degrade to a Warning on the result.
func (e *Engine) Switch(ctx context.Context, target int) (*SwitchResult, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}
	targetRec, ok := reg.Account(target)
	if !ok {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, target)
	}

	if err := e.ensureNotRunning(ctx); err != nil {
		return nil, err
	}

	current, liveConfig, err := e.resolveLive(reg)
	if err != nil {
		return nil, err
	}

	// Back up the outgoing session under its own account number.
	if current != 0 {
		if err := e.backupCurrent(reg, current, liveConfig); err != nil {
			return nil, err
		}
	}

	// Integrity gates: both target blobs must exist and the config must
	// actually carry an identity. Nothing live has been touched yet.
	targetCred, err := e.secrets.ReadCredentialBackup(target, targetRec.Email)
	if errors.Is(err, secrets.ErrNotFound) {
		return nil, fmt.Errorf("%w: account %d has no credential backup", ErrMissingBackup, target)
	}
	if err != nil {
		return nil, err
	}
	targetConfig, err := e.secrets.ReadConfigBackup(target, targetRec.Email)
	if errors.Is(err, secrets.ErrNotFound) {
		return nil, fmt.Errorf("%w: account %d has no config backup", ErrMissingBackup, target)
	}
	if err != nil {
		return nil, err
	}
	if err := claudeauth.ValidateBackupConfig(targetConfig); err != nil {
		return nil, fmt.Errorf("%w: account %d: %v", ErrInvalidBackup, target, err)
	}

	// Point of no return: the live credential blob is replaced first,
	// then the identity section of the live config.
	if err := e.secrets.WriteCurrent(targetCred); err != nil {
		return nil, fmt.Errorf("activate credentials for account %d: %w", target, err)
	}

	res := &SwitchResult{From: current, To: target, Email: targetRec.Email}

	if err := e.app.MergeIdentity(targetConfig); err != nil {
		e.log.Warn("live config merge failed after credential switch", "account", target, "error", err)
		res.Warning = fmt.Sprintf("credentials switched but the config update failed (%v); run verify", err)
		return res, nil
	}

	now := e.now().UTC()
	targetRec.UsageCount++
	targetRec.LastUsed = &now
	reg.SetAccount(target, targetRec)
	reg.SetActive(target)
	reg.AppendSwitch(current, target, now)
	if err := e.registry.Save(reg); err != nil {
		e.log.Warn("registry update failed after switch", "account", target, "error", err)
		res.Warning = fmt.Sprintf("switched but the registry update failed (%v); run verify", err)
		return res, nil
	}

	e.log.Info("switched account", "from", current, "to", target, "email", targetRec.Email)
	return res, nil
}

// SwitchNext rotates to the account after the current one in the
// sequence, wrapping around at the end. A live identity that is not
// managed yet is captured first and the caller asked to rerun; the
// engine never guesses a successor for an account it does not know.
func (e *Engine) SwitchNext(ctx context.Context) (*SwitchResult, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}

	if err := e.ensureNotRunning(ctx); err != nil {
		return nil, err
	}

	current, _, err := e.resolveLive(reg)
	if err != nil {
		return nil, err
	}
	next, ok := reg.NextAfter(current)
	if !ok {
		return nil, fmt.Errorf("%w: no managed accounts", ErrNotFound)
	}
	return e.Switch(ctx, next)
}

// ensureNotRunning enforces the "no open sessions" precondition. With
// waiting enabled it blocks until the last session exits or ctx is
// cancelled.
func (e *Engine) ensureNotRunning(ctx context.Context) error {
	running, err := e.app.Running()
	if err != nil {
		return fmt.Errorf("check for running sessions: %w", err)
	}
	if !running {
		return nil
	}
	if !e.wait {
		return fmt.Errorf("%w: close it or drop --no-wait", ErrAppRunning)
	}
	e.log.Info("waiting for open sessions to close (interrupt to abort)")
	if err := e.app.WaitUntilClosed(ctx); err != nil {
		return fmt.Errorf("waiting for sessions to close: %w", err)
	}
	return nil
}

// resolveLive maps the signed-in identity to its account number, reading
// the live config rather than trusting the registry pointer. Returns 0
// when no identity is signed in. An identity that is live but unmanaged
// is captured as a new account and reported via UnmanagedIdentityError,
// aborting the caller before any live mutation.
func (e *Engine) resolveLive(reg *model.Registry) (int, []byte, error) {
	data, err := e.app.ReadConfigRaw()
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("read live config: %w", err)
	}

	ident, err := claudeauth.IdentityFromConfig(data)
	if errors.Is(err, claudeauth.ErrNoIdentity) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}

	if n, ok := reg.FindByEmail(ident.Email); ok {
		return n, data, nil
	}

	// Unmanaged identity. Capture it so the switch cannot drop the
	// session, unless there are no credentials to lose.
	cred, err := e.secrets.ReadCurrent()
	if errors.Is(err, secrets.ErrNotFound) {
		e.log.Warn("live identity has no credentials, treating as signed out", "email", ident.Email)
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}

	number, err := e.captureNew(reg, ident, data, cred)
	if err != nil {
		return 0, nil, fmt.Errorf("capture unmanaged identity %s: %w", ident.Email, err)
	}
	return 0, nil, &UnmanagedIdentityError{Number: number, Email: ident.Email}
}

// backupCurrent refreshes the outgoing account's backup slot with
// whatever live state exists right now.
func (e *Engine) backupCurrent(reg *model.Registry, current int, liveConfig []byte) error {
	rec, ok := reg.Account(current)
	if !ok {
		return fmt.Errorf("%w: account %d", ErrNotFound, current)
	}

	cred, err := e.secrets.ReadCurrent()
	switch {
	case errors.Is(err, secrets.ErrNotFound):
		e.log.Debug("no live credentials to back up", "account", current)
	case err != nil:
		return fmt.Errorf("read live credentials: %w", err)
	default:
		if err := e.secrets.WriteCredentialBackup(current, rec.Email, cred); err != nil {
			return fmt.Errorf("back up credentials for account %d: %w", current, err)
		}
	}

	if err := e.secrets.WriteConfigBackup(current, rec.Email, liveConfig); err != nil {
		return fmt.Errorf("back up config for account %d: %w", current, err)
	}
	return nil
}
