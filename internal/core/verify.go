package core

import (
	"errors"
	"fmt"
	"time"

	"ccswitch/internal/claudeauth"
	"ccswitch/internal/model"
	"ccswitch/internal/secrets"
)

// VerifyCheck is the outcome for one account.
type VerifyCheck struct {
	Number int                `json:"number"`
	Email  string             `json:"email"`
	Status model.HealthStatus `json:"status"`
	Detail string             `json:"detail,omitempty"`
}

// VerifyReport collects the checks of one verify run.
type VerifyReport struct {
	CheckedAt time.Time     `json:"checkedAt"`
	Checks    []VerifyCheck `json:"checks"`
}

// Healthy reports whether every checked account is healthy.
func (r *VerifyReport) Healthy() bool {
	for _, c := range r.Checks {
		if c.Status != model.HealthHealthy {
			return false
		}
	}
	return true
}

// Verify inspects the backup slots of the given accounts, or of every
// account when none are named, and persists the resulting health status.
// A missing blob makes an account unhealthy, a config backup that exists
// but carries no identity makes it degraded. Credential expiry is
// reported as detail only; the application refreshes expired tokens
// itself on the next switch.
func (e *Engine) Verify(numbers ...int) (*VerifyReport, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		numbers = reg.Numbers()
	}

	report := &VerifyReport{
		CheckedAt: e.now().UTC(),
		Checks:    make([]VerifyCheck, 0, len(numbers)),
	}
	for _, n := range numbers {
		rec, ok := reg.Account(n)
		if !ok {
			return nil, fmt.Errorf("%w: account %d", ErrNotFound, n)
		}
		status, detail := e.checkAccount(n, rec.Email)
		rec.HealthStatus = status
		reg.SetAccount(n, rec)
		report.Checks = append(report.Checks, VerifyCheck{
			Number: n,
			Email:  rec.Email,
			Status: status,
			Detail: detail,
		})
	}
	if err := e.registry.Save(reg); err != nil {
		return nil, err
	}

	e.log.Info("verified accounts", "checked", len(report.Checks), "healthy", report.Healthy())
	return report, nil
}

func (e *Engine) checkAccount(number int, email string) (model.HealthStatus, string) {
	cred, err := e.secrets.ReadCredentialBackup(number, email)
	if errors.Is(err, secrets.ErrNotFound) {
		return model.HealthUnhealthy, "credential backup missing"
	}
	if err != nil {
		return model.HealthUnhealthy, fmt.Sprintf("credential backup unreadable: %v", err)
	}

	cfg, err := e.secrets.ReadConfigBackup(number, email)
	if errors.Is(err, secrets.ErrNotFound) {
		return model.HealthUnhealthy, "config backup missing"
	}
	if err != nil {
		return model.HealthUnhealthy, fmt.Sprintf("config backup unreadable: %v", err)
	}

	if err := claudeauth.ValidateBackupConfig(cfg); err != nil {
		return model.HealthDegraded, fmt.Sprintf("config backup invalid: %v", err)
	}

	if insight, ok := claudeauth.InspectCredentials(cred); ok && insight.Expired(e.now()) {
		return model.HealthHealthy, "credentials past expiry, next switch triggers a refresh"
	}
	return model.HealthHealthy, ""
}
