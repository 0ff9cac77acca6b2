package core

import (
	"errors"
	"io/fs"

	"ccswitch/internal/claudeauth"
)

// StatusResult describes the live session and how it relates to the
// registry. Repaired is set when the stored active pointer disagreed
// with the live identity and was reconciled.
type StatusResult struct {
	SignedIn bool   `json:"signedIn"`
	Email    string `json:"email,omitempty"`
	Number   int    `json:"number,omitempty"`
	Alias    string `json:"alias,omitempty"`
	Managed  bool   `json:"managed"`
	Accounts int    `json:"accounts"`
	Repaired bool   `json:"repaired,omitempty"`
}

// Status reports who is signed in right now. The live config is the
// source of truth; a stale active pointer in the registry is repaired as
// a side effect, but a missing registry is never created.
func (e *Engine) Status() (*StatusResult, error) {
	reg, err := e.registry.LoadOrInit()
	if err != nil {
		return nil, err
	}
	res := &StatusResult{Accounts: len(reg.Sequence)}

	ident, signedIn, err := e.liveIdentity()
	if err != nil {
		return nil, err
	}
	if !signedIn {
		// Signed out. An active pointer left behind is stale.
		if reg.Active() != 0 {
			reg.ClearActive()
			if err := e.registry.Save(reg); err != nil {
				return nil, err
			}
			res.Repaired = true
			e.log.Info("cleared stale active account pointer")
		}
		return res, nil
	}

	res.SignedIn = true
	res.Email = ident.Email

	number, ok := reg.FindByEmail(ident.Email)
	if !ok {
		return res, nil
	}
	res.Managed = true
	res.Number = number
	if rec, ok := reg.Account(number); ok && rec.Alias != nil {
		res.Alias = *rec.Alias
	}

	if reg.Active() != number {
		reg.SetActive(number)
		if err := e.registry.Save(reg); err != nil {
			return nil, err
		}
		res.Repaired = true
		e.log.Info("repaired active account pointer", "number", number)
	}
	return res, nil
}

func (e *Engine) liveIdentity() (claudeauth.Identity, bool, error) {
	data, err := e.app.ReadConfigRaw()
	if errors.Is(err, fs.ErrNotExist) {
		return claudeauth.Identity{}, false, nil
	}
	if err != nil {
		return claudeauth.Identity{}, false, err
	}
	ident, err := claudeauth.IdentityFromConfig(data)
	if errors.Is(err, claudeauth.ErrNoIdentity) {
		return claudeauth.Identity{}, false, nil
	}
	if err != nil {
		return claudeauth.Identity{}, false, err
	}
	return ident, true, nil
}
