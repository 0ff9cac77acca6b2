package core

import (
	"fmt"
	"strconv"
	"strings"

	"ccswitch/internal/model"
)

// Resolve maps an account reference to its number. A reference is an
// account number, an email address (anything containing "@"), or an
// alias, tried in that order. Aliases can never be purely numeric, so
// the three forms do not overlap.
func (e *Engine) Resolve(ref string) (int, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return 0, err
	}
	return resolveRef(reg, ref)
}

func resolveRef(reg *model.Registry, ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, fmt.Errorf("%w: empty account reference", ErrNotFound)
	}

	if n, err := strconv.Atoi(ref); err == nil {
		if _, ok := reg.Account(n); !ok {
			return 0, fmt.Errorf("%w: account %d", ErrNotFound, n)
		}
		return n, nil
	}

	if strings.Contains(ref, "@") {
		if n, ok := reg.FindByEmail(ref); ok {
			return n, nil
		}
		return 0, fmt.Errorf("%w: no account with email %s", ErrNotFound, ref)
	}

	if n, ok := reg.FindByAlias(ref); ok {
		return n, nil
	}
	return 0, fmt.Errorf("%w: no account with alias %q", ErrNotFound, ref)
}
