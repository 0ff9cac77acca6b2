package model

import (
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
)

// emailPattern needs lookaheads to reject leading dots, consecutive dots
// and a dot before the @, which RE2 cannot express.
var emailPattern = regexp2.MustCompile(
	`^(?!\.)(?!.*\.\.)(?!.*\.@)[A-Za-z0-9._%+-]+@[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?)+$`,
	regexp2.None,
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidEmail(s string) bool {
	if s == "" || len(s) > 254 {
		return false
	}
	ok, err := emailPattern.MatchString(s)
	return err == nil && ok
}

// ValidAlias accepts short names in [A-Za-z0-9_-]. Purely numeric aliases
// are rejected because account references that look like numbers always
// resolve as numbers.
func ValidAlias(s string) bool {
	if !aliasPattern.MatchString(s) {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return true
		}
	}
	return false
}

// CanonicalEmail normalizes an address for comparisons and file names.
func CanonicalEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
