package secrets

import (
	"errors"
	"regexp"

	"ccswitch/internal/model"
)

// ErrNotFound reports an absent blob regardless of the platform backend,
// so callers never have to reason about keychain exit codes or file
// system errors.
var ErrNotFound = errors.New("credential blob not found")

// Store moves raw blobs between the live application location and the
// per-account backup area. Blob contents are opaque to this package.
//
// "Current" is where the running application reads its credentials from:
// the keychain on macOS, a file elsewhere. Backups are always files under
// the tool's own backup directory, keyed by account number and email.
type Store interface {
	ReadCurrent() ([]byte, error)
	WriteCurrent(blob []byte) error
	ReadCredentialBackup(number int, email string) ([]byte, error)
	WriteCredentialBackup(number int, email string, blob []byte) error
	ReadConfigBackup(number int, email string) ([]byte, error)
	WriteConfigBackup(number int, email string, blob []byte) error
	DeleteBackups(number int, email string) error
}

// Options carries the per-platform wiring. Unused fields are ignored by
// backends that do not need them.
type Options struct {
	BackupsDir      string
	CredentialsPath string
	KeychainService string
	KeychainAccount string
}

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9._-]`)

// SanitizeEmail turns an address into a stable file name fragment. Backup
// files and archive entries share this naming, so it must never change
// for an email that already has blobs on disk.
func SanitizeEmail(email string) string {
	return unsafeNameChars.ReplaceAllString(model.CanonicalEmail(email), "_")
}
