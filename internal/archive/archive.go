// Package archive moves accounts between machines as tar.gz bundles: the
// registry document plus every account's backup blobs, with credentials
// stored raw so a bundle written on one platform imports on any other.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ccswitch/internal/model"
	"ccswitch/internal/platform"
	"ccswitch/internal/secrets"
)

// ErrBadArchive marks a bundle that cannot be imported: unreadable,
// missing its registry document, or missing blobs for a listed account.
var ErrBadArchive = errors.New("archive is not a usable account bundle")

const (
	// bundlePrefix namespaces every entry so a stray tar.gz is never
	// mistaken for an account bundle.
	bundlePrefix = "ccswitch-export/"

	manifestEntry = bundlePrefix + "manifest.json"
	registryEntry = bundlePrefix + "accounts.json"
	backupsPrefix = bundlePrefix + "backups/"

	formatVersion = "1"

	// maxEntryBytes and maxBundleBytes cap extraction; real blobs are a
	// few KiB, so anything near these limits is not ours.
	maxEntryBytes  = 8 << 20
	maxBundleBytes = 64 << 20
)

// manifest describes a bundle to humans and to future format revisions.
// Import tolerates a missing manifest; only the registry document is
// required.
type manifest struct {
	FormatVersion string    `json:"formatVersion"`
	BundleID      string    `json:"bundleId"`
	Created       time.Time `json:"created"`
	Tool          toolInfo  `json:"tool"`
	Accounts      int       `json:"accounts"`
}

type toolInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func credentialEntry(number int, email string) string {
	return fmt.Sprintf("%scredentials_%d_%s.json", backupsPrefix, number, secrets.SanitizeEmail(email))
}

func configEntry(number int, email string) string {
	return fmt.Sprintf("%sclaude_%d_%s.json", backupsPrefix, number, secrets.SanitizeEmail(email))
}

// registryStore is the slice of store.RegistryStore this package needs.
type registryStore interface {
	Load() (*model.Registry, error)
	LoadOrInit() (*model.Registry, error)
	Save(*model.Registry) error
}

func writeBundleFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return platform.WriteFileAtomic(path, data, 0o600)
}
