package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ccswitch/internal/platform"
)

// backupFiles implements the per-account backup half of Store as plain
// files. Platform stores embed it; the Windows store shadows the
// credential methods to add DPAPI wrapping.
type backupFiles struct {
	dir string
}

func (b backupFiles) credentialBackupPath(number int, email string) string {
	return filepath.Join(b.dir, fmt.Sprintf("credentials_%d_%s.json", number, SanitizeEmail(email)))
}

// Config backups carry the claude_ prefix so a backup directory and an
// exported bundle list the same file names.
func (b backupFiles) configBackupPath(number int, email string) string {
	return filepath.Join(b.dir, fmt.Sprintf("claude_%d_%s.json", number, SanitizeEmail(email)))
}

func (b backupFiles) readBlob(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b backupFiles) writeBlob(path string, blob []byte) error {
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return err
	}
	return platform.WriteFileAtomic(path, blob, 0o600)
}

func (b backupFiles) removeBlob(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (b backupFiles) ReadCredentialBackup(number int, email string) ([]byte, error) {
	return b.readBlob(b.credentialBackupPath(number, email))
}

func (b backupFiles) WriteCredentialBackup(number int, email string, blob []byte) error {
	return b.writeBlob(b.credentialBackupPath(number, email), blob)
}

func (b backupFiles) ReadConfigBackup(number int, email string) ([]byte, error) {
	return b.readBlob(b.configBackupPath(number, email))
}

func (b backupFiles) WriteConfigBackup(number int, email string, blob []byte) error {
	return b.writeBlob(b.configBackupPath(number, email), blob)
}

func (b backupFiles) DeleteBackups(number int, email string) error {
	if err := b.removeBlob(b.credentialBackupPath(number, email)); err != nil {
		return err
	}
	return b.removeBlob(b.configBackupPath(number, email))
}
