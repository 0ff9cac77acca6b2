//go:build windows

package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"

	"ccswitch/internal/platform"
)

// DPAPIStore keeps the live credential file where the application expects
// it and wraps credential backups with the user-scoped DPAPI key, so a
// copied backup directory is useless on another machine. Config backups
// hold no secrets and stay plain.
type DPAPIStore struct {
	credentialsPath string
	backupFiles
}

func NewStore(opts Options) (Store, error) {
	credPath := opts.CredentialsPath
	if credPath == "" {
		var err error
		credPath, err = platform.ClaudeCredentialsPath()
		if err != nil {
			return nil, err
		}
	}
	return &DPAPIStore{
		credentialsPath: credPath,
		backupFiles:     backupFiles{dir: opts.BackupsDir},
	}, nil
}

func (s *DPAPIStore) ReadCurrent() ([]byte, error) {
	data, err := os.ReadFile(s.credentialsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: live credentials at %s", ErrNotFound, s.credentialsPath)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *DPAPIStore) WriteCurrent(blob []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.credentialsPath), 0o700); err != nil {
		return err
	}
	return platform.WriteFileAtomic(s.credentialsPath, blob, 0o600)
}

func (s *DPAPIStore) protectedBackupPath(number int, email string) string {
	return filepath.Join(s.dir, fmt.Sprintf("credentials_%d_%s.bin", number, SanitizeEmail(email)))
}

func (s *DPAPIStore) ReadCredentialBackup(number int, email string) ([]byte, error) {
	protected, err := s.readBlob(s.protectedBackupPath(number, email))
	if err != nil {
		return nil, err
	}
	return dpapiUnprotect(protected)
}

func (s *DPAPIStore) WriteCredentialBackup(number int, email string, blob []byte) error {
	protected, err := dpapiProtect(blob)
	if err != nil {
		return err
	}
	return s.writeBlob(s.protectedBackupPath(number, email), protected)
}

func (s *DPAPIStore) DeleteBackups(number int, email string) error {
	if err := s.removeBlob(s.protectedBackupPath(number, email)); err != nil {
		return err
	}
	return s.backupFiles.DeleteBackups(number, email)
}

func dpapiProtect(plain []byte) ([]byte, error) {
	in := bytesToBlob(plain)
	var out windows.DataBlob
	if err := windows.CryptProtectData(&in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return nil, fmt.Errorf("dpapi protect: %w", err)
	}
	defer func() {
		_, _ = windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	}()
	return blobToBytes(out), nil
}

func dpapiUnprotect(protected []byte) ([]byte, error) {
	in := bytesToBlob(protected)
	var out windows.DataBlob
	if err := windows.CryptUnprotectData(&in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return nil, fmt.Errorf("dpapi unprotect: %w", err)
	}
	defer func() {
		_, _ = windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	}()
	return blobToBytes(out), nil
}

func bytesToBlob(data []byte) windows.DataBlob {
	if len(data) == 0 {
		return windows.DataBlob{}
	}
	return windows.DataBlob{
		Size: uint32(len(data)),
		Data: &data[0],
	}
}

func blobToBytes(blob windows.DataBlob) []byte {
	if blob.Data == nil || blob.Size == 0 {
		return nil
	}
	size := int(blob.Size)
	src := unsafe.Slice(blob.Data, size)
	out := make([]byte, size)
	copy(out, src)
	return out
}
