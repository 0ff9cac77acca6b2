//go:build darwin

package secrets

import (
	"bytes"
	"fmt"
	"os/exec"
	"os/user"
	"strings"
)

// DefaultKeychainService matches the generic password item the
// application itself maintains.
const DefaultKeychainService = "Claude Code-credentials"

// errSecItemNotFound, as reported by the security tool.
const securityNotFoundExit = 44

var execCommand = exec.Command

// KeychainStore reads and writes the live credential blob through the
// macOS keychain while keeping per-account backups as files.
type KeychainStore struct {
	service string
	account string
	backupFiles
}

func NewStore(opts Options) (Store, error) {
	service := opts.KeychainService
	if service == "" {
		service = DefaultKeychainService
	}
	account := opts.KeychainAccount
	if account == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("resolve keychain account: %w", err)
		}
		account = u.Username
	}
	return &KeychainStore{
		service:     service,
		account:     account,
		backupFiles: backupFiles{dir: opts.BackupsDir},
	}, nil
}

func (s *KeychainStore) ReadCurrent() ([]byte, error) {
	cmd := execCommand("security", "find-generic-password",
		"-s", s.service, "-a", s.account, "-w")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == securityNotFoundExit {
			return nil, fmt.Errorf("%w: keychain item %q", ErrNotFound, s.service)
		}
		return nil, fmt.Errorf("keychain read: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return bytes.TrimRight(stdout.Bytes(), "\n"), nil
}

func (s *KeychainStore) WriteCurrent(blob []byte) error {
	// -U updates the existing item in place instead of failing on
	// duplicates.
	cmd := execCommand("security", "add-generic-password",
		"-U", "-s", s.service, "-a", s.account, "-w", string(blob))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("keychain write: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
