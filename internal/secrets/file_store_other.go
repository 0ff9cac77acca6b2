//go:build !windows && !darwin

package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ccswitch/internal/platform"
)

// FileStore keeps the live credential blob where the application expects
// it (~/.claude/.credentials.json) and backups as plain files.
type FileStore struct {
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
	return &FileStore{
		credentialsPath: credPath,
		backupFiles:     backupFiles{dir: opts.BackupsDir},
	}, nil
}

func (s *FileStore) ReadCurrent() ([]byte, error) {
	data, err := os.ReadFile(s.credentialsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: live credentials at %s", ErrNotFound, s.credentialsPath)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *FileStore) WriteCurrent(blob []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.credentialsPath), 0o700); err != nil {
		return err
	}
	return platform.WriteFileAtomic(s.credentialsPath, blob, 0o600)
}
