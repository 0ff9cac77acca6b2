package platform

import (
	"os"
	"path/filepath"
)

// DataDir is the tool's own state root, ~/.ccswitch by default.
// CCSWITCH_DIR overrides it, mainly for tests and portable setups.
func DataDir() (string, error) {
	if dir := os.Getenv("CCSWITCH_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ccswitch"), nil
}

func RegistryPath(dataDir string) string {
	return filepath.Join(dataDir, "accounts.json")
}

func BackupsDir(dataDir string) string {
	return filepath.Join(dataDir, "backups")
}

// EnsureDataDirs creates the state root and backup directory with owner-only
// permissions and returns the root.
func EnsureDataDirs(dataDir string) (string, error) {
	if err := os.MkdirAll(BackupsDir(dataDir), 0o700); err != nil {
		return "", err
	}
	return dataDir, nil
}

// ClaudeConfigPath is the live application config holding the identity
// section. CLAUDE_CONFIG_PATH overrides it.
func ClaudeConfigPath() (string, error) {
	if p := os.Getenv("CLAUDE_CONFIG_PATH"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude.json"), nil
}

// ClaudeCredentialsPath is the live credential file used on Linux and
// Windows. On macOS credentials live in the keychain instead.
func ClaudeCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", ".credentials.json"), nil
}

// ClaudeLockDir holds one <pid>.lock per running IDE-attached session.
func ClaudeLockDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", "ide"), nil
}
