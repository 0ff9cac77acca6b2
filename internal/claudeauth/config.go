package claudeauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ccswitch/internal/platform"
)

// ErrNoIdentity means a config document exists but carries no usable
// oauthAccount section.
var ErrNoIdentity = errors.New("no identity section in config")

// Identity is the part of the application config this tool cares about.
type Identity struct {
	Email            string
	UUID             string
	OrganizationName string
}

type oauthAccount struct {
	AccountUUID      string `json:"accountUuid"`
	EmailAddress     string `json:"emailAddress"`
	OrganizationName string `json:"organizationName"`
}

// Client reads and rewrites the live application config (~/.claude.json)
// and watches the application's session lock directory.
type Client struct {
	configPath string
	lockDir    string
}

func NewClient(configPath, lockDir string) *Client {
	return &Client{configPath: configPath, lockDir: lockDir}
}

func (c *Client) ConfigPath() string {
	return c.configPath
}

// ReadConfigRaw returns the live config bytes untouched. Callers check
// fs.ErrNotExist themselves; a missing file simply means the application
// has never signed in on this machine.
func (c *Client) ReadConfigRaw() ([]byte, error) {
	return os.ReadFile(c.configPath)
}

// IdentityFromConfig extracts the signed-in identity from config bytes.
func IdentityFromConfig(data []byte) (Identity, error) {
	var doc struct {
		OAuthAccount *oauthAccount `json:"oauthAccount"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Identity{}, fmt.Errorf("parse config: %w", err)
	}
	if doc.OAuthAccount == nil || doc.OAuthAccount.EmailAddress == "" {
		return Identity{}, ErrNoIdentity
	}
	return Identity{
		Email:            doc.OAuthAccount.EmailAddress,
		UUID:             doc.OAuthAccount.AccountUUID,
		OrganizationName: doc.OAuthAccount.OrganizationName,
	}, nil
}

// ValidateBackupConfig checks that a backed-up config blob is a JSON
// object whose oauthAccount section could actually sign someone in.
func ValidateBackupConfig(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config blob is not a JSON object: %w", err)
	}
	raw, ok := doc["oauthAccount"]
	if !ok {
		return errors.New("config blob lacks an oauthAccount section")
	}
	var acct oauthAccount
	if err := json.Unmarshal(raw, &acct); err != nil {
		return fmt.Errorf("oauthAccount section malformed: %w", err)
	}
	if acct.EmailAddress == "" {
		return errors.New("oauthAccount carries no emailAddress")
	}
	return nil
}

// MergeIdentity replaces only the oauthAccount section of the live config
// with the one from the backup, keeping every other top-level key
// byte-identical. The result lands via atomic replace so the application
// never reads a half-written config.
func (c *Client) MergeIdentity(backupConfig []byte) error {
	var backup map[string]json.RawMessage
	if err := json.Unmarshal(backupConfig, &backup); err != nil {
		return fmt.Errorf("parse backup config: %w", err)
	}
	section, ok := backup["oauthAccount"]
	if !ok {
		return errors.New("backup config lacks an oauthAccount section")
	}

	live := map[string]json.RawMessage{}
	data, err := os.ReadFile(c.configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read live config: %w", err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &live); err != nil {
			return fmt.Errorf("parse live config: %w", err)
		}
	}
	if live == nil {
		live = map[string]json.RawMessage{}
	}

	live["oauthAccount"] = section

	payload, err := json.MarshalIndent(live, "", "  ")
	if err != nil {
		return err
	}
	payload = append(payload, '\n')

	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o700); err != nil {
		return err
	}
	return platform.WriteFileAtomic(c.configPath, payload, 0o600)
}
