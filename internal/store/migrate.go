package store

import (
	"fmt"
	"os"
	"time"

	"ccswitch/internal/model"
)

const backupStampLayout = "20060102T150405Z"

// migrateLocked upgrades a legacy document already parsed from raw. The
// untouched original bytes are kept next to the registry as a timestamped
// safety copy before anything is rewritten. Unknown versions are fatal.
func (s *RegistryStore) migrateLocked(reg *model.Registry, raw []byte) error {
	switch reg.SchemaVersion {
	case model.SchemaVersionLegacy:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSchema, reg.SchemaVersion)
	}

	backupPath := s.path + ".backup-" + time.Now().UTC().Format(backupStampLayout)
	if err := os.WriteFile(backupPath, raw, 0o600); err != nil {
		return fmt.Errorf("pre-migration backup: %w", err)
	}

	UpgradeLegacy(reg)

	if err := s.saveLocked(reg); err != nil {
		return err
	}
	s.log.Info("migrated registry schema",
		"from", model.SchemaVersionLegacy,
		"to", model.SchemaVersion,
		"backup", backupPath)
	return nil
}

// UpgradeLegacy fills the fields version 1.0 never carried: alias and
// lastUsed stay null, usage counters start at zero, health is unknown, and
// the switch history starts empty. Exported because archive import meets
// legacy documents inside old bundles, far away from any registry file.
func UpgradeLegacy(reg *model.Registry) {
	for key, rec := range reg.Accounts {
		rec.Alias = nil
		rec.LastUsed = nil
		rec.UsageCount = 0
		rec.HealthStatus = model.HealthUnknown
		reg.Accounts[key] = rec
	}
	if reg.Accounts == nil {
		reg.Accounts = map[string]model.AccountRecord{}
	}
	if reg.Sequence == nil {
		reg.Sequence = []int{}
	}
	reg.History = []model.SwitchEvent{}
	reg.SchemaVersion = model.SchemaVersion
}
