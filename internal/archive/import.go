package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"ccswitch/internal/model"
	"ccswitch/internal/secrets"
	"ccswitch/internal/store"
)

// Importer merges account bundles into the local registry. Blobs pass
// through the local Store, so they pick up whatever wrapping this
// platform uses regardless of where the bundle was written.
type Importer struct {
	registry registryStore
	secrets  secrets.Store
	log      *slog.Logger
	now      func() time.Time
}

type ImporterOptions struct {
	Registry registryStore
	Secrets  secrets.Store
	Log      *slog.Logger
	Now      func() time.Time
}

func NewImporter(opts ImporterOptions) *Importer {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Importer{
		registry: opts.Registry,
		secrets:  opts.Secrets,
		log:      log,
		now:      now,
	}
}

// ImportedAccount maps a bundle account to its new local number.
type ImportedAccount struct {
	Number int    `json:"number"`
	Email  string `json:"email"`
}

// ImportSummary reports what an import did. Skipped lists emails that
// were already managed locally and left untouched.
type ImportSummary struct {
	BundleID string            `json:"bundleId,omitempty"`
	Added    []ImportedAccount `json:"added"`
	Skipped  []string          `json:"skipped"`
}

// Import merges the bundle at bundlePath into the local registry.
// Accounts are matched by email: unknown emails get a fresh local number
// with added set to now, known emails are skipped and never overwritten.
// The active pointer and the live credentials are never touched. A
// missing local registry is created by the final save.
func (i *Importer) Import(bundlePath string) (*ImportSummary, error) {
	scratch, err := os.MkdirTemp("", "ccswitch-import-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch)

	if err := extractBundle(bundlePath, scratch); err != nil {
		return nil, err
	}

	summary := &ImportSummary{Added: []ImportedAccount{}, Skipped: []string{}}

	if data, err := os.ReadFile(scratchFile(scratch, manifestEntry)); err == nil {
		var m manifest
		if json.Unmarshal(data, &m) == nil {
			summary.BundleID = m.BundleID
			i.log.Info("importing bundle",
				"bundle", m.BundleID,
				"created", m.Created,
				"producer", m.Tool.Name+" "+m.Tool.Version)
		}
	}

	bundle, err := readBundleRegistry(scratchFile(scratch, registryEntry))
	if err != nil {
		return nil, err
	}

	local, err := i.registry.LoadOrInit()
	if err != nil {
		return nil, err
	}

	// Read every needed blob up front so a truncated bundle fails before
	// the first local write.
	type pendingImport struct {
		rec    model.AccountRecord
		cred   []byte
		config []byte
	}
	var pending []pendingImport
	for _, n := range bundle.Sequence {
		rec, ok := bundle.Account(n)
		if !ok {
			continue
		}
		if _, exists := local.FindByEmail(rec.Email); exists {
			summary.Skipped = append(summary.Skipped, rec.Email)
			i.log.Info("skipping already managed account", "email", rec.Email)
			continue
		}
		cred, err := readBundleBlob(scratch, credentialEntry(n, rec.Email), n, rec.Email)
		if err != nil {
			return nil, err
		}
		config, err := readBundleBlob(scratch, configEntry(n, rec.Email), n, rec.Email)
		if err != nil {
			return nil, err
		}
		pending = append(pending, pendingImport{rec: rec, cred: cred, config: config})
	}

	cleanup := func(written []ImportedAccount) {
		for _, w := range written {
			if err := i.secrets.DeleteBackups(w.Number, w.Email); err != nil {
				i.log.Warn("rollback: backups left behind", "number", w.Number, "error", err)
			}
		}
	}

	now := i.now().UTC()
	for _, p := range pending {
		number := local.NextNumber()
		if err := i.secrets.WriteCredentialBackup(number, p.rec.Email, p.cred); err != nil {
			cleanup(summary.Added)
			return nil, fmt.Errorf("import %s: credential backup: %w", p.rec.Email, err)
		}
		if err := i.secrets.WriteConfigBackup(number, p.rec.Email, p.config); err != nil {
			cleanup(append(summary.Added, ImportedAccount{Number: number, Email: p.rec.Email}))
			return nil, fmt.Errorf("import %s: config backup: %w", p.rec.Email, err)
		}

		rec := model.AccountRecord{
			Email:        p.rec.Email,
			UUID:         p.rec.UUID,
			Added:        now,
			UsageCount:   p.rec.UsageCount,
			HealthStatus: model.HealthUnknown,
		}
		if p.rec.LastUsed != nil {
			t := *p.rec.LastUsed
			rec.LastUsed = &t
		}
		if p.rec.Alias != nil {
			if _, taken := local.FindByAlias(*p.rec.Alias); taken {
				i.log.Warn("dropping imported alias, already taken locally",
					"alias", *p.rec.Alias, "email", p.rec.Email)
			} else {
				a := *p.rec.Alias
				rec.Alias = &a
			}
		}

		local.SetAccount(number, rec)
		summary.Added = append(summary.Added, ImportedAccount{Number: number, Email: p.rec.Email})
	}

	if len(summary.Added) > 0 {
		if err := i.registry.Save(local); err != nil {
			cleanup(summary.Added)
			return nil, fmt.Errorf("persist registry: %w", err)
		}
	}

	i.log.Info("imported account bundle",
		"path", bundlePath,
		"added", len(summary.Added),
		"skipped", len(summary.Skipped))
	return summary, nil
}

// readBundleRegistry parses and upgrades the bundle's registry document.
func readBundleRegistry(path string) (*model.Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: no registry document", ErrBadArchive)
	}
	if err != nil {
		return nil, err
	}

	var bundle model.Registry
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: registry document: %v", ErrBadArchive, err)
	}
	switch bundle.SchemaVersion {
	case model.SchemaVersion:
	case model.SchemaVersionLegacy:
		store.UpgradeLegacy(&bundle)
	default:
		return nil, fmt.Errorf("%w: registry schema %q", ErrBadArchive, bundle.SchemaVersion)
	}
	if err := bundle.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	return &bundle, nil
}

func readBundleBlob(scratch, entry string, number int, email string) ([]byte, error) {
	data, err := os.ReadFile(scratchFile(scratch, entry))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: account %d (%s) is listed but %s is missing",
			ErrBadArchive, number, email, strings.TrimPrefix(entry, bundlePrefix))
	}
	return data, err
}

func scratchFile(scratch, entry string) string {
	return filepath.Join(scratch, filepath.FromSlash(strings.TrimPrefix(entry, bundlePrefix)))
}

// extractBundle unpacks the tar.gz at bundlePath into scratch. Entries
// outside the bundle namespace or escaping upward are ignored; oversized
// entries fail the whole import.
func extractBundle(bundlePath, scratch string) error {
	f, err := os.Open(bundlePath)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: not gzip data: %v", ErrBadArchive, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var total int64
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: corrupt tar stream: %v", ErrBadArchive, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		rel, ok := entryScratchRel(hdr.Name)
		if !ok {
			continue
		}
		if hdr.Size > maxEntryBytes {
			return fmt.Errorf("%w: entry %s exceeds %d bytes", ErrBadArchive, hdr.Name, maxEntryBytes)
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxEntryBytes+1))
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrBadArchive, hdr.Name, err)
		}
		if int64(len(data)) > maxEntryBytes {
			return fmt.Errorf("%w: entry %s exceeds %d bytes", ErrBadArchive, hdr.Name, maxEntryBytes)
		}
		total += int64(len(data))
		if total > maxBundleBytes {
			return fmt.Errorf("%w: bundle exceeds %d bytes", ErrBadArchive, maxBundleBytes)
		}

		dst := filepath.Join(scratch, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o600); err != nil {
			return err
		}
	}
	return nil
}

// entryScratchRel maps a tar entry name to its scratch-relative path.
// Anything outside the bundle prefix, or cleaning to a parent escape, is
// not part of the bundle.
func entryScratchRel(name string) (string, bool) {
	if !strings.HasPrefix(name, bundlePrefix) {
		return "", false
	}
	rel := path.Clean(strings.TrimPrefix(name, bundlePrefix))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", false
	}
	return rel, true
}
