package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ccswitch/internal/secrets"
)

// Exporter writes account bundles. Credentials are read through the
// Store, so platform wrapping (keychain, DPAPI) is undone and the bundle
// holds the raw blobs.
type Exporter struct {
	registry registryStore
	secrets  secrets.Store
	log      *slog.Logger
	version  string
	now      func() time.Time
}

// ExporterOptions wires an Exporter; Version names the producing build in
// the manifest.
type ExporterOptions struct {
	Registry registryStore
	Secrets  secrets.Store
	Log      *slog.Logger
	Version  string
	Now      func() time.Time
}

func NewExporter(opts ExporterOptions) *Exporter {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Exporter{
		registry: opts.Registry,
		secrets:  opts.Secrets,
		log:      log,
		version:  opts.Version,
		now:      now,
	}
}

// ExportSummary reports what went into a bundle.
type ExportSummary struct {
	Path     string `json:"path"`
	BundleID string `json:"bundleId"`
	Accounts int    `json:"accounts"`
}

// Export bundles the registry and every account's blobs into a tar.gz at
// path. An account with a missing blob fails the export; verify first.
// The bundle lands via atomic replace with owner-only permissions.
func (e *Exporter) Export(path string) (*ExportSummary, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}

	created := e.now().UTC()
	m := manifest{
		FormatVersion: formatVersion,
		BundleID:      uuid.NewString(),
		Created:       created,
		Tool:          toolInfo{Name: "ccswitch", Version: e.version},
		Accounts:      len(reg.Sequence),
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	manifestJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeEntry(tw, manifestEntry, manifestJSON, created); err != nil {
		return nil, err
	}

	registryJSON, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeEntry(tw, registryEntry, registryJSON, created); err != nil {
		return nil, err
	}

	for _, n := range reg.Sequence {
		rec, ok := reg.Account(n)
		if !ok {
			continue
		}
		cred, err := e.secrets.ReadCredentialBackup(n, rec.Email)
		if err != nil {
			return nil, fmt.Errorf("account %d (%s): credential backup: %w", n, rec.Email, err)
		}
		config, err := e.secrets.ReadConfigBackup(n, rec.Email)
		if err != nil {
			return nil, fmt.Errorf("account %d (%s): config backup: %w", n, rec.Email, err)
		}
		if err := writeEntry(tw, credentialEntry(n, rec.Email), cred, created); err != nil {
			return nil, err
		}
		if err := writeEntry(tw, configEntry(n, rec.Email), config, created); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	if err := writeBundleFile(path, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write bundle: %w", err)
	}

	e.log.Info("exported account bundle",
		"path", path,
		"bundle", m.BundleID,
		"accounts", len(reg.Sequence))
	return &ExportSummary{Path: path, BundleID: m.BundleID, Accounts: len(reg.Sequence)}, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
