package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tufctl/tuf/tuf/data"
	"github.com/tufctl/tuf/tuf/signed"
	"github.com/tufctl/tuf/tuf/utils"
)

// fileKeyStore is a signed.MemoryCryptoService backed by a single PEM file
// under trustDir/private, loaded at open and rewritten atomically after
// every mutation — the CLI's stand-in for the KMS/HSM-backed CryptoService
// implementations a production deployment would plug in instead.
type fileKeyStore struct {
	*signed.MemoryCryptoService
	path string
	mu   sync.Mutex
}

const privateKeysFile = "private/tuf_keys.pem"

// openKeyStore loads trustDir/private/tuf_keys.pem into memory, creating
// an empty store if the file does not exist yet.
func openKeyStore(trustDir string) (*fileKeyStore, error) {
	path := filepath.Join(trustDir, privateKeysFile)
	ks := &fileKeyStore{
		MemoryCryptoService: signed.NewMemoryCryptoService(),
		path:                path,
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening key store: %w", err)
	}
	if err := utils.ImportKeys(bytes.NewReader(raw), []utils.Importer{ks}); err != nil {
		return nil, fmt.Errorf("loading key store %s: %w", path, err)
	}
	return ks, nil
}

// Create generates a key exactly as MemoryCryptoService does, then
// persists the updated store before returning.
func (ks *fileKeyStore) Create(role, algorithm string) (*data.Key, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	k, err := ks.MemoryCryptoService.Create(role, algorithm)
	if err != nil {
		return nil, err
	}
	if err := ks.save(); err != nil {
		return nil, err
	}
	return k, nil
}

// Import registers priv exactly as MemoryCryptoService does, then
// persists the updated store before returning.
func (ks *fileKeyStore) Import(role string, priv *data.PrivateKey) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.MemoryCryptoService.Import(role, priv); err != nil {
		return err
	}
	return ks.save()
}

// RemoveKey deletes a key exactly as MemoryCryptoService does, then
// persists the updated store before returning.
func (ks *fileKeyStore) RemoveKey(keyID string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.MemoryCryptoService.RemoveKey(keyID); err != nil {
		return err
	}
	return ks.save()
}

// Get implements utils.Exporter: it returns the PEM encoding of one key,
// tagged with its role so a reload can re-derive the role mapping.
func (ks *fileKeyStore) Get(keyID string) ([]byte, error) {
	priv, role, err := ks.GetPrivateKey(keyID)
	if err != nil {
		return nil, err
	}
	return signed.EncodePrivateKey(role, priv), nil
}

// ListKeyIDs implements utils.Exporter.
func (ks *fileKeyStore) ListKeyIDs() []string {
	all := ks.ListAllKeys()
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	return ids
}

// Set implements utils.Importer, decoding a PEM block written by Get and
// registering it directly against the in-memory service (bypassing the
// save-on-write path, since ImportKeys is itself called from within an
// in-progress load).
func (ks *fileKeyStore) Set(keyID string, pemBytes []byte) error {
	priv, role, err := signed.DecodePrivateKey(pemBytes)
	if err != nil {
		return err
	}
	return ks.MemoryCryptoService.Import(role, priv)
}

// save rewrites the backing PEM file atomically: temp file in the same
// directory, fsync, rename over the original.
func (ks *fileKeyStore) save() error {
	dir := filepath.Dir(ks.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tuf_keys-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := utils.ExportKeys(tmp, ks); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, ks.path)
}
