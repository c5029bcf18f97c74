package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tufctl/tuf/client"
	"github.com/tufctl/tuf/tuf"
	"github.com/tufctl/tuf/tuf/data"
	"github.com/tufctl/tuf/tuf/delegationcache"
	"github.com/tufctl/tuf/tuf/store"
)

func metadataDir(trustDir string) string { return filepath.Join(trustDir, "metadata") }
func targetsDir(trustDir string) string  { return filepath.Join(trustDir, "targets") }

// newStoreFromURL builds a MetadataStore from a CLI-supplied location: a
// bare filesystem path (or "file://" URL) becomes a store.FileStore; any
// other URL becomes a store.HTTPStore.
func newStoreFromURL(raw string) (store.MetadataStore, error) {
	if raw == "" {
		return nil, fmt.Errorf("no URL configured")
	}
	if strings.HasPrefix(raw, "file://") {
		return store.NewFileStore(strings.TrimPrefix(raw, "file://")), nil
	}
	if !strings.Contains(raw, "://") {
		return store.NewFileStore(raw), nil
	}
	return store.NewHTTPStore(raw, nil)
}

// bootstrapRoot returns the locally cached root.json bytes, fetching and
// pinning them from metadataStore on first use (trust-on-first-use, as
// the spec's loader accepts a caller-attested bootstrap root).
func bootstrapRoot(trustDir string, metadataStore store.MetadataStore) ([]byte, error) {
	cached := filepath.Join(metadataDir(trustDir), "root.json")
	if raw, err := os.ReadFile(cached); err == nil {
		return raw, nil
	}
	raw, err := metadataStore.GetMeta("root.json", client.DefaultLimits.Root)
	if err != nil {
		return nil, fmt.Errorf("fetching bootstrap root: %w", err)
	}
	if err := os.MkdirAll(metadataDir(trustDir), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(cached, raw, 0o644); err != nil {
		return nil, err
	}
	return raw, nil
}

// loadRemoteRepository runs the full loader sequence against the
// configured metadata/targets URLs, pinning (or reusing) the trust dir's
// bootstrap root.
func loadRemoteRepository(trustDir, metadataURL, targetsURL string) (*client.Repository, error) {
	metadataStore, err := newStoreFromURL(metadataURL)
	if err != nil {
		return nil, fmt.Errorf("metadata store: %w", err)
	}
	if targetsURL == "" {
		targetsURL = metadataURL
	}
	targetsStore, err := newStoreFromURL(targetsURL)
	if err != nil {
		return nil, fmt.Errorf("targets store: %w", err)
	}
	raw, err := bootstrapRoot(trustDir, metadataStore)
	if err != nil {
		return nil, err
	}
	loader := client.NewLoader(metadataStore, targetsStore, client.Safe, client.DefaultLimits)
	repository, err := loader.Load(raw)
	if err != nil {
		return nil, err
	}
	attachDelegationHints(trustDir, repository)
	return repository, nil
}

// attachDelegationHints opens trustDir's delegation memo cache and wires
// it into repository, if the cache can be opened. A failure here only
// costs the traversal-order shortcut, never correctness, so it is logged
// and swallowed rather than propagated.
func attachDelegationHints(trustDir string, repository *client.Repository) {
	cache, err := delegationcache.Open(filepath.Join(trustDir, "private", "delegation_hints.sqlite3"))
	if err != nil {
		log.Warnf("opening delegation hint cache: %v", err)
		return
	}
	repository.SetDelegationHintCache(cache)
}

// loadLocalRepository verifies the trust dir's own cached metadata tree
// against itself, used by commands that mutate a repo already created by
// `create` without talking to a remote origin.
func loadLocalRepository(trustDir string) (*client.Repository, error) {
	fileStore := store.NewFileStore(metadataDir(trustDir))
	targetsFileStore := store.NewFileStore(targetsDir(trustDir))
	raw, err := os.ReadFile(filepath.Join(metadataDir(trustDir), "root.json"))
	if err != nil {
		return nil, fmt.Errorf("reading local root.json (run `tuf create` first): %w", err)
	}
	loader := client.NewLoader(fileStore, targetsFileStore, client.Safe, client.DefaultLimits)
	repository, err := loader.Load(raw)
	if err != nil {
		return nil, err
	}
	attachDelegationHints(trustDir, repository)
	return repository, nil
}

// cacheVerifiedRepo persists a just-verified (not edited) Repo's metadata
// tree into trustDir: every loaded draft is marked Signed purely so
// Writer.WriteRepo treats it as publishable, since its Signed envelope
// was already validated by the loader.
func cacheVerifiedRepo(trustDir string, repo *tuf.Repo) error {
	if repo.Root != nil {
		repo.Root.State = tuf.StateSigned
	}
	if repo.Timestamp != nil {
		repo.Timestamp.State = tuf.StateSigned
	}
	if repo.Snapshot != nil {
		repo.Snapshot.State = tuf.StateSigned
	}
	for _, draft := range repo.Targets {
		draft.State = tuf.StateSigned
	}
	w := tuf.NewWriter(trustDir)
	return w.WriteRepo(repo)
}

// signingKeysFor collects every public key the local keystore holds for
// role, for use as a RepositoryEditor/TargetsEditor Sign() argument.
func signingKeysFor(ks *fileKeyStore, role string) []*data.Key {
	ids := ks.ListKeys(role)
	keys := make([]*data.Key, 0, len(ids))
	for _, id := range ids {
		if k := ks.GetKey(id); k != nil {
			keys = append(keys, k)
		}
	}
	return keys
}

func allRoleKeys(ks *fileKeyStore) map[string][]*data.Key {
	out := make(map[string][]*data.Key)
	for id, role := range ks.ListAllKeys() {
		if k := ks.GetKey(id); k != nil {
			out[role] = append(out[role], k)
		}
	}
	return out
}

func defaultExpiry() time.Time {
	return time.Now().UTC().AddDate(1, 0, 0).Truncate(time.Second)
}

func parseExpiry(s string) (time.Time, error) {
	if s == "" {
		return defaultExpiry(), nil
	}
	return time.Parse(time.RFC3339, s)
}
