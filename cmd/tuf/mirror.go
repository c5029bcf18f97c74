package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	stdpath "path"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/tufctl/tuf/client"
	"github.com/tufctl/tuf/tuf/store"
)

// writeFileAtomic mirrors tuf.Writer's temp-file-then-rename idiom for the
// raw metadata bytes this file copies verbatim (no re-canonicalization,
// since the bytes are already a validly signed envelope fetched as-is).
func writeFileAtomic(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// mirrorMetadataTree verifies metadataStore's full trust chain (root,
// timestamp, snapshot, top-level targets) and then copies every metadata
// file snapshot.json's meta map names — the complete targets-role
// inventory, top-level and delegated alike, per the cascading re-sign
// invariant that keeps snapshot.meta covering every written targets
// document — into trustDir, length/hash-checked against snapshot's
// declared values.
func mirrorMetadataTree(trustDir, metadataURL string) (*client.Repository, error) {
	metadataStore, err := newStoreFromURL(metadataURL)
	if err != nil {
		return nil, err
	}
	raw, err := bootstrapRoot(trustDir, metadataStore)
	if err != nil {
		return nil, err
	}
	loader := client.NewLoader(metadataStore, metadataStore, client.Safe, client.DefaultLimits)
	repository, err := loader.Load(raw)
	if err != nil {
		return nil, err
	}
	repo := repository.Repo()
	consistent := repo.Root.Root.ConsistentSnapshot

	if err := writeFileAtomic(filepath.Join(metadataDir(trustDir), "root.json"), raw); err != nil {
		return nil, err
	}
	for v := int64(1); v <= repo.Root.Root.Version; v++ {
		name := strconv.FormatInt(v, 10) + ".root.json"
		body, err := metadataStore.GetMeta(name, client.DefaultLimits.Root)
		if err != nil {
			if _, ok := err.(store.ErrMetaNotFound); ok {
				continue
			}
			return nil, fmt.Errorf("fetching %s: %w", name, err)
		}
		if err := writeFileAtomic(filepath.Join(metadataDir(trustDir), name), body); err != nil {
			return nil, err
		}
	}

	tsBody, err := metadataStore.GetMeta("timestamp.json", client.DefaultLimits.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(filepath.Join(metadataDir(trustDir), "timestamp.json"), tsBody); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(repo.Snapshot.Snapshot.Meta))
	for name := range repo.Snapshot.Snapshot.Meta {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		meta := repo.Snapshot.Snapshot.Meta[name]
		fetchName := name
		if consistent {
			fetchName = strconv.FormatInt(meta.Version, 10) + "." + name
		}
		body, err := metadataStore.GetMeta(fetchName, client.DefaultLimits.Delegated)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", fetchName, err)
		}
		if meta.Length != 0 && int64(len(body)) != meta.Length {
			return nil, fmt.Errorf("%s: length mismatch, expected %d got %d", fetchName, meta.Length, len(body))
		}
		if digest, ok := meta.Hashes["sha256"]; ok {
			sum := sha256.Sum256(body)
			if digest.String() != fmt.Sprintf("%x", sum) {
				return nil, fmt.Errorf("%s: sha256 mismatch", fetchName)
			}
		}
		if err := writeFileAtomic(filepath.Join(metadataDir(trustDir), name), body); err != nil {
			return nil, err
		}
		if consistent {
			if err := writeFileAtomic(filepath.Join(metadataDir(trustDir), fetchName), body); err != nil {
				return nil, err
			}
		}
	}

	snapName := "snapshot.json"
	if consistent {
		snapName = strconv.FormatInt(repo.Snapshot.Snapshot.Version, 10) + ".snapshot.json"
	}
	snapBody, err := metadataStore.GetMeta(snapName, client.DefaultLimits.Snapshot)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(filepath.Join(metadataDir(trustDir), "snapshot.json"), snapBody); err != nil {
		return nil, err
	}
	if consistent {
		if err := writeFileAtomic(filepath.Join(metadataDir(trustDir), snapName), snapBody); err != nil {
			return nil, err
		}
	}

	return repository, nil
}

// mirrorTargetBodies copies every target body referenced by the
// top-level targets role from targetsURL into trustDir/targets.
func mirrorTargetBodies(trustDir, targetsURL string, repository *client.Repository) error {
	targetsStore, err := newStoreFromURL(targetsURL)
	if err != nil {
		return err
	}
	for path, meta := range repository.Targets().Targets {
		name := path
		if repository.Repo().Root.Root.ConsistentSnapshot {
			if digest, ok := meta.Hashes["sha256"]; ok {
				dir, base := stdpath.Split(path)
				name = dir + digest.String() + "." + base
			}
		}
		body, err := targetsStore.GetMeta(name, meta.Length)
		if err != nil {
			return fmt.Errorf("fetching target %s: %w", name, err)
		}
		if err := writeFileAtomic(filepath.Join(targetsDir(trustDir), name), body); err != nil {
			return err
		}
	}
	return nil
}
