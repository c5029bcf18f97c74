package tuf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/tufctl/tuf/tuf/data"
)

// TargetCollisionPolicy governs what WriteTarget does when the
// destination under the targets tree already exists. Existing content is
// not compared, so an identical file counts as a collision too.
type TargetCollisionPolicy int

const (
	// CollisionReplace overwrites the existing file.
	CollisionReplace TargetCollisionPolicy = iota
	// CollisionSkip leaves the existing file untouched and reports no error.
	CollisionSkip
	// CollisionFail returns ErrFilesystem.
	CollisionFail
)

// Writer publishes a signed Repo's metadata and target artifacts onto a
// filesystem tree, matching the layout read_target/the loader expect:
// <dir>/root.json, <dir>/<N>.root.json (every version, never pruned),
// <dir>/timestamp.json, <dir>/snapshot.json (version-prefixed too when
// consistent snapshots are on), <dir>/<role>.json for every targets role,
// and target bodies at <targetsDir>/<name> or, in consistent mode,
// <targetsDir>/<dir of name>/<hash>.<base name of name>.
//
// Grounded on Mindburn-Labs-helm's artifacts.FileStore (temp-file-then-
// rename atomic publication) and kolide-updater's updater.go backup/
// rollback helpers (os.Rename as the sole commit point; never partially
// overwrite a file another reader might be reading concurrently).
type Writer struct {
	MetadataDir string
	TargetsDir  string
	Collision   TargetCollisionPolicy
}

// NewWriter returns a Writer rooted at dir, with metadata under
// dir/metadata and target bodies under dir/targets.
func NewWriter(dir string) *Writer {
	return &Writer{
		MetadataDir: filepath.Join(dir, "metadata"),
		TargetsDir:  filepath.Join(dir, "targets"),
		Collision:   CollisionReplace,
	}
}

// writeAtomic writes body to path via a sibling temp file, fsyncs it, and
// renames it into place — the rename is the only operation visible to a
// concurrent reader, so a reader never observes a partially written file.
func writeAtomic(path string, body []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating metadata directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "fsyncing temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return errors.Wrap(err, "setting temp file permissions")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "renaming into place")
	}
	return nil
}

func marshalSigned(env *data.Signed) ([]byte, error) {
	// env.Signed already holds exact canonical bytes produced at sign
	// time; wrap it back into the {signed, signatures} envelope using the
	// stdlib encoder since no further canonicalization of the envelope
	// itself is required (only the nested "signed" body must be canonical).
	return jsonMarshalEnvelope(env)
}

// WriteRepo publishes root whenever repo has one, and every other role
// document in repo that is in StateSigned, following the version-prefixed
// consistent-snapshot convention when repo.Root.Root.ConsistentSnapshot is
// set.
func (w *Writer) WriteRepo(repo *Repo) error {
	consistent := repo.Root != nil && repo.Root.Root.ConsistentSnapshot

	if repo.Root != nil {
		body, err := marshalSigned(repo.Root.Signed)
		if err != nil {
			return errors.Wrap(err, "marshaling root")
		}
		if err := writeAtomic(filepath.Join(w.MetadataDir, "root.json"), body, 0644); err != nil {
			return ErrFilesystem{Path: "root.json", Err: err}
		}
		versioned := strconv.FormatInt(repo.Root.Root.Version, 10) + ".root.json"
		if err := writeAtomic(filepath.Join(w.MetadataDir, versioned), body, 0644); err != nil {
			return ErrFilesystem{Path: versioned, Err: err}
		}
	}

	for name, draft := range repo.Targets {
		if draft.State != StateSigned {
			continue
		}
		body, err := marshalSigned(draft.Signed)
		if err != nil {
			return errors.Wrapf(err, "marshaling %s", name)
		}
		filename := name + ".json"
		if err := writeAtomic(filepath.Join(w.MetadataDir, filename), body, 0644); err != nil {
			return ErrFilesystem{Path: filename, Err: err}
		}
		if consistent {
			versioned := strconv.FormatInt(draft.Targets.Version, 10) + "." + filename
			if err := writeAtomic(filepath.Join(w.MetadataDir, versioned), body, 0644); err != nil {
				return ErrFilesystem{Path: versioned, Err: err}
			}
		}
	}

	if repo.Snapshot != nil && repo.Snapshot.State == StateSigned {
		body, err := marshalSigned(repo.Snapshot.Signed)
		if err != nil {
			return errors.Wrap(err, "marshaling snapshot")
		}
		if err := writeAtomic(filepath.Join(w.MetadataDir, "snapshot.json"), body, 0644); err != nil {
			return ErrFilesystem{Path: "snapshot.json", Err: err}
		}
		if consistent {
			versioned := strconv.FormatInt(repo.Snapshot.Snapshot.Version, 10) + ".snapshot.json"
			if err := writeAtomic(filepath.Join(w.MetadataDir, versioned), body, 0644); err != nil {
				return ErrFilesystem{Path: versioned, Err: err}
			}
		}
	}

	// timestamp.json is never version-prefixed: it is the one file every
	// client fetches by a fixed name, by design (spec §4.2).
	if repo.Timestamp != nil && repo.Timestamp.State == StateSigned {
		body, err := marshalSigned(repo.Timestamp.Signed)
		if err != nil {
			return errors.Wrap(err, "marshaling timestamp")
		}
		if err := writeAtomic(filepath.Join(w.MetadataDir, "timestamp.json"), body, 0644); err != nil {
			return ErrFilesystem{Path: "timestamp.json", Err: err}
		}
	}

	return nil
}

// WriteTarget copies src into the targets tree under name, content-linked
// by its sha256 hash prefix when consistent is true (the hash prefixes
// only the base name: "<dir of name>/<hash>.<base name>"), plain otherwise. It hard-links when src and the destination share a
// filesystem, falling back to a full copy across filesystem boundaries.
func (w *Writer) WriteTarget(src, name string, meta data.TargetFileMeta, consistent bool) error {
	destName := name
	if consistent {
		digest, ok := meta.Hashes["sha256"]
		if !ok {
			return ErrFilesystem{Path: name, Err: fmt.Errorf("no sha256 hash recorded for %s", name)}
		}
		destName = digest.String() + "." + filepath.Base(name)
	}
	dest := filepath.Join(w.TargetsDir, filepath.Dir(name), destName)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return ErrFilesystem{Path: dest, Err: err}
	}

	if _, err := os.Stat(dest); err == nil {
		switch w.Collision {
		case CollisionSkip:
			return nil
		case CollisionFail:
			return ErrFilesystem{Path: dest, Err: fmt.Errorf("target already exists")}
		}
	}

	tmp := dest + ".tmp"
	os.Remove(tmp)
	if err := os.Link(src, tmp); err != nil {
		if copyErr := copyFile(src, tmp); copyErr != nil {
			return ErrFilesystem{Path: dest, Err: copyErr}
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		return ErrFilesystem{Path: dest, Err: err}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
