// Package tuf implements the TUF 1.0.0 metadata trust engine: the
// in-memory Repo representation shared by the loader (read path) and the
// editor (write path), the delegation resolver, and the signing/version
// bookkeeping that keeps the four top-level roles and any delegated
// targets roles mutually consistent.
//
// Grounded on johnsandiford-notary's tuf.Repo (fields Root/Targets/
// Snapshot/Timestamp, a keysDB, and a signer) and endophage/gotuf's
// TufRepo, generalized so delegation key material lives directly on the
// Root and Delegations payloads rather than a separate KeyDB singleton.
package tuf

import (
	"time"

	"github.com/tufctl/tuf/tuf/data"
	"github.com/tufctl/tuf/tuf/signed"
)

// DraftState tracks where a role document sits in the editor's
// Loaded -> Dirty -> Signed state machine (spec §4.6).
type DraftState int

const (
	// StateLoaded: parsed, signatures intact, not yet touched by a setter.
	StateLoaded DraftState = iota
	// StateDirty: a setter has applied; signatures are stale.
	StateDirty
	// StateSigned: canonical bytes and signatures are frozen for this
	// version; the next mutation returns the draft to StateDirty.
	StateSigned
)

// RootFile pairs a parsed root payload with its signed envelope and the
// version it was loaded at (0 if newly created, never loaded).
type RootFile struct {
	Signed      *data.Signed
	Root        *data.RootSigned
	State       DraftState
	LoadedVersion int64
}

// TimestampFile pairs a parsed timestamp payload with its envelope.
type TimestampFile struct {
	Signed        *data.Signed
	Timestamp     *data.TimestampSigned
	State         DraftState
	LoadedVersion int64
}

// SnapshotFile pairs a parsed snapshot payload with its envelope.
type SnapshotFile struct {
	Signed        *data.Signed
	Snapshot      *data.SnapshotSigned
	State         DraftState
	LoadedVersion int64
}

// TargetsFile pairs a parsed targets (top-level or delegated) payload
// with its envelope. Parent/Name let the delegation resolver and editor
// navigate the tree by name rather than pointer, per spec §9's design
// note on sidestepping cyclic ownership.
type TargetsFile struct {
	Signed        *data.Signed
	Targets       *data.TargetsSigned
	Name          string
	Parent        string
	State         DraftState
	LoadedVersion int64
}

// Repo is the in-memory representation of a TUF repository shared by the
// read path (where it is immutable once produced by the loader) and the
// write path (where the Editor mutates a working copy). Targets maps role
// name ("targets", "targets/foo", ...) to its document.
type Repo struct {
	Root      *RootFile
	Timestamp *TimestampFile
	Snapshot  *SnapshotFile
	Targets   map[string]*TargetsFile

	// CryptoService resolves signing identities for drafts created or
	// owned locally. It may be nil for a pure read-only Repository.
	CryptoService signed.CryptoService
}

// NewRepo constructs an empty Repo around the given CryptoService
// (nil is valid for a read-only Repository produced by the loader).
func NewRepo(cs signed.CryptoService) *Repo {
	return &Repo{
		Targets:       make(map[string]*TargetsFile),
		CryptoService: cs,
	}
}

// NewRootSigned returns a freshly initialized root payload, version 1,
// with empty key/role maps and consistent_snapshot set as requested.
func NewRootSigned(expires time.Time, consistentSnapshot bool) *data.RootSigned {
	roles := make(map[string]*data.RoleKeys, len(data.BaseRoles))
	for _, r := range data.BaseRoles {
		roles[r] = &data.RoleKeys{KeyIDs: []string{}, Threshold: 1}
	}
	return &data.RootSigned{
		Type:               "root",
		SpecVersion:        data.SpecVersion,
		Version:            1,
		Expires:            expires,
		Keys:               make(map[string]*data.Key),
		Roles:              roles,
		ConsistentSnapshot: consistentSnapshot,
	}
}

// NewTimestampSigned returns a freshly initialized timestamp payload
// pointing at snapshot version 1.
func NewTimestampSigned(expires time.Time) *data.TimestampSigned {
	return &data.TimestampSigned{
		Type:        "timestamp",
		SpecVersion: data.SpecVersion,
		Version:     1,
		Expires:     expires,
		Meta: map[string]data.FileMeta{
			"snapshot.json": {Version: 1},
		},
	}
}

// NewSnapshotSigned returns a freshly initialized snapshot payload
// pointing at targets.json version 1.
func NewSnapshotSigned(expires time.Time) *data.SnapshotSigned {
	return &data.SnapshotSigned{
		Type:        "snapshot",
		SpecVersion: data.SpecVersion,
		Version:     1,
		Expires:     expires,
		Meta: map[string]data.FileMeta{
			"targets.json": {Version: 1},
		},
	}
}

// NewTargetsSigned returns a freshly initialized targets payload with no
// targets and no delegations.
func NewTargetsSigned(expires time.Time) *data.TargetsSigned {
	return &data.TargetsSigned{
		Type:        "targets",
		SpecVersion: data.SpecVersion,
		Version:     1,
		Expires:     expires,
		Targets:     make(map[string]data.TargetFileMeta),
	}
}

// IsExpired reports whether referenceTime is after expires.
func IsExpired(expires, referenceTime time.Time) bool {
	return referenceTime.After(expires)
}
