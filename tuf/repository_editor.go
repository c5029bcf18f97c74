package tuf

import (
	"sort"
	"time"

	"github.com/tufctl/tuf/tuf/data"
	"github.com/tufctl/tuf/tuf/signed"
)

// RepositoryEditor is the top-level façade over a Repo's four root roles
// plus every targets role in its working set. It owns the root-level key
// and threshold bookkeeping (root.json's own Keys/Roles maps) and the
// cascading re-sign invariant: delegated targets sign first, then
// top-level targets, then snapshot (which records every targets role's
// final version), then timestamp (which records snapshot's).
//
// Grounded on johnsandiford-notary's tuf.Repo methods (AddBaseKeys,
// UpdateSnapshot, UpdateTimestamp) generalized into a chainable builder
// in the same sticky-error style as TargetsEditor.
type RepositoryEditor struct {
	repo           *Repo
	targetsEditors map[string]*TargetsEditor
	err            error
}

// NewRepositoryEditor wraps repo for mutation.
func NewRepositoryEditor(repo *Repo) *RepositoryEditor {
	return &RepositoryEditor{repo: repo, targetsEditors: make(map[string]*TargetsEditor)}
}

// Err returns the first error recorded by a chained operation, if any.
func (e *RepositoryEditor) Err() error { return e.err }

func (e *RepositoryEditor) root() *RootFile {
	if e.repo.Root == nil {
		if e.err == nil {
			e.err = ErrNotLoaded{Role: data.CanonicalRootRole}
		}
		return nil
	}
	return e.repo.Root
}

// AddKey adds keys to root's key pool and authorizes them for role (one
// of the four base roles). Idempotent on duplicate key-ids.
func (e *RepositoryEditor) AddKey(role string, keys []*data.Key) *RepositoryEditor {
	if e.err != nil {
		return e
	}
	r := e.root()
	if r == nil {
		return e
	}
	rk, ok := r.Root.Roles[role]
	if !ok {
		e.err = ErrUnknownRole{Role: role}
		return e
	}
	changed := false
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, exists := r.Root.Keys[k.ID()]; !exists {
			r.Root.Keys[k.ID()] = k
			changed = true
		}
		ids = append(ids, k.ID())
	}
	before := len(rk.KeyIDs)
	rk.AddKeyIDs(ids)
	if len(rk.KeyIDs) != before {
		changed = true
	}
	if changed {
		markDirty(&r.State, &r.Root.Version, r.LoadedVersion)
	}
	return e
}

// RemoveKey revokes keyID's authorization for role. Fails with
// ErrThresholdNotMet if doing so would leave role under its threshold.
func (e *RepositoryEditor) RemoveKey(role, keyID string) *RepositoryEditor {
	if e.err != nil {
		return e
	}
	r := e.root()
	if r == nil {
		return e
	}
	rk, ok := r.Root.Roles[role]
	if !ok {
		e.err = ErrUnknownRole{Role: role}
		return e
	}
	remaining := len(rk.KeyIDs)
	if rk.ValidKey(keyID) {
		remaining--
	}
	if remaining < rk.Threshold {
		e.err = ErrThresholdNotMet{Role: role, Have: remaining, Want: rk.Threshold}
		return e
	}
	rk.RemoveKeyIDs([]string{keyID})
	markDirty(&r.State, &r.Root.Version, r.LoadedVersion)
	return e
}

// SetThreshold sets role's signing threshold directly on root.json.
func (e *RepositoryEditor) SetThreshold(role string, threshold int) *RepositoryEditor {
	if e.err != nil {
		return e
	}
	r := e.root()
	if r == nil {
		return e
	}
	rk, ok := r.Root.Roles[role]
	if !ok {
		e.err = ErrUnknownRole{Role: role}
		return e
	}
	rk.Threshold = threshold
	markDirty(&r.State, &r.Root.Version, r.LoadedVersion)
	return e
}

// ConsistentSnapshot toggles root's consistent_snapshot flag.
func (e *RepositoryEditor) ConsistentSnapshot(on bool) *RepositoryEditor {
	if e.err != nil {
		return e
	}
	r := e.root()
	if r == nil {
		return e
	}
	if r.Root.ConsistentSnapshot != on {
		r.Root.ConsistentSnapshot = on
		markDirty(&r.State, &r.Root.Version, r.LoadedVersion)
	}
	return e
}

// RootExpires, SnapshotExpires, TimestampExpires set each root role's
// expiration timestamp, dirtying it.
func (e *RepositoryEditor) RootExpires(t time.Time) *RepositoryEditor {
	if e.err != nil {
		return e
	}
	r := e.root()
	if r == nil {
		return e
	}
	r.Root.Expires = t
	markDirty(&r.State, &r.Root.Version, r.LoadedVersion)
	return e
}

func (e *RepositoryEditor) SnapshotExpires(t time.Time) *RepositoryEditor {
	if e.err != nil {
		return e
	}
	if e.repo.Snapshot == nil {
		e.err = ErrNotLoaded{Role: data.CanonicalSnapshotRole}
		return e
	}
	s := e.repo.Snapshot
	s.Snapshot.Expires = t
	markDirty(&s.State, &s.Snapshot.Version, s.LoadedVersion)
	return e
}

func (e *RepositoryEditor) TimestampExpires(t time.Time) *RepositoryEditor {
	if e.err != nil {
		return e
	}
	if e.repo.Timestamp == nil {
		e.err = ErrNotLoaded{Role: data.CanonicalTimestampRole}
		return e
	}
	ts := e.repo.Timestamp
	ts.Timestamp.Expires = t
	markDirty(&ts.State, &ts.Timestamp.Version, ts.LoadedVersion)
	return e
}

// ChangeDelegatedTargets returns the TargetsEditor scoped to role
// (top-level "targets" or any delegated role already present in the
// repo's working set), creating and caching it on first use with the
// correct RoleAuthority resolved from root (for "targets") or the
// parent's delegations block (for everything else).
func (e *RepositoryEditor) ChangeDelegatedTargets(role string) *TargetsEditor {
	if te, ok := e.targetsEditors[role]; ok {
		return te
	}
	draft, ok := e.repo.Targets[role]
	if !ok {
		te := &TargetsEditor{repo: e.repo, role: role, err: ErrUnknownRole{Role: role}}
		e.targetsEditors[role] = te
		return te
	}
	authority, err := e.authorityFor(role, draft)
	te := &TargetsEditor{repo: e.repo, role: role, authority: authority, err: err}
	e.targetsEditors[role] = te
	return te
}

func (e *RepositoryEditor) authorityFor(role string, draft *TargetsFile) (RoleAuthority, error) {
	if role == data.CanonicalTargetsRole {
		r := e.repo.Root
		if r == nil {
			return RoleAuthority{}, ErrNotLoaded{Role: data.CanonicalRootRole}
		}
		rk, ok := r.Root.Roles[data.CanonicalTargetsRole]
		if !ok {
			return RoleAuthority{}, ErrUnknownRole{Role: role}
		}
		return RoleAuthority{Keys: r.Root.Keys, KeyIDs: rk.KeyIDs, Threshold: rk.Threshold}, nil
	}
	parent, ok := e.repo.Targets[draft.Parent]
	if !ok || parent.Targets.Delegations == nil {
		return RoleAuthority{}, ErrUnknownRole{Role: role}
	}
	for _, entry := range parent.Targets.Delegations.Roles {
		if entry.Name == role {
			return RoleAuthority{Keys: parent.Targets.Delegations.Keys, KeyIDs: entry.KeyIDs, Threshold: entry.Threshold}, nil
		}
	}
	return RoleAuthority{}, ErrUnknownRole{Role: role}
}

// Sign performs the cascading re-sign: every dirty targets role (keyed in
// keys by its role name), then root if dirty, then snapshot (rebuilt to
// list every targets role's current version), then timestamp (rebuilt to
// reference snapshot's current version). keys["root"]/["snapshot"]/
// ["timestamp"] supply the signing keys for those three roles.
func (e *RepositoryEditor) Sign(keys map[string][]*data.Key) error {
	if e.err != nil {
		return e.err
	}

	names := make([]string, 0, len(e.repo.Targets))
	for name := range e.repo.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	// Delegated roles before "targets" itself, matching the cascade order
	// delegated targets -> top-level targets -> snapshot -> timestamp.
	sort.SliceStable(names, func(i, j int) bool {
		return names[i] != data.CanonicalTargetsRole && names[j] == data.CanonicalTargetsRole
	})

	snapshotDirty := false
	for _, name := range names {
		draft := e.repo.Targets[name]
		if draft.State != StateDirty {
			continue
		}
		authority, err := e.authorityFor(name, draft)
		if err != nil {
			return err
		}
		te := &TargetsEditor{repo: e.repo, role: name, authority: authority}
		if err := te.Sign(keys[name]...); err != nil {
			return err
		}
		snapshotDirty = true
	}

	if r := e.repo.Root; r != nil && r.State == StateDirty {
		rk := r.Root.Roles[data.CanonicalRootRole]
		body, err := signed.MarshalCanonical(r.Root)
		if err != nil {
			return err
		}
		env := &data.Signed{Signed: body}
		if err := signed.Sign(e.repo.CryptoService, env, keys[data.CanonicalRootRole]...); err != nil {
			return err
		}
		if _, err := signed.VerifyThreshold(data.CanonicalRootRole, env.Signed, env.Signatures, r.Root.Keys, rk.KeyIDs, rk.Threshold); err != nil {
			return err
		}
		r.Signed = env
		r.State = StateSigned
	}

	if snapshotDirty && e.repo.Snapshot != nil {
		for name, draft := range e.repo.Targets {
			e.repo.Snapshot.Snapshot.Meta[name+".json"] = data.FileMeta{Version: draft.Targets.Version}
		}
		markDirty(&e.repo.Snapshot.State, &e.repo.Snapshot.Snapshot.Version, e.repo.Snapshot.LoadedVersion)
	}

	if s := e.repo.Snapshot; s != nil && s.State == StateDirty {
		rk := e.repo.Root.Root.Roles[data.CanonicalSnapshotRole]
		body, err := signed.MarshalCanonical(s.Snapshot)
		if err != nil {
			return err
		}
		env := &data.Signed{Signed: body}
		if err := signed.Sign(e.repo.CryptoService, env, keys[data.CanonicalSnapshotRole]...); err != nil {
			return err
		}
		if _, err := signed.VerifyThreshold(data.CanonicalSnapshotRole, env.Signed, env.Signatures, e.repo.Root.Root.Keys, rk.KeyIDs, rk.Threshold); err != nil {
			return err
		}
		s.Signed = env
		s.State = StateSigned

		if ts := e.repo.Timestamp; ts != nil {
			published, err := jsonMarshalEnvelope(env)
			if err != nil {
				return err
			}
			digest := sha256HexAndLen(published)
			ts.Timestamp.Meta["snapshot.json"] = data.FileMeta{Version: s.Snapshot.Version, Length: digest.length, Hashes: data.Hashes{"sha256": digest.sha256}}
			markDirty(&ts.State, &ts.Timestamp.Version, ts.LoadedVersion)
		}
	}

	if ts := e.repo.Timestamp; ts != nil && ts.State == StateDirty {
		rk := e.repo.Root.Root.Roles[data.CanonicalTimestampRole]
		body, err := signed.MarshalCanonical(ts.Timestamp)
		if err != nil {
			return err
		}
		env := &data.Signed{Signed: body}
		if err := signed.Sign(e.repo.CryptoService, env, keys[data.CanonicalTimestampRole]...); err != nil {
			return err
		}
		if _, err := signed.VerifyThreshold(data.CanonicalTimestampRole, env.Signed, env.Signatures, e.repo.Root.Root.Keys, rk.KeyIDs, rk.Threshold); err != nil {
			return err
		}
		ts.Signed = env
		ts.State = StateSigned
	}

	return nil
}
