package tuf

import (
	"time"

	"github.com/tufctl/tuf/tuf/data"
	"github.com/tufctl/tuf/tuf/signed"
)

// RoleAuthority is the (keys, authorized key-ids, threshold) triple that
// controls signature validity for one role document. For the top-level
// targets role this comes from root's role assignment; for a delegated
// role it comes from the parent targets document's Delegations block —
// delegation keys are scoped to the node that declares them, never global.
type RoleAuthority struct {
	Keys      map[string]*data.Key
	KeyIDs    []string
	Threshold int
}

// TargetsEditor mutates a single targets document (top-level or
// delegated) and re-signs it in isolation. Operations are chainable
// (each returns the editor); the first error encountered is sticky and
// short-circuits subsequent operations, surfaced by Sign (and inspectable
// via Err), mirroring the builder pattern used throughout Go's standard
// library (e.g. bufio.Scanner, text/template's chained Parse calls).
type TargetsEditor struct {
	repo      *Repo
	role      string
	authority RoleAuthority
	err       error
}

// NewTargetsEditor returns an editor scoped to role, which must already
// be present in repo.Targets (top-level targets always is after a fresh
// Repo; delegated roles must have been loaded or created first).
func NewTargetsEditor(repo *Repo, role string, authority RoleAuthority) *TargetsEditor {
	return &TargetsEditor{repo: repo, role: role, authority: authority}
}

// Err returns the first error recorded by a chained operation, if any.
func (e *TargetsEditor) Err() error { return e.err }

func (e *TargetsEditor) draft() *TargetsFile {
	d, ok := e.repo.Targets[e.role]
	if !ok {
		if e.err == nil {
			e.err = ErrUnknownRole{Role: e.role}
		}
		return nil
	}
	return d
}

// markDirty transitions draft into StateDirty. Leaving StateLoaded, it
// bumps the version to LoadedVersion+1 (unless it was already moved past
// it); leaving StateSigned, whose bytes are frozen for their version, it
// bumps the version by one. A draft already in StateDirty is left as is.
// A later explicit Version() call may override this, as long as the result
// still exceeds LoadedVersion.
func markDirty(state *DraftState, version *int64, loadedVersion int64) {
	if *state != StateDirty {
		wasSigned := *state == StateSigned
		*state = StateDirty
		if *version == loadedVersion || wasSigned {
			*version++
		}
	}
}

// AddTarget adds or overwrites the descriptor for name in the selected
// targets role. Fails if the role is not authorized for name by its
// parent's delegation rules, as reported by the authorized argument (the
// caller computes it, e.g. with RoleAuthorizedForPath, since a bare
// TargetsEditor has no parent pointer of its own).
func (e *TargetsEditor) AddTarget(name string, desc data.TargetFileMeta, authorized bool) *TargetsEditor {
	if e.err != nil {
		return e
	}
	d := e.draft()
	if d == nil {
		return e
	}
	if !authorized {
		e.err = ErrNotDirectDelegatee{Role: e.role}
		return e
	}
	d.Targets.Targets[name] = desc
	markDirty(&d.State, &d.Targets.Version, d.LoadedVersion)
	return e
}

// RemoveTarget removes name if present. Idempotent: removing an absent
// target is a no-op, not an error, and does not dirty the draft.
func (e *TargetsEditor) RemoveTarget(name string) *TargetsEditor {
	if e.err != nil {
		return e
	}
	d := e.draft()
	if d == nil {
		return e
	}
	if _, ok := d.Targets.Targets[name]; !ok {
		return e
	}
	delete(d.Targets.Targets, name)
	markDirty(&d.State, &d.Targets.Version, d.LoadedVersion)
	return e
}

// AddKey registers keys in the selected role's delegations key map,
// creating the Delegations block if the role has none yet. If role is non-empty, the
// key-ids are also appended to that delegated role's authorized set.
// Idempotent on duplicate key-ids.
func (e *TargetsEditor) AddKey(keys []*data.Key, role string) *TargetsEditor {
	if e.err != nil {
		return e
	}
	d := e.draft()
	if d == nil {
		return e
	}
	if d.Targets.Delegations == nil {
		d.Targets.Delegations = &data.Delegations{Keys: map[string]*data.Key{}}
	}
	changed := false
	for _, k := range keys {
		if _, ok := d.Targets.Delegations.Keys[k.ID()]; !ok {
			d.Targets.Delegations.Keys[k.ID()] = k
			changed = true
		}
	}
	if role != "" {
		for _, r := range d.Targets.Delegations.Roles {
			if r.Name == role {
				before := len(r.KeyIDs)
				ids := make([]string, 0, len(keys))
				for _, k := range keys {
					ids = append(ids, k.ID())
				}
				r.AddKeys(ids)
				if len(r.KeyIDs) != before {
					changed = true
				}
				break
			}
		}
	}
	if changed {
		markDirty(&d.State, &d.Targets.Version, d.LoadedVersion)
	}
	return e
}

// RemoveKey removes keyID from the delegations key map and, if role is
// given, from that role's authorized set. Fails with ErrThresholdNotMet
// if the removal would leave the role under its threshold.
func (e *TargetsEditor) RemoveKey(keyID, role string) *TargetsEditor {
	if e.err != nil {
		return e
	}
	d := e.draft()
	if d == nil || d.Targets.Delegations == nil {
		return e
	}
	if role != "" {
		for _, r := range d.Targets.Delegations.Roles {
			if r.Name != role {
				continue
			}
			remaining := len(r.KeyIDs)
			if r.ValidKeyID(keyID) {
				remaining--
			}
			if remaining < r.Threshold {
				e.err = ErrThresholdNotMet{Role: role, Have: remaining, Want: r.Threshold}
				return e
			}
			r.RemoveKeys([]string{keyID})
			break
		}
	}
	delete(d.Targets.Delegations.Keys, keyID)
	markDirty(&d.State, &d.Targets.Version, d.LoadedVersion)
	return e
}

// EnsureDelegations lazily initializes the selected role's Delegations
// block so AddRole/AddKey have somewhere to write.
func (e *TargetsEditor) EnsureDelegations() *TargetsEditor {
	if e.err != nil {
		return e
	}
	d := e.draft()
	if d == nil {
		return e
	}
	if d.Targets.Delegations == nil {
		d.Targets.Delegations = &data.Delegations{Keys: map[string]*data.Key{}}
	}
	return e
}

// AddRole adds a new delegation entry to the selected role's
// Delegations block and registers childDoc (the already-fetched and
// verified delegatee document, per spec §4.4 verification rules applied
// by the caller before invoking AddRole) as the working-set document for
// that name. Fails with ErrDuplicateRole if name is already delegated
// from this node.
func (e *TargetsEditor) AddRole(name string, keys []*data.Key, threshold int, paths, pathHashPrefixes []string, childDoc *TargetsFile) *TargetsEditor {
	if e.err != nil {
		return e
	}
	d := e.draft()
	if d == nil {
		return e
	}
	e.EnsureDelegations()
	if e.err != nil {
		return e
	}
	for _, r := range d.Targets.Delegations.Roles {
		if r.Name == name {
			e.err = ErrDuplicateRole{Role: name}
			return e
		}
	}
	keyIDs := make([]string, 0, len(keys))
	for _, k := range keys {
		d.Targets.Delegations.Keys[k.ID()] = k
		keyIDs = append(keyIDs, k.ID())
	}
	entry, err := data.NewDelegationRole(name, threshold, keyIDs, paths, pathHashPrefixes)
	if err != nil {
		e.err = err
		return e
	}
	d.Targets.Delegations.Roles = append(d.Targets.Delegations.Roles, entry)
	childDoc.Name = name
	childDoc.Parent = e.role
	e.repo.Targets[name] = childDoc
	markDirty(&d.State, &d.Targets.Version, d.LoadedVersion)
	return e
}

// RemoveRole removes the named delegation entry. If recursive is false
// and name is not an immediate child of the selected role,
// ErrNotDirectDelegatee is returned. If recursive is true, name is also
// searched for below the selected role's loaded delegatees, and name and
// every descendant of name in the editor's working set is removed.
func (e *TargetsEditor) RemoveRole(name string, recursive bool) *TargetsEditor {
	if e.err != nil {
		return e
	}
	d := e.draft()
	if d == nil || d.Targets.Delegations == nil {
		return e
	}
	idx := -1
	for i, r := range d.Targets.Delegations.Roles {
		if r.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		if !recursive {
			e.err = ErrNotDirectDelegatee{Role: name}
			return e
		}
		for _, r := range d.Targets.Delegations.Roles {
			if _, loaded := e.repo.Targets[r.Name]; !loaded {
				continue
			}
			sub := &TargetsEditor{repo: e.repo, role: r.Name, authority: e.authority}
			sub.RemoveRole(name, true)
			if sub.err != nil {
				e.err = sub.err
				return e
			}
		}
		return e
	}
	d.Targets.Delegations.Roles = append(d.Targets.Delegations.Roles[:idx], d.Targets.Delegations.Roles[idx+1:]...)
	markDirty(&d.State, &d.Targets.Version, d.LoadedVersion)
	if recursive {
		e.removeDescendants(name)
	}
	delete(e.repo.Targets, name)
	return e
}

func (e *TargetsEditor) removeDescendants(name string) {
	child, ok := e.repo.Targets[name]
	if !ok || child.Targets.Delegations == nil {
		return
	}
	for _, r := range child.Targets.Delegations.Roles {
		e.removeDescendants(r.Name)
		delete(e.repo.Targets, r.Name)
	}
}

// Version sets the draft's version explicitly. Must exceed the loaded
// version; setting it to the loaded version or lower is an error (spec's
// "setting a version <= the previously loaded version is an error").
func (e *TargetsEditor) Version(v int64) *TargetsEditor {
	if e.err != nil {
		return e
	}
	d := e.draft()
	if d == nil {
		return e
	}
	if v <= d.LoadedVersion {
		e.err = ErrVersionRollback{Role: e.role, Observed: d.LoadedVersion, Got: v}
		return e
	}
	d.Targets.Version = v
	if d.State != StateDirty {
		d.State = StateDirty
	}
	return e
}

// Expires sets the draft's expiration timestamp, dirtying it.
func (e *TargetsEditor) Expires(t time.Time) *TargetsEditor {
	if e.err != nil {
		return e
	}
	d := e.draft()
	if d == nil {
		return e
	}
	d.Targets.Expires = t
	markDirty(&d.State, &d.Targets.Version, d.LoadedVersion)
	return e
}

// Sign canonicalizes the draft (if dirty) and signs it with the given
// keys, retaining only signatures whose key-ids are in e.authority and
// requiring at least e.authority.Threshold valid signatures overall
// (across both freshly produced and previously retained signatures).
func (e *TargetsEditor) Sign(keys ...*data.Key) error {
	if e.err != nil {
		return e.err
	}
	d := e.draft()
	if d == nil {
		return e.err
	}
	body, err := signed.MarshalCanonical(d.Targets)
	if err != nil {
		return err
	}
	env := &data.Signed{Signed: body}
	if d.State != StateDirty && d.Signed != nil {
		env.Signatures = d.Signed.Signatures
	}
	if err := signed.Sign(e.repo.CryptoService, env, keys...); err != nil {
		return err
	}
	valid, err := signed.VerifyThreshold(e.role, env.Signed, env.Signatures, e.authority.Keys, e.authority.KeyIDs, e.authority.Threshold)
	if err != nil {
		return err
	}
	filtered := make([]data.Signature, 0, len(valid))
	validSet := make(map[string]struct{}, len(valid))
	for _, id := range valid {
		validSet[id] = struct{}{}
	}
	for _, sig := range env.Signatures {
		if _, ok := validSet[sig.KeyID]; ok {
			filtered = append(filtered, sig)
		}
	}
	env.Signatures = filtered
	d.Signed = env
	d.State = StateSigned
	return nil
}

// roleAssignment returns the (keys, authorized key-ids, threshold)
// authority this editor's Sign verifies signatures against.
func (e *TargetsEditor) roleAssignment() *RoleAuthority { return &e.authority }
