package client

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/tufctl/tuf/tuf"
	"github.com/tufctl/tuf/tuf/data"
	"github.com/tufctl/tuf/tuf/signed"
	"github.com/tufctl/tuf/tuf/store"
)

// DelegationHintCache supplies and records traversal-order hints for
// repeated delegation resolutions against the same trust directory
// (e.g. tuf/delegationcache.Cache). A miss or a stale hint costs an
// ordinary full walk; it is never treated as a trust decision.
type DelegationHintCache interface {
	Lookup(path string) (role string, ok bool)
	Remember(path, role string)
}

// Repository is the read-side handle a Loader hands back: the verified
// top-level roles, plus on-demand delegated targets resolution and
// length/hash-checked target streaming.
type Repository struct {
	repo   *tuf.Repo
	loader *Loader
	hints  DelegationHintCache
}

// SetDelegationHintCache attaches a cross-invocation traversal-order hint
// cache to this Repository. Optional; ReadTarget falls back to an
// unhinted walk when none is set.
func (r *Repository) SetDelegationHintCache(hints DelegationHintCache) {
	r.hints = hints
}

// Repo exposes the underlying tuf.Repo so a caller can hand it to a
// tuf.RepositoryEditor and republish it with changes, without re-fetching
// and re-verifying what Load already trusted.
func (r *Repository) Repo() *tuf.Repo {
	return r.repo
}

// Targets returns the verified top-level targets document.
func (r *Repository) Targets() *data.TargetsSigned {
	return r.repo.Targets[data.CanonicalTargetsRole].Targets
}

// CachedTargetsIter returns every delegated targets document already
// resolved and loaded into this Repository's working set (top-level
// targets excluded), in no particular order.
func (r *Repository) CachedTargetsIter() []*data.TargetsSigned {
	out := make([]*data.TargetsSigned, 0, len(r.repo.Targets))
	for name, draft := range r.repo.Targets {
		if name == data.CanonicalTargetsRole {
			continue
		}
		out = append(out, draft.Targets)
	}
	return out
}

// loadDelegatee implements tuf.DelegationLoader against this
// Repository's metadata store, memoizing into repo.Targets and verifying
// the fetched document against parent's delegation key assignment (not
// root's), per spec §4.4 step 5 / §4.5.
func (r *Repository) loadDelegatee(roleName string, parent *tuf.TargetsFile) (*tuf.TargetsFile, error) {
	if cached, ok := r.repo.Targets[roleName]; ok {
		return cached, nil
	}

	var entry *data.DelegationRole
	for _, e := range parent.Targets.Delegations.Roles {
		if e.Name == roleName {
			entry = e
			break
		}
	}
	if entry == nil {
		return nil, tuf.ErrUnknownRole{Role: roleName}
	}

	name := roleName + ".json"
	raw, err := r.loader.Metadata.GetMeta(name, r.loader.Limits.Delegated)
	if err != nil {
		return nil, tuf.ErrTransport{URL: name, Err: err}
	}
	env, err := parseEnvelope(roleName, raw)
	if err != nil {
		return nil, err
	}
	if _, err := signed.VerifyThreshold(roleName, env.Signed, env.Signatures, parent.Targets.Delegations.Keys, entry.KeyIDs, entry.Threshold); err != nil {
		return nil, err
	}
	var payload data.TargetsSigned
	if err := json.Unmarshal(env.Signed, &payload); err != nil {
		return nil, tuf.ErrParse{Role: roleName, Err: err}
	}
	if err := r.loader.checkExpiry(roleName, payload.Expires); err != nil {
		return nil, err
	}

	draft := &tuf.TargetsFile{
		Signed: env, Targets: &payload, Name: roleName, Parent: parent.Name,
		State: tuf.StateLoaded, LoadedVersion: payload.Version,
	}
	r.repo.Targets[roleName] = draft
	return draft, nil
}

// ReadTarget resolves path's authoritative descriptor via the delegation
// resolver, fetches it from the targets store with the descriptor's
// length as a hard cap, and checks the whole body against the declared
// length and hash(es) before returning. A mismatch is returned as
// tuf.ErrLengthExceeded or tuf.ErrHashMismatch and no reader is handed
// out; on success the ReadCloser yields the already-verified bytes.
func (r *Repository) ReadTarget(path string) (io.ReadCloser, error) {
	hintRole := ""
	if r.hints != nil {
		hintRole, _ = r.hints.Lookup(path)
	}
	meta, servedBy, err := r.repo.FindTargetHinted(path, hintRole, r.loadDelegatee)
	if err != nil {
		return nil, err
	}
	if r.hints != nil {
		r.hints.Remember(path, servedBy)
	}

	targetName := path
	if r.repo.Root.Root.ConsistentSnapshot {
		if digest, ok := meta.Hashes["sha256"]; ok {
			targetName = hashPrefixedName(path, digest)
		}
	}
	raw, err := r.loader.Targets.GetMeta(targetName, meta.Length)
	if err != nil {
		if _, notFound := err.(store.ErrMetaNotFound); notFound {
			return nil, tuf.ErrTargetNotFound{Path: path}
		}
		return nil, tuf.ErrTransport{URL: targetName, Err: err}
	}

	if int64(len(raw)) != meta.Length {
		return nil, tuf.ErrLengthExceeded{URL: targetName, MaxLength: meta.Length}
	}
	actual := hashAll(raw)
	for alg, digest := range meta.Hashes {
		got, ok := actual[alg]
		if !ok {
			continue
		}
		if got.String() != digest.String() {
			return nil, tuf.ErrHashMismatch{Role: path, Algorithm: alg, Expected: digest.String(), Got: got.String()}
		}
	}

	return io.NopCloser(bytes.NewReader(raw)), nil
}
