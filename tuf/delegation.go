package tuf

import (
	"crypto/sha256"
	"fmt"

	"github.com/tufctl/tuf/tuf/data"
)

// DelegationLoader fetches (or returns the memoized) TargetsFile for a
// named delegatee, verifying it against parent's delegation key
// assignment per spec §4.4 step 5. Implementations (the Loader) memoize
// by role name so repeated resolutions within one Repository don't
// re-fetch (spec §4.5's "resolver memoizes loaded delegated role
// documents").
type DelegationLoader func(roleName string, parent *TargetsFile) (*TargetsFile, error)

// pathHex returns the lowercase-hex SHA-256 digest of a target path, used
// for hash-prefix delegation matching.
func pathHex(path string) string {
	sum := sha256.Sum256([]byte(path))
	return fmt.Sprintf("%x", sum)
}

// FindTarget performs the pre-order, left-to-right delegation walk
// described in spec §4.5, starting at the top-level targets role. It
// returns the authoritative descriptor and the name of the role that
// served it, or ErrTargetNotFound if no role in the tree claims path.
func (r *Repo) FindTarget(path string, load DelegationLoader) (*data.TargetFileMeta, string, error) {
	return r.FindTargetHinted(path, "", load)
}

// FindTargetHinted is FindTarget with a traversal-order hint: at each
// node, a delegation entry named hintRole (if any) is tried before its
// siblings instead of in declared order. The hint changes nothing about
// which entries are eligible or how they are verified — a mismatched or
// stale hintRole (e.g. from a delegation memo cache built under an
// older tree) just costs the normal declared-order walk, never a wrong
// answer.
func (r *Repo) FindTargetHinted(path, hintRole string, load DelegationLoader) (*data.TargetFileMeta, string, error) {
	top, ok := r.Targets[data.CanonicalTargetsRole]
	if !ok {
		return nil, "", ErrNotLoaded{Role: data.CanonicalTargetsRole}
	}
	return resolveTarget(top, path, pathHex(path), hintRole, load)
}

func resolveTarget(node *TargetsFile, path, digestHex, hintRole string, load DelegationLoader) (*data.TargetFileMeta, string, error) {
	if meta, ok := node.Targets.Targets[path]; ok {
		m := meta
		return &m, node.Name, nil
	}
	if node.Targets.Delegations == nil {
		return nil, "", ErrTargetNotFound{Path: path}
	}
	for _, entry := range orderByHint(node.Targets.Delegations.Roles, hintRole, path, digestHex) {
		matchesPaths := len(entry.Paths) > 0 && entry.CheckPaths(path)
		matchesPrefixes := len(entry.PathHashPrefixes) > 0 && entry.CheckPrefixes(digestHex)
		if !matchesPaths && !matchesPrefixes {
			continue
		}
		child, err := load(entry.Name, node)
		if err != nil {
			return nil, "", err
		}
		meta, role, err := resolveTarget(child, path, digestHex, hintRole, load)
		if err == nil {
			return meta, role, nil
		}
		if entry.Terminating {
			// A terminating match cuts off every later sibling in this
			// parent, regardless of whether recursion found the target.
			return nil, "", ErrTargetNotFound{Path: path}
		}
	}
	return nil, "", ErrTargetNotFound{Path: path}
}

// orderByHint returns roles with the entry named hint (if present) moved
// to the front, leaving every other entry in its declared relative order.
// Roles are returned unchanged when an entry declared before the hinted
// one matches path, since that entry would be consulted first in declared
// order and may serve or cut off path.
func orderByHint(roles []*data.DelegationRole, hint, path, digestHex string) []*data.DelegationRole {
	if hint == "" {
		return roles
	}
	idx := -1
	for i, r := range roles {
		if r.Name == hint {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return roles
	}
	for _, r := range roles[:idx] {
		if (len(r.Paths) > 0 && r.CheckPaths(path)) || (len(r.PathHashPrefixes) > 0 && r.CheckPrefixes(digestHex)) {
			return roles
		}
	}
	ordered := make([]*data.DelegationRole, 0, len(roles))
	ordered = append(ordered, roles[idx])
	ordered = append(ordered, roles[:idx]...)
	ordered = append(ordered, roles[idx+1:]...)
	return ordered
}

// RolesForTarget returns the delegation entries at node whose path set
// matches path, mirroring kipz-go-tuf-metadata's
// Delegations.GetRolesForTarget — used by callers (e.g.
// RoleAuthorizedForPath) that need the match without a full walk.
func RolesForTarget(node *data.TargetsSigned, path string) []*data.DelegationRole {
	if node.Delegations == nil {
		return nil
	}
	digestHex := pathHex(path)
	var matches []*data.DelegationRole
	for _, entry := range node.Delegations.Roles {
		if (len(entry.Paths) > 0 && entry.CheckPaths(path)) || (len(entry.PathHashPrefixes) > 0 && entry.CheckPrefixes(digestHex)) {
			matches = append(matches, entry)
		}
	}
	return matches
}

// RoleAuthorizedForPath reports whether role (the currently selected
// targets document) is authorized to carry path, per its parent's
// delegation rule. The top-level targets role is always authorized for
// every path since nothing delegates into it.
func RoleAuthorizedForPath(role string, parentTargets *data.TargetsSigned, path string) bool {
	if role == data.CanonicalTargetsRole {
		return true
	}
	for _, m := range RolesForTarget(parentTargets, path) {
		if m.Name == role {
			return true
		}
	}
	return false
}
