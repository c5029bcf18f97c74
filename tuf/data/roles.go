package data

import (
	"path/filepath"
)

// NewDelegationRole builds a DelegationRole, rejecting the case the spec's
// Open Question resolves explicitly: a role declaring both path patterns
// and path-hash-prefixes. TUF forbids mixing them; this toolkit surfaces
// that as DelegationStructureError rather than silently preferring one.
func NewDelegationRole(name string, threshold int, keyIDs, paths, pathHashPrefixes []string) (*DelegationRole, error) {
	if len(paths) > 0 && len(pathHashPrefixes) > 0 {
		return nil, ErrDelegationStructureError{Role: name, Reason: "both paths and path_hash_prefixes set"}
	}
	if threshold < 1 {
		return nil, ErrDelegationStructureError{Role: name, Reason: "threshold must be >= 1"}
	}
	return &DelegationRole{
		Name:             name,
		KeyIDs:           append([]string{}, keyIDs...),
		Threshold:        threshold,
		Paths:            append([]string{}, paths...),
		PathHashPrefixes: append([]string{}, pathHashPrefixes...),
	}, nil
}

// CheckPaths reports whether targetPath matches one of this role's glob
// path patterns. No-op (false) if the role uses hash prefixes instead.
func (r *DelegationRole) CheckPaths(targetPath string) bool {
	for _, pattern := range r.Paths {
		if ok, _ := filepath.Match(pattern, targetPath); ok {
			return true
		}
	}
	return false
}

// CheckPrefixes reports whether the lowercase-hex SHA-256 of the target
// path, pathHex, begins with one of this role's hash prefixes.
func (r *DelegationRole) CheckPrefixes(pathHex string) bool {
	for _, prefix := range r.PathHashPrefixes {
		if len(pathHex) >= len(prefix) && pathHex[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// ValidKeyID reports whether keyID is currently among this role's
// authorized key-ids.
func (r *DelegationRole) ValidKeyID(keyID string) bool {
	for _, id := range r.KeyIDs {
		if id == keyID {
			return true
		}
	}
	return false
}

// AddKeys appends key-ids not already present, preserving order.
func (r *DelegationRole) AddKeys(keyIDs []string) {
	r.KeyIDs = mergeStrSlices(r.KeyIDs, keyIDs)
}

// RemoveKeys removes the given key-ids, preserving the order of survivors.
func (r *DelegationRole) RemoveKeys(keyIDs []string) {
	r.KeyIDs = subtractStrSlices(r.KeyIDs, keyIDs)
}

// AddPaths appends new path patterns; fails if this role uses hash
// prefixes instead (mutually exclusive per TUF).
func (r *DelegationRole) AddPaths(paths []string) error {
	if len(r.PathHashPrefixes) > 0 {
		return ErrDelegationStructureError{Role: r.Name, Reason: "role uses path_hash_prefixes, cannot add paths"}
	}
	r.Paths = mergeStrSlices(r.Paths, paths)
	return nil
}

func mergeStrSlices(orig, add []string) []string {
	seen := make(map[string]struct{}, len(orig))
	out := append([]string{}, orig...)
	for _, s := range orig {
		seen[s] = struct{}{}
	}
	for _, s := range add {
		if _, ok := seen[s]; !ok {
			out = append(out, s)
			seen[s] = struct{}{}
		}
	}
	return out
}

func subtractStrSlices(orig, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, s := range remove {
		drop[s] = struct{}{}
	}
	out := make([]string, 0, len(orig))
	for _, s := range orig {
		if _, ok := drop[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
