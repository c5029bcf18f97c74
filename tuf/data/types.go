// Package data defines the canonical TUF 1.0.0 role document schema: the
// five role payload types, key and hash representations, and the
// delegation structures that tie them together.
package data

import (
	"encoding/hex"
	"fmt"
	"time"
)

// SpecVersion is the TUF specification version this toolkit implements.
// Every role document's Signed.SpecVersion must equal this value.
const SpecVersion = "1.0.0"

// Role type tags, used as the Signed._type discriminator and as the
// canonical names of the four top-level metadata files (without ".json").
const (
	CanonicalRootRole      = "root"
	CanonicalTimestampRole = "timestamp"
	CanonicalSnapshotRole  = "snapshot"
	CanonicalTargetsRole   = "targets"
)

// BaseRoles lists the four top-level roles every root document must assign.
var BaseRoles = []string{CanonicalRootRole, CanonicalTimestampRole, CanonicalSnapshotRole, CanonicalTargetsRole}

// HexBytes is a byte slice that marshals to and from lowercase hex in JSON,
// used for hash digests and signature bytes. Round-tripping through the
// original textual form is preserved because hex encoding is canonical
// (no alternate representation of the same bytes).
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hex.EncodeToString(h) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("data: invalid hex bytes literal %q", b)
	}
	decoded, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return fmt.Errorf("data: invalid hex bytes: %w", err)
	}
	*h = decoded
	return nil
}

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

// Hashes maps a hash algorithm name ("sha256", "sha512") to the lowercase
// hex digest of a file under that algorithm.
type Hashes map[string]HexBytes

// Equal reports whether two hash sets agree on every algorithm they share.
// Per the spec, hash verification only requires every *declared* digest to
// match; it does not require the sets to be identical.
func (h Hashes) Equal(other Hashes) bool {
	for alg, digest := range h {
		od, ok := other[alg]
		if !ok {
			continue
		}
		if digest.String() != od.String() {
			return false
		}
	}
	return true
}

// FileMeta is the common (version, length, hashes) triple used for both
// snapshot "meta" entries and timestamp's single snapshot entry. Length and
// Hashes are optional (zero value means "not declared").
type FileMeta struct {
	Version int64  `json:"version"`
	Length  int64  `json:"length,omitempty"`
	Hashes  Hashes `json:"hashes,omitempty"`
}

// TargetFileMeta is a target descriptor: the (length, hashes, custom)
// triple recorded for a target artifact in a targets document. Unlike
// FileMeta, Hashes is mandatory (at least one of sha256/sha512).
type TargetFileMeta struct {
	Length int64           `json:"length"`
	Hashes Hashes          `json:"hashes"`
	Custom *RawMessage     `json:"custom,omitempty"`
}

// RawMessage defers JSON decoding, used for target custom metadata whose
// shape is caller-defined.
type RawMessage []byte

// MarshalJSON implements json.Marshaler.
func (m RawMessage) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return m, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	if m == nil {
		return fmt.Errorf("data: RawMessage.UnmarshalJSON on nil pointer")
	}
	*m = append((*m)[0:0], data...)
	return nil
}

// RoleKeys is a role's key assignment within root.json: the set of
// authorized key-ids and the signing threshold.
type RoleKeys struct {
	KeyIDs    []string `json:"keyids"`
	Threshold int      `json:"threshold"`
}

// ValidKey reports whether keyID is among this role's authorized key-ids.
func (r *RoleKeys) ValidKey(keyID string) bool {
	for _, k := range r.KeyIDs {
		if k == keyID {
			return true
		}
	}
	return false
}

// AddKeyIDs appends key-ids not already present, preserving order.
func (r *RoleKeys) AddKeyIDs(keyIDs []string) {
	r.KeyIDs = mergeStrSlices(r.KeyIDs, keyIDs)
}

// RemoveKeyIDs removes the given key-ids, preserving survivor order.
func (r *RoleKeys) RemoveKeyIDs(keyIDs []string) {
	r.KeyIDs = subtractStrSlices(r.KeyIDs, keyIDs)
}

// RootSigned is the "signed" payload of a root.json document.
type RootSigned struct {
	Type               string               `json:"_type"`
	SpecVersion        string               `json:"spec_version"`
	Version            int64                `json:"version"`
	Expires            time.Time            `json:"expires"`
	Keys               map[string]*Key      `json:"keys"`
	Roles              map[string]*RoleKeys `json:"roles"`
	ConsistentSnapshot bool                 `json:"consistent_snapshot"`
}

// TimestampSigned is the "signed" payload of a timestamp.json document.
type TimestampSigned struct {
	Type        string              `json:"_type"`
	SpecVersion string              `json:"spec_version"`
	Version     int64               `json:"version"`
	Expires     time.Time           `json:"expires"`
	Meta        map[string]FileMeta `json:"meta"`
}

// SnapshotSigned is the "signed" payload of a snapshot.json document.
type SnapshotSigned struct {
	Type        string              `json:"_type"`
	SpecVersion string              `json:"spec_version"`
	Version     int64               `json:"version"`
	Expires     time.Time           `json:"expires"`
	Meta        map[string]FileMeta `json:"meta"`
}

// TargetsSigned is the "signed" payload of a targets.json (or delegated
// <role>.json) document.
type TargetsSigned struct {
	Type        string                    `json:"_type"`
	SpecVersion string                    `json:"spec_version"`
	Version     int64                     `json:"version"`
	Expires     time.Time                 `json:"expires"`
	Targets     map[string]TargetFileMeta `json:"targets"`
	Delegations *Delegations              `json:"delegations,omitempty"`
}

// DelegationRole is one entry in a Delegations block: the rule by which a
// targets role authorizes another named role to speak for a subset of
// target paths.
type DelegationRole struct {
	Name             string   `json:"name"`
	KeyIDs           []string `json:"keyids"`
	Threshold        int      `json:"threshold"`
	Paths            []string `json:"paths,omitempty"`
	PathHashPrefixes []string `json:"path_hash_prefixes,omitempty"`
	Terminating      bool     `json:"terminating"`
}

// Delegations is the optional delegations block carried by a targets
// document: key material scoped to this node plus the ordered list of
// delegation entries.
type Delegations struct {
	Keys  map[string]*Key   `json:"keys"`
	Roles []*DelegationRole `json:"roles"`
}

// Signature binds a key-id to a signature over a document's canonical
// Signed encoding.
type Signature struct {
	KeyID     string   `json:"keyid"`
	Signature HexBytes `json:"sig"`
}

// Signed is the on-the-wire envelope shared by every role document: a
// signed body plus its signatures. The Signed field carries the raw canonical
// bytes of the body so Sign/Verify operate on exactly what was parsed,
// never a re-derived re-encoding.
type Signed struct {
	Signed     RawMessage  `json:"signed"`
	Signatures []Signature `json:"signatures"`
}
