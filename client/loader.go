// Package client implements the TUF Loader/Verifier (spec §4.4): the
// ordered root-chain / timestamp / snapshot / top-level-targets fetch-
// verify sequence that produces a trusted tuf.Repo, plus the Repository
// surface (targets, cached_targets_iter, read_target) client code
// actually calls.
//
// Grounded on johnsandiford-notary/tuf/testutils/repo.go's
// EmptyRepo/NewRepoMetadata construction flow, endophage/gotuf/tuf.go's
// TufRepo.Set{Root,Timestamp,Snapshot,Targets} shape, and
// kolide-updater/tuf/client.go's Client.Update fetch-then-verify
// orchestration.
package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tufctl/tuf/tuf"
	"github.com/tufctl/tuf/tuf/data"
	"github.com/tufctl/tuf/tuf/signed"
	"github.com/tufctl/tuf/tuf/store"
)

// ExpirationPolicy governs whether an expired role document aborts the
// load (Safe) or is merely logged (Unsafe, diagnostics only).
type ExpirationPolicy int

const (
	// Safe fails the load with tuf.ErrExpired on any expired role.
	Safe ExpirationPolicy = iota
	// Unsafe logs expiration but continues.
	Unsafe
)

// Limits caps the byte length the loader will accept per role class.
// Zero means unbounded for that class.
type Limits struct {
	Root      int64
	Timestamp int64
	Snapshot  int64
	Targets   int64
	Delegated int64
}

// DefaultLimits mirrors the teacher's per-role size ceilings (root/
// targets documents are capped generously; timestamp is small and fixed
// shape, so its cap is tight).
var DefaultLimits = Limits{
	Root:      10 << 20,
	Timestamp: 16 << 10,
	Snapshot:  10 << 20,
	Targets:   10 << 20,
	Delegated: 10 << 20,
}

// Loader performs the ordered fetch-verify sequence against a metadata
// store, producing a Repository.
type Loader struct {
	Metadata store.MetadataStore
	Targets  store.MetadataStore
	Policy   ExpirationPolicy
	Limits   Limits
	Now      func() time.Time
}

// NewLoader builds a Loader. targets may be the same store as metadata
// (e.g. a single HTTPStore rooted one level up) when the deployment
// serves both trees from one origin.
func NewLoader(metadata, targets store.MetadataStore, policy ExpirationPolicy, limits Limits) *Loader {
	return &Loader{Metadata: metadata, Targets: targets, Policy: policy, Limits: limits, Now: time.Now}
}

func (l *Loader) checkExpiry(role string, expires time.Time) error {
	if !tuf.IsExpired(expires, l.Now()) {
		return nil
	}
	if l.Policy == Unsafe {
		log.Warnf("client: %s expired at %s (Unsafe policy, continuing)", role, expires)
		return nil
	}
	return tuf.ErrExpired{Role: role, Expires: expires.Format(time.RFC3339)}
}

// parseEnvelope unmarshals raw into a data.Signed envelope, retaining its
// exact "signed" body bytes for verification.
func parseEnvelope(role string, raw []byte) (*data.Signed, error) {
	var env data.Signed
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, tuf.ErrParse{Role: role, Err: err}
	}
	return &env, nil
}

// Load runs the full §4.4 sequence starting from a caller-trusted
// bootstrap root (accepted without signature check, per spec: "caller
// attests"). It returns a Repository wrapping the verified tuf.Repo.
func (l *Loader) Load(bootstrapRoot []byte) (*Repository, error) {
	repo := tuf.NewRepo(nil)

	rootEnv, err := parseEnvelope(data.CanonicalRootRole, bootstrapRoot)
	if err != nil {
		return nil, err
	}
	var rootPayload data.RootSigned
	if err := json.Unmarshal(rootEnv.Signed, &rootPayload); err != nil {
		return nil, tuf.ErrParse{Role: data.CanonicalRootRole, Err: err}
	}
	trustedRoot := &rootPayload
	trustedEnv := rootEnv

	for {
		nextName := strconv.FormatInt(trustedRoot.Version+1, 10) + ".root.json"
		raw, err := l.Metadata.GetMeta(nextName, l.Limits.Root)
		if _, notFound := err.(store.ErrMetaNotFound); notFound {
			break
		}
		if err != nil {
			return nil, tuf.ErrTransport{URL: nextName, Err: err}
		}

		nextEnv, err := parseEnvelope(data.CanonicalRootRole, raw)
		if err != nil {
			return nil, err
		}
		var nextRoot data.RootSigned
		if err := json.Unmarshal(nextEnv.Signed, &nextRoot); err != nil {
			return nil, tuf.ErrParse{Role: data.CanonicalRootRole, Err: err}
		}

		if err := verifyRootTransition(trustedRoot, &nextRoot, nextEnv); err != nil {
			return nil, err
		}
		if nextRoot.Version != trustedRoot.Version+1 {
			return nil, tuf.ErrVersionRollback{Role: data.CanonicalRootRole, Observed: trustedRoot.Version, Got: nextRoot.Version}
		}

		trustedRoot = &nextRoot
		trustedEnv = nextEnv
	}
	if err := l.checkExpiry(data.CanonicalRootRole, trustedRoot.Expires); err != nil {
		return nil, err
	}
	repo.Root = &tuf.RootFile{Signed: trustedEnv, Root: trustedRoot, State: tuf.StateLoaded, LoadedVersion: trustedRoot.Version}

	tsRaw, err := l.Metadata.GetMeta("timestamp.json", l.Limits.Timestamp)
	if err != nil {
		return nil, tuf.ErrTransport{URL: "timestamp.json", Err: err}
	}
	tsEnv, err := parseEnvelope(data.CanonicalTimestampRole, tsRaw)
	if err != nil {
		return nil, err
	}
	tsRole := trustedRoot.Roles[data.CanonicalTimestampRole]
	if tsRole == nil {
		return nil, tuf.ErrUnknownRole{Role: data.CanonicalTimestampRole}
	}
	if _, err := signed.VerifyThreshold(data.CanonicalTimestampRole, tsEnv.Signed, tsEnv.Signatures, trustedRoot.Keys, tsRole.KeyIDs, tsRole.Threshold); err != nil {
		return nil, err
	}
	var timestamp data.TimestampSigned
	if err := json.Unmarshal(tsEnv.Signed, &timestamp); err != nil {
		return nil, tuf.ErrParse{Role: data.CanonicalTimestampRole, Err: err}
	}
	if err := l.checkExpiry(data.CanonicalTimestampRole, timestamp.Expires); err != nil {
		return nil, err
	}
	repo.Timestamp = &tuf.TimestampFile{Signed: tsEnv, Timestamp: &timestamp, State: tuf.StateLoaded, LoadedVersion: timestamp.Version}

	snapMeta, ok := timestamp.Meta["snapshot.json"]
	if !ok {
		return nil, tuf.ErrParse{Role: data.CanonicalTimestampRole, Err: fmt.Errorf("missing snapshot.json entry")}
	}
	snapName := "snapshot.json"
	if trustedRoot.ConsistentSnapshot {
		snapName = strconv.FormatInt(snapMeta.Version, 10) + ".snapshot.json"
	}
	snapRaw, err := l.Metadata.GetMeta(snapName, l.Limits.Snapshot)
	if err != nil {
		return nil, tuf.ErrTransport{URL: snapName, Err: err}
	}
	if err := checkMeta(data.CanonicalSnapshotRole, snapMeta, snapRaw); err != nil {
		return nil, err
	}
	snapEnv, err := parseEnvelope(data.CanonicalSnapshotRole, snapRaw)
	if err != nil {
		return nil, err
	}
	snapRole := trustedRoot.Roles[data.CanonicalSnapshotRole]
	if snapRole == nil {
		return nil, tuf.ErrUnknownRole{Role: data.CanonicalSnapshotRole}
	}
	if _, err := signed.VerifyThreshold(data.CanonicalSnapshotRole, snapEnv.Signed, snapEnv.Signatures, trustedRoot.Keys, snapRole.KeyIDs, snapRole.Threshold); err != nil {
		return nil, err
	}
	var snapshot data.SnapshotSigned
	if err := json.Unmarshal(snapEnv.Signed, &snapshot); err != nil {
		return nil, tuf.ErrParse{Role: data.CanonicalSnapshotRole, Err: err}
	}
	if snapshot.Version != snapMeta.Version {
		return nil, tuf.ErrVersionMismatch{Role: data.CanonicalSnapshotRole, Declared: snapMeta.Version, Observed: snapshot.Version}
	}
	if err := l.checkExpiry(data.CanonicalSnapshotRole, snapshot.Expires); err != nil {
		return nil, err
	}
	repo.Snapshot = &tuf.SnapshotFile{Signed: snapEnv, Snapshot: &snapshot, State: tuf.StateLoaded, LoadedVersion: snapshot.Version}

	targetsMeta, ok := snapshot.Meta["targets.json"]
	if !ok {
		return nil, tuf.ErrParse{Role: data.CanonicalSnapshotRole, Err: fmt.Errorf("missing targets.json entry")}
	}
	targetsName := "targets.json"
	if trustedRoot.ConsistentSnapshot {
		targetsName = strconv.FormatInt(targetsMeta.Version, 10) + ".targets.json"
	}
	targetsRaw, err := l.Metadata.GetMeta(targetsName, l.Limits.Targets)
	if err != nil {
		return nil, tuf.ErrTransport{URL: targetsName, Err: err}
	}
	if err := checkMeta(data.CanonicalTargetsRole, targetsMeta, targetsRaw); err != nil {
		return nil, err
	}
	targetsEnv, err := parseEnvelope(data.CanonicalTargetsRole, targetsRaw)
	if err != nil {
		return nil, err
	}
	targetsRole := trustedRoot.Roles[data.CanonicalTargetsRole]
	if targetsRole == nil {
		return nil, tuf.ErrUnknownRole{Role: data.CanonicalTargetsRole}
	}
	if _, err := signed.VerifyThreshold(data.CanonicalTargetsRole, targetsEnv.Signed, targetsEnv.Signatures, trustedRoot.Keys, targetsRole.KeyIDs, targetsRole.Threshold); err != nil {
		return nil, err
	}
	var targets data.TargetsSigned
	if err := json.Unmarshal(targetsEnv.Signed, &targets); err != nil {
		return nil, tuf.ErrParse{Role: data.CanonicalTargetsRole, Err: err}
	}
	if targets.Version != targetsMeta.Version {
		return nil, tuf.ErrVersionMismatch{Role: data.CanonicalTargetsRole, Declared: targetsMeta.Version, Observed: targets.Version}
	}
	if err := l.checkExpiry(data.CanonicalTargetsRole, targets.Expires); err != nil {
		return nil, err
	}
	repo.Targets[data.CanonicalTargetsRole] = &tuf.TargetsFile{
		Signed: targetsEnv, Targets: &targets, Name: data.CanonicalTargetsRole,
		State: tuf.StateLoaded, LoadedVersion: targets.Version,
	}

	return &Repository{repo: repo, loader: l}, nil
}

// verifyRootTransition checks N+1's signatures against both N's own
// root-role assignment and N+1's self-declared root-role assignment —
// the double-threshold check that makes root key rotation safe.
func verifyRootTransition(trusted, next *data.RootSigned, nextEnv *data.Signed) error {
	oldRole := trusted.Roles[data.CanonicalRootRole]
	if oldRole == nil {
		return tuf.ErrUnknownRole{Role: data.CanonicalRootRole}
	}
	if _, err := signed.VerifyThreshold(data.CanonicalRootRole, nextEnv.Signed, nextEnv.Signatures, trusted.Keys, oldRole.KeyIDs, oldRole.Threshold); err != nil {
		return errors.Wrap(err, "root rotation: failed verification against previous root")
	}
	newRole := next.Roles[data.CanonicalRootRole]
	if newRole == nil {
		return tuf.ErrUnknownRole{Role: data.CanonicalRootRole}
	}
	if _, err := signed.VerifyThreshold(data.CanonicalRootRole, nextEnv.Signed, nextEnv.Signatures, next.Keys, newRole.KeyIDs, newRole.Threshold); err != nil {
		return errors.Wrap(err, "root rotation: failed verification against its own key set")
	}
	return nil
}

// checkMeta enforces declared length/hashes from a snapshot/timestamp
// meta entry against the bytes actually fetched, when declared.
func checkMeta(role string, m data.FileMeta, raw []byte) error {
	if m.Length != 0 && int64(len(raw)) != m.Length {
		return tuf.ErrLengthExceeded{URL: role, MaxLength: m.Length}
	}
	if len(m.Hashes) == 0 {
		return nil
	}
	declared := m.Hashes
	actual := hashAll(raw)
	if !declared.Equal(actual) {
		for alg, digest := range declared {
			if got, ok := actual[alg]; ok && got.String() != digest.String() {
				return tuf.ErrHashMismatch{Role: role, Algorithm: alg, Expected: digest.String(), Got: got.String()}
			}
		}
	}
	return nil
}
