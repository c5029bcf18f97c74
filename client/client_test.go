package client

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tufctl/tuf/tuf"
	"github.com/tufctl/tuf/tuf/data"
	"github.com/tufctl/tuf/tuf/signed"
	"github.com/tufctl/tuf/tuf/store"
)

func expiresIn(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, days).Truncate(time.Second)
}

// buildSignedRepo builds and publishes a full four-role repository (one
// target, one delegation with one target) onto a temp directory via the
// real editor/writer path, returning the root.json bytes a client would
// bootstrap from and the on-disk directory to serve it from.
func buildSignedRepo(t *testing.T, consistent bool) (rootJSON []byte, dir string) {
	t.Helper()
	cs := signed.NewEd25519()
	keys := make(map[string]*data.Key, len(data.BaseRoles))
	for _, role := range data.BaseRoles {
		k, err := cs.Create(role, data.KeyTypeEd25519)
		require.NoError(t, err)
		keys[role] = k
	}
	delegateeKey, err := cs.Create("targets/releases", data.KeyTypeEd25519)
	require.NoError(t, err)

	repo := tuf.NewRepo(cs)
	repo.Root = &tuf.RootFile{Root: tuf.NewRootSigned(expiresIn(365), consistent), State: tuf.StateDirty}
	repo.Timestamp = &tuf.TimestampFile{Timestamp: tuf.NewTimestampSigned(expiresIn(1)), State: tuf.StateDirty}
	repo.Snapshot = &tuf.SnapshotFile{Snapshot: tuf.NewSnapshotSigned(expiresIn(7)), State: tuf.StateDirty}
	repo.Targets = map[string]*tuf.TargetsFile{
		data.CanonicalTargetsRole: {Targets: tuf.NewTargetsSigned(expiresIn(90)), Name: data.CanonicalTargetsRole, State: tuf.StateDirty},
	}

	editor := tuf.NewRepositoryEditor(repo)
	for _, role := range data.BaseRoles {
		editor.AddKey(role, []*data.Key{keys[role]})
	}
	top := editor.ChangeDelegatedTargets(data.CanonicalTargetsRole)
	child := &tuf.TargetsFile{Targets: tuf.NewTargetsSigned(expiresIn(30)), State: tuf.StateDirty}
	top.AddRole("targets/releases", []*data.Key{delegateeKey}, 1, []string{"releases/*"}, nil, child)
	require.NoError(t, top.Err())
	require.NoError(t, editor.Err())

	// Both drafts are already StateDirty (the top-level one from AddRole's
	// own markDirty call, the delegated child from how it was constructed
	// above), so adding targets directly to their maps needs no further
	// dirtying before Sign.
	topDraft := repo.Targets[data.CanonicalTargetsRole]
	topDraft.Targets.Targets["README"] = data.TargetFileMeta{Length: int64(len(readmeBody)), Hashes: hashAll(readmeBody)}

	releases := repo.Targets["targets/releases"]
	releases.Targets.Targets["releases/v1"] = data.TargetFileMeta{Length: int64(len(releaseBody)), Hashes: hashAll(releaseBody)}

	require.NoError(t, editor.Sign(map[string][]*data.Key{
		data.CanonicalRootRole:      {keys[data.CanonicalRootRole]},
		data.CanonicalSnapshotRole:  {keys[data.CanonicalSnapshotRole]},
		data.CanonicalTimestampRole: {keys[data.CanonicalTimestampRole]},
		data.CanonicalTargetsRole:   {keys[data.CanonicalTargetsRole]},
		"targets/releases":         {delegateeKey},
	}))

	dir = t.TempDir()
	w := tuf.NewWriter(dir)
	require.NoError(t, w.WriteRepo(repo))

	require.NoError(t, writeTargetFile(t, w, dir, "README", readmeBody, topDraft.Targets.Targets["README"], consistent))
	require.NoError(t, writeTargetFile(t, w, dir, "releases/v1", releaseBody, releases.Targets.Targets["releases/v1"], consistent))

	rootJSON, err = os.ReadFile(w.MetadataDir + "/root.json")
	require.NoError(t, err)
	return rootJSON, dir
}

var readmeBody = []byte("hello from the top-level targets role")
var releaseBody = []byte("a delegated release artifact")

func writeTargetFile(t *testing.T, w *tuf.Writer, dir, name string, body []byte, meta data.TargetFileMeta, consistent bool) error {
	t.Helper()
	src := dir + "/src-" + strings.ReplaceAll(name, "/", "_")
	require.NoError(t, os.WriteFile(src, body, 0o644))
	return w.WriteTarget(src, name, meta, consistent)
}

func newLoaderAgainst(dir string) *Loader {
	metaStore := store.NewFileStore(dir + "/metadata")
	targetsStore := store.NewFileStore(dir + "/targets")
	return NewLoader(metaStore, targetsStore, Safe, DefaultLimits)
}

func TestLoadVerifiesFullChainAndReadsTopLevelTarget(t *testing.T) {
	rootJSON, dir := buildSignedRepo(t, false)
	loader := newLoaderAgainst(dir)

	repository, err := loader.Load(rootJSON)
	require.NoError(t, err)
	assert.Equal(t, int64(1), repository.Repo().Root.Root.Version)

	rc, err := repository.ReadTarget("README")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, readmeBody, body)
}

func TestLoadResolvesDelegatedTarget(t *testing.T) {
	rootJSON, dir := buildSignedRepo(t, false)
	loader := newLoaderAgainst(dir)
	repository, err := loader.Load(rootJSON)
	require.NoError(t, err)

	rc, err := repository.ReadTarget("releases/v1")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, releaseBody, body)
}

func TestReadTargetUnknownPath(t *testing.T) {
	rootJSON, dir := buildSignedRepo(t, false)
	loader := newLoaderAgainst(dir)
	repository, err := loader.Load(rootJSON)
	require.NoError(t, err)

	_, err = repository.ReadTarget("does/not/exist")
	assert.IsType(t, tuf.ErrTargetNotFound{}, err)
}

func TestDelegationHintCacheRemembersServingRole(t *testing.T) {
	rootJSON, dir := buildSignedRepo(t, false)
	loader := newLoaderAgainst(dir)
	repository, err := loader.Load(rootJSON)
	require.NoError(t, err)

	hints := &recordingHintCache{}
	repository.SetDelegationHintCache(hints)

	rc, err := repository.ReadTarget("releases/v1")
	require.NoError(t, err)
	rc.Close()

	role, ok := hints.Lookup("releases/v1")
	require.True(t, ok)
	assert.Equal(t, "targets/releases", role)
}

type recordingHintCache struct {
	hints map[string]string
}

func (c *recordingHintCache) Lookup(path string) (string, bool) {
	if c.hints == nil {
		return "", false
	}
	role, ok := c.hints[path]
	return role, ok
}

func (c *recordingHintCache) Remember(path, role string) {
	if c.hints == nil {
		c.hints = map[string]string{}
	}
	c.hints[path] = role
}

func TestConsistentSnapshotRoundTrip(t *testing.T) {
	rootJSON, dir := buildSignedRepo(t, true)
	loader := newLoaderAgainst(dir)

	repository, err := loader.Load(rootJSON)
	require.NoError(t, err)
	rc, err := repository.ReadTarget("README")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, readmeBody, body)
}
