package client

import (
	"io"
	"os"
	"regexp"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tufctl/tuf/tuf"
	"github.com/tufctl/tuf/tuf/data"
	"github.com/tufctl/tuf/tuf/signed"
)

var nonTargetNameChar = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// sanitizeTargetName turns gofuzz's arbitrary Unicode RandString output
// into something safe to use both as a target path and as a filesystem
// name component, matching the constraint AddTarget's teacher-side
// equivalent never had to worry about (it never wrote its fixtures to
// disk).
func sanitizeTargetName(raw string) string {
	cleaned := nonTargetNameChar.ReplaceAllString(raw, "")
	if cleaned == "" {
		cleaned = "target"
	}
	if len(cleaned) > 40 {
		cleaned = cleaned[:40]
	}
	return cleaned
}

// TestFuzzedTargetsRoundTripThroughRepository builds a repo whose target
// set is random in both name and body (name via gofuzz's Continue,
// matching how the teacher's own test fixtures picked target names;
// content via gofuzz's reflective Fuzz), signs and publishes it, then
// verifies every target reads back byte-for-byte through the full
// load-and-verify path. Content sizes are drawn at random from 0 to 4096
// bytes for six targets; no particular size, empty included, is forced.
func TestFuzzedTargetsRoundTripThroughRepository(t *testing.T) {
	c := fuzz.Continue{}
	f := fuzz.New().NilChance(0).NumElements(0, 4096)

	cs := signed.NewEd25519()
	keys := make(map[string]*data.Key, len(data.BaseRoles))
	for _, role := range data.BaseRoles {
		k, err := cs.Create(role, data.KeyTypeEd25519)
		require.NoError(t, err)
		keys[role] = k
	}

	repo := tuf.NewRepo(cs)
	repo.Root = &tuf.RootFile{Root: tuf.NewRootSigned(expiresIn(365), false), State: tuf.StateDirty}
	repo.Timestamp = &tuf.TimestampFile{Timestamp: tuf.NewTimestampSigned(expiresIn(1)), State: tuf.StateDirty}
	repo.Snapshot = &tuf.SnapshotFile{Snapshot: tuf.NewSnapshotSigned(expiresIn(7)), State: tuf.StateDirty}
	draft := &tuf.TargetsFile{Targets: tuf.NewTargetsSigned(expiresIn(90)), Name: data.CanonicalTargetsRole, State: tuf.StateDirty}
	repo.Targets = map[string]*tuf.TargetsFile{data.CanonicalTargetsRole: draft}

	editor := tuf.NewRepositoryEditor(repo)
	for _, role := range data.BaseRoles {
		editor.AddKey(role, []*data.Key{keys[role]})
	}
	require.NoError(t, editor.Err())

	bodies := make(map[string][]byte)
	for len(bodies) < 6 {
		name := sanitizeTargetName(c.RandString())
		var content []byte
		f.Fuzz(&content)
		bodies[name] = content
		draft.Targets.Targets[name] = data.TargetFileMeta{
			Length: int64(len(content)),
			Hashes: hashAll(content),
		}
	}

	require.NoError(t, editor.Sign(map[string][]*data.Key{
		data.CanonicalRootRole:      {keys[data.CanonicalRootRole]},
		data.CanonicalSnapshotRole:  {keys[data.CanonicalSnapshotRole]},
		data.CanonicalTimestampRole: {keys[data.CanonicalTimestampRole]},
		data.CanonicalTargetsRole:   {keys[data.CanonicalTargetsRole]},
	}))

	dir := t.TempDir()
	w := tuf.NewWriter(dir)
	require.NoError(t, w.WriteRepo(repo))
	for name, body := range bodies {
		require.NoError(t, writeTargetFile(t, w, dir, name, body, draft.Targets.Targets[name], false))
	}

	rootJSON, err := os.ReadFile(w.MetadataDir + "/root.json")
	require.NoError(t, err)

	loader := newLoaderAgainst(dir)
	repository, err := loader.Load(rootJSON)
	require.NoError(t, err)

	for name, want := range bodies {
		rc, err := repository.ReadTarget(name)
		require.NoError(t, err, "reading fuzzed target %q", name)
		got, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, want, got, "fuzzed target %q round-tripped with different content", name)
	}
}
