package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeStrSlicesExclusive(t *testing.T) {
	res := mergeStrSlices([]string{"a"}, []string{"b"})
	assert.Equal(t, []string{"a", "b"}, res)
}

func TestMergeStrSlicesOverlap(t *testing.T) {
	res := mergeStrSlices([]string{"a"}, []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, res)
}

func TestSubtractStrSlicesOverlap(t *testing.T) {
	res := subtractStrSlices([]string{"a", "b"}, []string{"a"})
	assert.Equal(t, []string{"b"}, res)
}

func TestNewDelegationRoleRejectsMixedPathSet(t *testing.T) {
	_, err := NewDelegationRole("targets/a", 1, []string{"abc"}, []string{"a/*"}, []string{"ff"})
	assert.Error(t, err)
	assert.IsType(t, ErrDelegationStructureError{}, err)
}

func TestDelegationRoleAddRemoveKeys(t *testing.T) {
	role, err := NewDelegationRole("targets/a", 1, []string{"abc"}, []string{"a/*"}, nil)
	assert.NoError(t, err)
	role.AddKeys([]string{"abc"})
	assert.Equal(t, []string{"abc"}, role.KeyIDs)
	role.AddKeys([]string{"def"})
	assert.Equal(t, []string{"abc", "def"}, role.KeyIDs)
	role.RemoveKeys([]string{"abc"})
	assert.Equal(t, []string{"def"}, role.KeyIDs)
}

func TestDelegationRoleCheckPaths(t *testing.T) {
	role, err := NewDelegationRole("targets/a", 1, []string{"abc"}, []string{"prod/*"}, nil)
	assert.NoError(t, err)
	assert.True(t, role.CheckPaths("prod/app.bin"))
	assert.False(t, role.CheckPaths("dev/app.bin"))
}

func TestDelegationRoleCheckPrefixes(t *testing.T) {
	role, err := NewDelegationRole("targets/a", 1, []string{"abc"}, nil, []string{"ab", "cd"})
	assert.NoError(t, err)
	assert.True(t, role.CheckPrefixes("abcdef"))
	assert.True(t, role.CheckPrefixes("cdefff"))
	assert.False(t, role.CheckPrefixes("112233"))
}

func TestAddPathsRejectedWhenHashPrefixesSet(t *testing.T) {
	role, err := NewDelegationRole("targets/a", 1, []string{"abc"}, nil, []string{"ab"})
	assert.NoError(t, err)
	err = role.AddPaths([]string{"prod/*"})
	assert.Error(t, err)
}
