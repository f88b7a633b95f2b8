package catalog

import (
	"testing"

	"github.com/cuemby/fusiond/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutAndGetAsset(t *testing.T) {
	c := openTestCatalog(t)
	a := &types.Asset{Name: "Imagery/foo", Type: types.AssetTypeImagery, Versions: []int{1}}

	require.NoError(t, c.PutAsset(a))

	got, ok, err := c.GetAsset("Imagery/foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.Type, got.Type)
	assert.Equal(t, []int{1}, got.Versions)
}

func TestGetAssetMissing(t *testing.T) {
	c := openTestCatalog(t)
	_, ok, err := c.GetAsset("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAsset(t *testing.T) {
	c := openTestCatalog(t)
	require.NoError(t, c.PutAsset(&types.Asset{Name: "x"}))
	require.NoError(t, c.DeleteAsset("x"))

	_, ok, err := c.GetAsset("x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListAssets(t *testing.T) {
	c := openTestCatalog(t)
	require.NoError(t, c.PutAsset(&types.Asset{Name: "a"}))
	require.NoError(t, c.PutAsset(&types.Asset{Name: "b"}))

	all, err := c.ListAssets()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPutAndListVersionsForAsset(t *testing.T) {
	c := openTestCatalog(t)
	v1 := &types.AssetVersion{Ref: types.Ref{AssetName: "Imagery/foo", Version: 1}, State: types.VersionStateSucceeded}
	v2 := &types.AssetVersion{Ref: types.Ref{AssetName: "Imagery/foo", Version: 2}, State: types.VersionStateNew}
	other := &types.AssetVersion{Ref: types.Ref{AssetName: "Imagery/bar", Version: 1}, State: types.VersionStateNew}

	require.NoError(t, c.PutVersion(v1))
	require.NoError(t, c.PutVersion(v2))
	require.NoError(t, c.PutVersion(other))

	versions, err := c.ListVersionsForAsset("Imagery/foo")
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestTaskRuleHashRoundTrip(t *testing.T) {
	c := openTestCatalog(t)
	_, ok, err := c.TaskRuleHash()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutTaskRuleHash("deadbeef"))
	hash, ok, err := c.TaskRuleHash()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "deadbeef", hash)
}

func TestRebuildReplacesContents(t *testing.T) {
	c := openTestCatalog(t)
	require.NoError(t, c.PutAsset(&types.Asset{Name: "stale"}))

	assets := []*types.Asset{{Name: "fresh"}}
	versions := []*types.AssetVersion{{Ref: types.Ref{AssetName: "fresh", Version: 1}}}
	require.NoError(t, c.Rebuild(assets, versions))

	_, ok, err := c.GetAsset("stale")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.GetAsset("fresh")
	require.NoError(t, err)
	assert.True(t, ok)

	vs, err := c.ListVersionsForAsset("fresh")
	require.NoError(t, err)
	assert.Len(t, vs, 1)
}
