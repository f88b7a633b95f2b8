package task

import (
	"testing"

	"github.com/cuemby/fusiond/pkg/types"
	"github.com/cuemby/fusiond/pkg/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVolumes struct {
	hosts map[string]string // volume -> host
	uris  map[string]volume.URI
}

func (f *fakeVolumes) DeduceURIFromPath(absPath, thisHost string) volume.URI {
	return f.uris[absPath]
}

func (f *fakeVolumes) VolumeHost(volname string) string {
	return f.hosts[volname]
}

func (f *fakeVolumes) Get(volname string) (types.Volume, bool) {
	h, ok := f.hosts[volname]
	if !ok {
		return types.Volume{}, false
	}
	return types.Volume{Name: volname, Host: h}, true
}

func newFakeVolumes() *fakeVolumes {
	return &fakeVolumes{
		hosts: map[string]string{
			"vol_a":                  "build1",
			"vol_b":                  "build2",
			volume.AssetRootVolume:   "build1",
		},
		uris: map[string]volume.URI{
			"/gevol/vol_a/in0.tif": {Volume: "vol_a", Path: "in0.tif"},
			"/gevol/vol_b/in1.tif": {Volume: "vol_b", Path: "in1.tif"},
		},
	}
}

func TestComputeBasic(t *testing.T) {
	def := types.TaskDef{
		Inputs:  []types.TaskDefInput{{Path: "/gevol/vol_a/in0.tif"}},
		Outputs: []types.TaskDefOutput{{Path: "out.tif", Size: 1024}},
	}
	rules := NewRuleSet()
	vols := newFakeVolumes()

	req, err := Compute(def, "Imagery", "Mosaic", rules, vols, "build1", 1, 1, "Imagery/foo?version=1")
	require.NoError(t, err)

	require.Len(t, req.Inputs, 1)
	assert.Equal(t, "vol_a", req.Inputs[0].Volume)
	assert.Equal(t, "build1", req.Inputs[0].Host)

	require.Len(t, req.Outputs, 1)
	assert.Equal(t, volume.AssetRootVolume, req.Outputs[0].Volume)
	assert.Equal(t, "build1", req.Outputs[0].Host)
	assert.Equal(t, int64(1024), req.Outputs[0].Size)

	assert.True(t, req.RequiredVolumeHosts["build1"])
	assert.Equal(t, types.CPUConstraint{Min: 1, Max: 1}, req.CPU)
}

func TestComputeUnresolvableInputErrors(t *testing.T) {
	def := types.TaskDef{
		Inputs: []types.TaskDefInput{{Path: "/nowhere/x.tif"}},
	}
	rules := NewRuleSet()
	vols := newFakeVolumes()

	_, err := Compute(def, "Imagery", "Mosaic", rules, vols, "build1", 1, 1, "x?version=1")
	require.Error(t, err)
}

func TestComputeAppliesRuleCPUAndPathPattern(t *testing.T) {
	def := types.TaskDef{
		Outputs: []types.TaskDefOutput{{Path: "default.tif", Size: 1}},
	}
	rules := NewRuleSet()
	rules.rules["Mosaic"] = Rule{
		TaskName: "Mosaic",
		OutputConstraints: []OutputConstraint{
			{Num: 0, PathPattern: "$defaultpath:basename-$vernum"},
		},
		CPUConstraint: CPUConstraint{MinNumCPU: 2, MaxNumCPU: 4},
	}
	vols := newFakeVolumes()

	req, err := Compute(def, "Imagery", "Mosaic", rules, vols, "build1", 9, 2, "x?version=2")
	require.NoError(t, err)

	assert.Equal(t, "default.tif-002", req.Outputs[0].Path)
	assert.Equal(t, types.CPUConstraint{Min: 2, Max: 4}, req.CPU)
}

func TestComputeMustLocalConflictErrors(t *testing.T) {
	def := types.TaskDef{
		Inputs: []types.TaskDefInput{
			{Path: "/gevol/vol_a/in0.tif"},
			{Path: "/gevol/vol_b/in1.tif"},
		},
	}
	rules := NewRuleSet()
	rules.rules["Mosaic"] = Rule{
		TaskName: "Mosaic",
		InputConstraints: []InputConstraint{
			{Num: 0, LocalToJob: types.LocalityMust},
			{Num: 1, LocalToJob: types.LocalityMust},
		},
	}
	vols := newFakeVolumes()

	_, err := Compute(def, "Imagery", "Mosaic", rules, vols, "build1", 1, 1, "x?version=1")
	require.Error(t, err)
}

func TestRuleSetLookupFallsBackToPlainTaskName(t *testing.T) {
	rs := NewRuleSet()
	rs.rules["Mosaic"] = Rule{TaskName: "Mosaic"}

	_, ok := rs.Lookup("Imagery", "Mosaic")
	assert.True(t, ok)

	_, ok = rs.Lookup("Vector", "Nope")
	assert.False(t, ok)
}
