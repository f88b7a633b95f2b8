package task

import (
	"github.com/cuemby/fusiond/pkg/ferrors"
	"github.com/cuemby/fusiond/pkg/types"
	"github.com/cuemby/fusiond/pkg/volume"
)

// VolumeResolver is the subset of *volume.Manager requirements computation
// needs, so callers can substitute a fake in unit tests.
type VolumeResolver interface {
	DeduceURIFromPath(absPath, thisHost string) volume.URI
	VolumeHost(volname string) string
	Get(volname string) (types.Volume, bool)
}

// Compute derives TaskRequirements from def, applying any matching rule
// from rules for (assetType, taskName), exactly per spec §4.5 steps 1-5.
// thisHost is the local hostname, used to resolve input paths that live on
// a locally-mounted volume.
func Compute(def types.TaskDef, assetType, taskName string, rules *RuleSet, vols VolumeResolver, thisHost string, taskID uint32, version int, assetName string) (types.TaskRequirements, error) {
	req := types.TaskRequirements{
		RequiredVolumeHosts: make(map[string]bool),
	}

	for _, in := range def.Inputs {
		uri := vols.DeduceURIFromPath(in.Path, thisHost)
		if uri.IsZero() {
			return types.TaskRequirements{}, ferrors.Newf(ferrors.KindTaskConstruction, "task.Compute", "unable to determine volume for path %q", in.Path)
		}
		vol := uri.Volume
		host := vols.VolumeHost(vol)
		if host == "" {
			return types.TaskRequirements{}, ferrors.Newf(ferrors.KindTaskConstruction, "task.Compute", "unable to determine host for volume %q", vol)
		}
		req.Inputs = append(req.Inputs, types.RequirementsInput{
			Volume:   vol,
			Host:     host,
			Locality: types.LocalityDontCare,
		})
	}

	for _, o := range def.Outputs {
		vol := volume.AssetRootVolume
		host := vols.VolumeHost(vol)
		if host == "" {
			return types.TaskRequirements{}, ferrors.Newf(ferrors.KindTaskConstruction, "task.Compute", "unable to determine host for volume %q", vol)
		}
		dv := make([]types.Locality, len(def.Inputs))
		for i := range dv {
			dv[i] = types.LocalityPrefer
		}
		req.Outputs = append(req.Outputs, types.RequirementsOutput{
			Volume:           vol,
			Host:             host,
			Path:             o.Path,
			Size:             o.Size,
			Locality:         types.LocalityDontCare,
			DifferentVolumes: dv,
		})
	}

	req.CPU = types.CPUConstraint{Min: 1, Max: 1}

	if rule, ok := rules.Lookup(assetType, taskName); ok {
		if err := applyRule(&req, rule, taskID, version, assetName); err != nil {
			return types.TaskRequirements{}, err
		}
		for i := range req.Outputs {
			o := &req.Outputs[i]
			if o.Volume == types.AnyTmpVolume {
				continue
			}
			if o.Host = vols.VolumeHost(o.Volume); o.Host == "" {
				return types.TaskRequirements{}, ferrors.Newf(ferrors.KindTaskConstruction, "task.Compute", "unable to determine host for volume %q", o.Volume)
			}
		}
	}

	for _, in := range req.Inputs {
		if in.Host != "" {
			req.RequiredVolumeHosts[in.Host] = true
		}
	}
	for _, o := range req.Outputs {
		if o.Volume != types.AnyTmpVolume {
			req.RequiredVolumeHosts[o.Host] = true
		}
	}

	if err := ensureNoConflicts(req); err != nil {
		return types.TaskRequirements{}, err
	}
	req.RequiredBuildHost, req.PreferredBuildHost = RequiredAndPreferredHost(req)

	return req, nil
}

func applyRule(req *types.TaskRequirements, rule Rule, taskID uint32, version int, assetName string) error {
	for _, ic := range rule.InputConstraints {
		if ic.Num == -1 {
			for i := range req.Inputs {
				req.Inputs[i].Locality = ic.LocalToJob
			}
		} else if ic.Num >= 0 && ic.Num < len(req.Inputs) {
			req.Inputs[ic.Num].Locality = ic.LocalToJob
		} else {
			return ferrors.Newf(ferrors.KindTaskConstruction, "task.applyRule", "invalid input constraint number %d", ic.Num)
		}
	}

	for _, oc := range rule.OutputConstraints {
		if oc.Num < 0 || oc.Num >= len(req.Outputs) {
			return ferrors.Newf(ferrors.KindTaskConstruction, "task.applyRule", "invalid output constraint number %d", oc.Num)
		}
		out := &req.Outputs[oc.Num]
		out.Locality = oc.LocalToJob
		if oc.RequiredVolume != "" {
			out.Volume = oc.RequiredVolume
			if oc.RequiredVolume == types.AnyTmpVolume {
				out.Host = ""
			}
			// Host for a concrete required volume is left as-is here;
			// Compute resolves it from the volume once the rule has
			// been applied.
		}

		pt := NewPatternTool(taskID, out.Path, version, assetName)
		if oc.PathPattern != "" {
			out.Path = pt.VarSubst(oc.PathPattern)
		}

		for _, ip := range oc.DifferentVolumes {
			if ip.Num == -1 {
				for i := range out.DifferentVolumes {
					out.DifferentVolumes[i] = ip.Pref
				}
			} else if ip.Num >= 0 && ip.Num < len(out.DifferentVolumes) {
				out.DifferentVolumes[ip.Num] = ip.Pref
			} else {
				return ferrors.Newf(ferrors.KindTaskConstruction, "task.applyRule", "invalid differentVolumes input number %d", ip.Num)
			}
		}
	}

	if rule.CPUConstraint.MinNumCPU > 0 || rule.CPUConstraint.MaxNumCPU > 0 {
		req.CPU = types.CPUConstraint{Min: rule.CPUConstraint.MinNumCPU, Max: rule.CPUConstraint.MaxNumCPU}
	}
	return nil
}

// ensureNoConflicts finds the conflicts that can never be resolved at
// activation time (spec §4.5 step 5): competing Must-local hosts, and an
// output forced onto a different volume than an input that shares it.
func ensureNoConflicts(req types.TaskRequirements) error {
	var requiredBuildHost string

	for i, in := range req.Inputs {
		if in.Host == "" {
			continue
		}
		if in.Locality == types.LocalityMust {
			if requiredBuildHost != "" && requiredBuildHost != in.Host {
				return ferrors.Newf(ferrors.KindTaskConstruction, "task.ensureNoConflicts",
					"input #%d requires host %q, build already requires host %q", i, in.Host, requiredBuildHost)
			}
			requiredBuildHost = in.Host
		}
	}
	for i, out := range req.Outputs {
		if out.Volume == types.AnyTmpVolume {
			continue
		}
		if out.Locality == types.LocalityMust {
			if requiredBuildHost != "" && requiredBuildHost != out.Host {
				return ferrors.Newf(ferrors.KindTaskConstruction, "task.ensureNoConflicts",
					"output #%d requires host %q, build already requires host %q", i, out.Host, requiredBuildHost)
			}
			requiredBuildHost = out.Host
		}
	}

	for o, out := range req.Outputs {
		for i, in := range req.Inputs {
			if in.Volume == "" || i >= len(out.DifferentVolumes) {
				continue
			}
			if out.DifferentVolumes[i] == types.LocalityMust && out.Volume == in.Volume {
				return ferrors.Newf(ferrors.KindTaskConstruction, "task.ensureNoConflicts",
					"output #%d and input #%d are both on volume %q", o, i, out.Volume)
			}
		}
	}
	return nil
}

// RequiredAndPreferredHost computes requiredBuildHost (single Must-local
// host, if any) and preferredBuildHost (first Prefer-local host seen) from
// resolved requirements, matching the original EnsureNoConflicts side
// effects that resourcemgr also depends on.
func RequiredAndPreferredHost(req types.TaskRequirements) (required, preferred string) {
	for _, in := range req.Inputs {
		if in.Host == "" {
			continue
		}
		if in.Locality == types.LocalityMust && required == "" {
			required = in.Host
		} else if in.Locality == types.LocalityPrefer && preferred == "" {
			preferred = in.Host
		}
	}
	for _, out := range req.Outputs {
		if out.Volume == types.AnyTmpVolume {
			continue
		}
		if out.Locality == types.LocalityMust && required == "" {
			required = out.Host
		} else if out.Locality == types.LocalityPrefer && preferred == "" {
			preferred = out.Host
		}
	}
	return required, preferred
}
