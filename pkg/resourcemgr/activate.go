package resourcemgr

import (
	"fmt"

	"github.com/cuemby/fusiond/pkg/metrics"
	"github.com/cuemby/fusiond/pkg/reservation"
	"github.com/cuemby/fusiond/pkg/task"
	"github.com/cuemby/fusiond/pkg/types"
)

// tryActivateLocked is one pass of the activation algorithm (spec §4.3).
// Must be called with m.mu held. Returns true if it started a task, in
// which case the caller should call again immediately: the task it
// started is no longer in the waiting queue, so the walk must restart.
func (m *Manager) tryActivateLocked() bool {
	if m.numActivateBlockers != 0 || m.waiting.len() == 0 || len(m.providers) == 0 {
		return false
	}

	avail := make(map[string]*Provider)
	for host, p := range m.providers {
		if p.AvailCPUs() > 0 {
			avail[host] = p
		}
	}
	if len(avail) == 0 {
		return false
	}

	for _, t := range m.waiting.ordered() {
		if !m.checkVolumeHostsLocked(t) {
			continue
		}
		fixed, ok := m.makeFixedVolumeReservationsLocked(t)
		if !ok {
			continue
		}

		provider, extra := m.findSatisfyingProviderLocked(t, avail)
		if provider == nil {
			for _, r := range fixed {
				r.Release()
			}
			t.ActivationError = fmt.Sprintf("unable to find a suitable resource provider: no CPU(s) is available to start the task %s", t.Verref)
			continue
		}

		t.ActivationError = ""
		all := append(fixed, extra...)

		bound, ok := m.bindOutfiles(t, all)
		if !ok {
			for _, r := range all {
				r.Release()
			}
			t.ActivationError = "unable to bind outfiles"
			continue
		}

		m.startTaskLocked(t, provider, all, bound)
		return true
	}

	return false
}

func (m *Manager) checkVolumeHostsLocked(t *types.Task) bool {
	for host := range t.Requirements.RequiredVolumeHosts {
		if _, ok := m.providers[host]; !ok {
			t.ActivationError = fmt.Sprintf("volume host %q unavailable", host)
			return false
		}
	}
	return true
}

func (m *Manager) makeFixedVolumeReservationsLocked(t *types.Task) ([]*reservation.Reservation, bool) {
	var out []*reservation.Reservation
	for _, reqOut := range t.Requirements.Outputs {
		if reqOut.Volume == types.AnyTmpVolume {
			continue
		}
		r := m.makeVolumeReservationLocked(reqOut.Volume, reqOut.Path, reqOut.Size)
		if r == nil {
			for _, made := range out {
				made.Release()
			}
			t.ActivationError = fmt.Sprintf(
				"not enough disk space to make reservation for output files. task %s: unable to make reservation %s/%s:%d",
				t.Verref, reqOut.Volume, reqOut.Path, reqOut.Size)
			return nil, false
		}
		out = append(out, r)
	}
	return out, true
}

// findSatisfyingProviderLocked picks the provider ordering per spec §4.3
// (required build host only; else preferred host first then the rest; else
// every available provider) and returns the first that can satisfy the
// task's CPU and *anytmp* volume needs.
func (m *Manager) findSatisfyingProviderLocked(t *types.Task, avail map[string]*Provider) (*Provider, []*reservation.Reservation) {
	var order []*Provider
	req := t.Requirements
	switch {
	case req.RequiredBuildHost != "":
		if p, ok := avail[req.RequiredBuildHost]; ok {
			order = append(order, p)
		}
	case req.PreferredBuildHost != "":
		if p, ok := avail[req.PreferredBuildHost]; ok {
			order = append(order, p)
		}
		for host, p := range avail {
			if host != req.PreferredBuildHost {
				order = append(order, p)
			}
		}
	default:
		for _, p := range avail {
			order = append(order, p)
		}
	}

	for _, p := range order {
		if res, ok := m.providerCanSatisfyLocked(t, p); ok {
			return p, res
		}
	}
	return nil, nil
}

// providerCanSatisfyLocked reserves a CPU on p and, for every *anytmp*
// output, finds and reserves a suitable scratch volume local (or remote)
// to p, pruned/reordered by the task's differentVolumes preferences (spec
// §4.3).
func (m *Manager) providerCanSatisfyLocked(t *types.Task, p *Provider) ([]*reservation.Reservation, bool) {
	cpuRes := m.makeCPUReservationLocked(p, t.Requirements.CPU)
	if cpuRes == nil {
		return nil, false
	}
	reservations := []*reservation.Reservation{cpuRes}

	for _, reqOut := range t.Requirements.Outputs {
		if reqOut.Volume != types.AnyTmpVolume {
			continue
		}
		candidates := m.vols.GetLocalTmpVolumes(p.Host)
		if reqOut.Locality != task.Must {
			candidates = append(candidates, m.vols.GetRemoteTmpVolumes(p.Host)...)
		}
		candidates = pruneByDifferentVolumes(candidates, t.Requirements.Inputs, reqOut.DifferentVolumes)

		satisfied := false
		for _, vn := range candidates {
			r := m.makeVolumeReservationLocked(vn, reqOut.Path, reqOut.Size)
			if r != nil {
				reservations = append(reservations, r)
				satisfied = true
				break
			}
		}
		if !satisfied {
			for _, r := range reservations {
				r.Release()
			}
			return nil, false
		}
	}

	return reservations, true
}

// pruneByDifferentVolumes removes (Must) or demotes to the back (Prefer)
// any candidate volume that coincides with an input's volume, per the
// corresponding differentVolumes entry.
func pruneByDifferentVolumes(candidates []string, inputs []types.RequirementsInput, prefs []types.Locality) []string {
	out := append([]string(nil), candidates...)
	for i, in := range inputs {
		if in.Volume == "" || i >= len(prefs) {
			continue
		}
		switch prefs[i] {
		case task.Must:
			out = removeString(out, in.Volume)
		case task.Prefer:
			if removed, ok := extractString(out, in.Volume); ok {
				out = append(removed, in.Volume)
			}
		}
	}
	return out
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func extractString(list []string, s string) ([]string, bool) {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

// bindOutfiles tries every reservation's BindFilename for each declared
// output path, in reservation order, taking the first success (spec §4.5,
// grounded on khTask::bindOutfiles).
func (m *Manager) bindOutfiles(t *types.Task, reservations []*reservation.Reservation) ([]string, bool) {
	bound := make([]string, len(t.TaskDef.Outputs))
	for i, o := range t.TaskDef.Outputs {
		ok := false
		for _, r := range reservations {
			if path, didBind := r.BindFilename(o.Path); didBind {
				bound[i] = path
				ok = true
				break
			}
		}
		if !ok {
			return nil, false
		}
	}
	return bound, true
}

func grantedCPUs(reservations []*reservation.Reservation) int {
	for _, r := range reservations {
		if r.Kind() == reservation.KindCPU {
			return r.CPUs()
		}
	}
	return 0
}

func inputPaths(t *types.Task) []string {
	out := make([]string, len(t.TaskDef.Inputs))
	for i, in := range t.TaskDef.Inputs {
		out[i] = in.Path
	}
	return out
}

func (m *Manager) startTaskLocked(t *types.Task, p *Provider, reservations []*reservation.Reservation, bound []string) {
	m.waiting.remove(t.Verref)
	t.JobHost = p.Host
	t.BoundOutfiles = bound

	p.active[t.TaskID] = &activeTask{task: t, reservations: reservations}
	metrics.TasksStartedTotal.Inc()

	commands := task.BuildCommands(t.TaskDef.Commands, bound, inputPaths(t), grantedCPUs(reservations))
	if p.sender != nil {
		_ = p.sender.StartJob(&types.StartJob{
			TaskID:   t.TaskID,
			LogFile:  fmt.Sprintf("%d.log", t.TaskID),
			Commands: commands,
		})
	}
}
