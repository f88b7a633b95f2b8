package assetmgr

import (
	"github.com/cuemby/fusiond/pkg/resourcemgr"
	"github.com/cuemby/fusiond/pkg/types"
)

var _ resourcemgr.Notifier = (*Manager)(nil)

// NotifyTaskLost implements resourcemgr.Notifier: the provider running
// taskID vanished. The resource manager has already put the task back in
// its waiting queue before notifying; this records the version as Waiting
// (spec §4.3, "Blockers").
func (m *Manager) NotifyTaskLost(verref string, taskID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.versions[verref]
	if !ok || v.TaskID == nil || *v.TaskID != taskID {
		return
	}
	if v.State.Terminal() {
		return
	}

	g := beginTransaction(m)
	g.setState(verref, types.VersionStateWaiting)
	g.markVersionDirty(verref)
	if err := g.commit(); err != nil {
		g.abort()
	}
}

// NotifyTaskProgress implements resourcemgr.Notifier: record the latest
// reported fraction complete for verref's in-flight task.
func (m *Manager) NotifyTaskProgress(verref string, taskID uint32, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.versions[verref]
	if !ok || v.TaskID == nil || *v.TaskID != taskID {
		return
	}

	g := beginTransaction(m)
	g.setProgress(verref, progress)
	if err := g.commit(); err != nil {
		g.abort()
	}
}

// NotifyTaskDone implements resourcemgr.Notifier: taskID finished on its
// provider. On success the version moves to Succeeded with progress 1; on
// failure it moves to Failed (spec §4.3, "numActivateBlockers"). Other
// versions that depend on it are not examined or changed here.
func (m *Manager) NotifyTaskDone(verref string, taskID uint32, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.versions[verref]
	if !ok || v.TaskID == nil || *v.TaskID != taskID {
		return
	}

	g := beginTransaction(m)
	if success {
		g.setState(verref, types.VersionStateSucceeded)
		g.setProgress(verref, 1.0)
	} else {
		g.setState(verref, types.VersionStateFailed)
	}
	g.markVersionDirty(verref)
	g.pushAlwaysCommand(func(rm *resourcemgr.Manager) { rm.BumpDownBlockers() })
	if err := g.commit(); err != nil {
		g.abort()
	}
	m.removeTaskSymlink(taskID)
}
