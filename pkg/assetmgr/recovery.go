package assetmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/fusiond/pkg/log"
	"github.com/cuemby/fusiond/pkg/types"
)

// taskSymlinkPath is the recovery marker for an in-flight task: a symlink
// named by task id, under stateDir, pointing at the verref it belongs to
// (spec §4.4 "Startup recovery", §4.5 "Persistence").
func (m *Manager) taskSymlinkPath(taskID uint32) string {
	return filepath.Join(m.stateDir, fmt.Sprintf("%d.task", taskID))
}

// writeTaskSymlink records that taskID is in flight for verref, so a crash
// before its completion is detected on the next Recover.
func (m *Manager) writeTaskSymlink(taskID uint32, verref string) {
	path := m.taskSymlinkPath(taskID)
	_ = os.Remove(path)
	if err := os.Symlink(verref, path); err != nil {
		log.Warn(fmt.Sprintf("assetmgr: failed to write task symlink for task %d: %v", taskID, err))
	}
}

// removeTaskSymlink clears the recovery marker once a task is no longer
// outstanding (completed, lost and requeued, or canceled).
func (m *Manager) removeTaskSymlink(taskID uint32) {
	_ = os.Remove(m.taskSymlinkPath(taskID))
}

// Recover scans stateDir for *.task symlinks left over from a previous
// run, treats each as a lost task for its target version, and clears the
// marker. Call this once at startup after LoadFromDisk (spec §4.4
// "Startup recovery").
func (m *Manager) Recover() error {
	entries, err := os.ReadDir(m.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".task") {
			continue
		}
		idStr := strings.TrimSuffix(name, ".task")
		taskID, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}
		path := filepath.Join(m.stateDir, name)
		verref, err := os.Readlink(path)
		if err != nil {
			_ = os.Remove(path)
			continue
		}
		m.recoverLostTask(uint32(taskID), verref)
		_ = os.Remove(path)
	}
	return nil
}

// recoverLostTask moves verref's version back to Waiting, the same state
// transition NotifyTaskLost applies to a live provider loss. A missing or
// terminal version is left alone, and taskID is not compared with the
// version's current task id. No new task is submitted and task
// requirements are not recomputed.
func (m *Manager) recoverLostTask(taskID uint32, verref string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.versions[verref]
	if !ok {
		return
	}
	if v.State.Terminal() {
		return
	}

	g := beginTransaction(m)
	g.setState(verref, types.VersionStateWaiting)
	g.markVersionDirty(verref)
	if err := g.commit(); err != nil {
		log.Warn(fmt.Sprintf("assetmgr: recovery commit failed for %s: %v", verref, err))
		g.abort()
	}
}
