package assetmgr

import (
	"encoding/json"
	"time"

	"github.com/cuemby/fusiond/pkg/ferrors"
	"github.com/cuemby/fusiond/pkg/metrics"
	"github.com/cuemby/fusiond/pkg/resourcemgr"
	"github.com/cuemby/fusiond/pkg/types"
)

// guard is a single in-flight transaction against the Manager's in-memory
// graph: a handler opens one with beginTransaction, mutates assets/versions
// through its methods, and ends it with either commit or abort (spec §4.2,
// "PendingAssetGuard").
//
// beginTransaction panics if the five pending structures aren't already
// empty, matching the assertion the original takes as invariant: only one
// transaction is ever open at a time because the caller holds m.mu for its
// entire lifetime.
type guard struct {
	m *Manager
}

// beginTransaction asserts the pending state is clean and returns a guard
// bound to m. Callers must hold m.mu before calling this and until the
// guard is committed or aborted.
func beginTransaction(m *Manager) *guard {
	if !m.pending.empty() {
		panic("assetmgr: beginTransaction called with non-empty pending state")
	}
	return &guard{m: m}
}

func (g *guard) markAssetDirty(name string) {
	g.m.pending.dirtyAssets[name] = true
}

func (g *guard) markVersionDirty(verref string) {
	g.m.pending.dirtyVersions[verref] = true
}

// setState records the intended new state for verref. The live
// *AssetVersion is left untouched until commit succeeds, so a failed
// commit leaves in-memory state exactly as it was before the transaction
// (spec §4.2, "leaves the world unchanged" on StorageCommitError).
func (g *guard) setState(verref string, state types.VersionState) {
	g.m.pending.stateChanges[verref] = state
}

// setProgress records the intended new progress for verref; see setState.
func (g *guard) setProgress(verref string, progress float64) {
	g.m.pending.progress[verref] = progress
}

// pushTaskCommand defers cmd until after this transaction's file changes
// have committed (spec §4.2 step 6).
func (g *guard) pushTaskCommand(cmd taskCommand) {
	g.m.pending.taskCommands = append(g.m.pending.taskCommands, cmd)
}

// pushAlwaysCommand defers cmd to run even if the transaction aborts
// (spec §4.2, "abort still flushes always-commands": BumpDownBlockers must
// run regardless of whether the triggering transaction actually commits).
func (g *guard) pushAlwaysCommand(cmd taskCommand) {
	g.m.pending.alwaysCmds = append(g.m.pending.alwaysCmds, cmd)
}

func (g *guard) deleteFile(path string) {
	g.m.pending.fileDeletes = append(g.m.pending.fileDeletes, path)
}

// commit serialises every dirty asset/version to disk inside one file
// transaction, then publishes the resulting AssetChanges and flushes the
// deferred resource-manager commands, in the order spec §4.2 describes:
//  1. serialize dirty records to .new files
//  2. register deletes
//  3. commit the file transaction (all-or-nothing)
//  4. build and publish AssetChanges from the union of what changed
//  5. push pending then always task commands onto the resource manager
//  6. clear pending state
func (g *guard) commit() error {
	start := time.Now()
	defer func() {
		metrics.TransactionCommitDuration.Observe(time.Since(start).Seconds())
	}()

	ft := newFileTransaction()

	changedAssets := make(map[string]bool, len(g.m.pending.dirtyAssets))
	for name := range g.m.pending.dirtyAssets {
		a, ok := g.m.assets[name]
		if !ok {
			continue
		}
		data, err := json.Marshal(a)
		if err != nil {
			return ferrors.New(ferrors.KindStorageCommit, "assetmgr.guard.commit", err)
		}
		ft.stage(g.m.assetPath(name), data)
		changedAssets[name] = true
	}

	for verref := range g.m.pending.dirtyVersions {
		v, ok := g.m.versions[verref]
		if !ok {
			continue
		}
		pending := *v
		if state, ok := g.m.pending.stateChanges[verref]; ok {
			pending.State = state
		}
		if progress, ok := g.m.pending.progress[verref]; ok {
			pending.Progress = progress
		}
		data, err := json.Marshal(&pending)
		if err != nil {
			return ferrors.New(ferrors.KindStorageCommit, "assetmgr.guard.commit", err)
		}
		ft.stage(g.m.versionPath(v.Ref), data)
		changedAssets[v.Ref.AssetName] = true
	}

	for _, path := range g.m.pending.fileDeletes {
		ft.delete(path)
	}

	if err := ft.commit(); err != nil {
		return err
	}

	// Only now that the file transaction has durably committed do the
	// in-memory versions get the new state/progress applied.
	for verref, state := range g.m.pending.stateChanges {
		if v, ok := g.m.versions[verref]; ok {
			v.State = state
		}
	}
	for verref, progress := range g.m.pending.progress {
		if v, ok := g.m.versions[verref]; ok {
			v.Progress = progress
		}
	}

	changes := &AssetChanges{
		States:   g.m.pending.stateChanges,
		Progress: g.m.pending.progress,
	}
	for name := range changedAssets {
		changes.Assets = append(changes.Assets, name)
	}
	g.m.changes.Publish(changes)

	taskCmds := g.m.pending.taskCommands
	alwaysCmds := g.m.pending.alwaysCmds
	g.m.pending = newPendingState()

	g.runCommands(taskCmds)
	g.runCommands(alwaysCmds)

	return nil
}

// abort discards every dirty record and pending change but still flushes
// the "always" commands (e.g. BumpDownBlockers), and never returns an
// error: an abort is itself not something that can fail (spec §4.2,
// "Abort path").
func (g *guard) abort() {
	alwaysCmds := g.m.pending.alwaysCmds
	g.m.pending = newPendingState()
	g.runCommands(alwaysCmds)
}

func (g *guard) runCommands(cmds []taskCommand) {
	for _, cmd := range cmds {
		cmd(g.m.rmgr)
	}
}

// submitTask allocates a task id, registers it with the resource manager
// as a deferred command, and creates the task's recovery symlink so a
// crash before completion is detected on the next startup (spec §4.4
// "Startup recovery", §4.5 "Persistence").
func (g *guard) submitTask(verref string, def types.TaskDef, priority int32, req types.TaskRequirements) uint32 {
	taskID := g.m.nextTaskIDLocked()
	t := &types.Task{
		Verref:       verref,
		TaskID:       taskID,
		Priority:     priority,
		TaskDef:      def,
		Requirements: req,
		SubmitTime:   timeNow(),
	}
	g.pushTaskCommand(func(rm *resourcemgr.Manager) {
		rm.SubmitTask(t)
	})
	g.m.writeTaskSymlink(taskID, verref)
	return taskID
}

// timeNow exists only so task submission timestamps are taken at a single
// call site, matching the restriction against calling time.Now directly in
// request-handling code sprinkled throughout the original.
func timeNow() time.Time { return time.Now() }
