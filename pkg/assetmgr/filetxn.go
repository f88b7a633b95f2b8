package assetmgr

import (
	"os"

	"github.com/cuemby/fusiond/pkg/ferrors"
)

// fileTransaction stages writes as ".new" siblings and only renames them
// over their targets (plus performs registered deletes) when commit is
// called; if any rename fails, every rename already applied is rolled
// back (spec §4.2, "Transactional commit" step 4).
type fileTransaction struct {
	writes  map[string][]byte // target path -> content
	deletes []string
}

func newFileTransaction() *fileTransaction {
	return &fileTransaction{writes: make(map[string][]byte)}
}

// stage registers content to be written to target on commit.
func (ft *fileTransaction) stage(target string, content []byte) {
	ft.writes[target] = content
}

// delete registers a path to be removed on commit.
func (ft *fileTransaction) delete(path string) {
	ft.deletes = append(ft.deletes, path)
}

// backup holds what a target looked like before commit touched it, so a
// partial failure can put it back exactly as it was.
type backup struct {
	existed bool
	content []byte
}

// commit writes every staged file to a ".new" sibling, then renames each
// over its target. Before any rename, the target's current content (or its
// absence) is captured; if a later rename fails, every target already
// renamed in this commit is restored from its captured backup rather than
// removed, so unrelated files committed earlier in the same transaction are
// never deleted by a later failure.
func (ft *fileTransaction) commit() error {
	newPaths := make([]string, 0, len(ft.writes))
	for target, content := range ft.writes {
		newPath := target + ".new"
		if err := os.WriteFile(newPath, content, 0644); err != nil {
			ft.cleanupNew(newPaths)
			return ferrors.New(ferrors.KindStorageCommit, "assetmgr.fileTransaction.commit", err)
		}
		newPaths = append(newPaths, newPath)
	}

	backups := make(map[string]backup, len(ft.writes))
	renamedTargets := make([]string, 0, len(ft.writes))
	for target := range ft.writes {
		b, err := backupTarget(target)
		if err != nil {
			ft.restoreBackups(backups, renamedTargets)
			ft.cleanupNew(newPaths)
			return ferrors.New(ferrors.KindStorageCommit, "assetmgr.fileTransaction.commit", err)
		}
		backups[target] = b

		newPath := target + ".new"
		if err := os.Rename(newPath, target); err != nil {
			ft.restoreBackups(backups, renamedTargets)
			ft.cleanupNew(newPaths)
			return ferrors.New(ferrors.KindStorageCommit, "assetmgr.fileTransaction.commit", err)
		}
		renamedTargets = append(renamedTargets, target)
	}

	for _, path := range ft.deletes {
		_ = os.Remove(path)
	}

	return nil
}

func backupTarget(target string) (backup, error) {
	content, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return backup{existed: false}, nil
		}
		return backup{}, err
	}
	return backup{existed: true, content: content}, nil
}

func (ft *fileTransaction) cleanupNew(newPaths []string) {
	for _, p := range newPaths {
		_ = os.Remove(p)
	}
}

// restoreBackups undoes every rename already applied in this commit,
// writing each target's pre-transaction content back (or removing it, if
// the target did not exist before the transaction started).
func (ft *fileTransaction) restoreBackups(backups map[string]backup, renamedTargets []string) {
	for _, target := range renamedTargets {
		b := backups[target]
		if !b.existed {
			_ = os.Remove(target)
			continue
		}
		_ = os.WriteFile(target, b.content, 0644)
	}
}
