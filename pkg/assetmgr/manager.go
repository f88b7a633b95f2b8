package assetmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/fusiond/pkg/catalog"
	"github.com/cuemby/fusiond/pkg/ferrors"
	"github.com/cuemby/fusiond/pkg/log"
	"github.com/cuemby/fusiond/pkg/resourcemgr"
	"github.com/cuemby/fusiond/pkg/task"
	"github.com/cuemby/fusiond/pkg/types"
	"github.com/cuemby/fusiond/pkg/volume"
)

// MutexTimedWaitSec bounds how long GetCurrTasks waits for the asset
// mutex before giving up and returning "system busy", so a long-running
// transaction never blocks a status-polling client indefinitely (spec §9,
// Open Question: preserve this escape hatch).
const MutexTimedWaitSec = 2 * time.Second

// pendingState holds the five structures a PendingAssetGuard asserts are
// empty at entry (spec §4.2, "Transactional commit"): dirty asset/version
// caches count as a single structure, since both are cleared and asserted
// together.
type pendingState struct {
	dirtyAssets   map[string]bool
	dirtyVersions map[string]bool
	stateChanges  map[string]types.VersionState
	progress      map[string]float64
	taskCommands  []taskCommand
	alwaysCmds    []taskCommand
	fileDeletes   []string
}

func newPendingState() *pendingState {
	return &pendingState{
		dirtyAssets:   make(map[string]bool),
		dirtyVersions: make(map[string]bool),
		stateChanges:  make(map[string]types.VersionState),
		progress:      make(map[string]float64),
	}
}

func (p *pendingState) empty() bool {
	return len(p.dirtyAssets) == 0 && len(p.dirtyVersions) == 0 &&
		len(p.stateChanges) == 0 && len(p.progress) == 0 &&
		len(p.taskCommands) == 0 && len(p.fileDeletes) == 0
}

// taskCommand is a deferred call against the resource manager, enqueued
// during a transaction and only run after the transaction's file changes
// have committed (spec §4.2 step 6; spec §5, "Ordering guarantees").
type taskCommand func(*resourcemgr.Manager)

// Manager owns the asset mutex: the in-memory asset/version graph and all
// pending transaction state (spec §4.2, §5).
type Manager struct {
	mu sync.Mutex

	assetRoot string
	stateDir  string
	thisHost  string

	assets   map[string]*types.Asset
	versions map[string]*types.AssetVersion

	cat   *catalog.Catalog
	rmgr  *resourcemgr.Manager
	rules *task.RuleSet
	vols  *volume.Manager

	nextTaskID uint32

	changes *changeNotifier

	pending *pendingState
}

// Config bundles the dependencies Manager needs at construction.
type Config struct {
	AssetRoot string
	StateDir  string
	ThisHost  string
	Catalog   *catalog.Catalog
	Resources *resourcemgr.Manager
	Rules     *task.RuleSet
	Volumes   *volume.Manager
}

// NewManager constructs a Manager from cfg. Callers must call LoadFromDisk
// (normal startup) before serving requests.
func NewManager(cfg Config) *Manager {
	return &Manager{
		assetRoot: cfg.AssetRoot,
		stateDir:  cfg.StateDir,
		thisHost:  cfg.ThisHost,
		assets:    make(map[string]*types.Asset),
		versions:  make(map[string]*types.AssetVersion),
		cat:       cfg.Catalog,
		rmgr:      cfg.Resources,
		rules:     cfg.Rules,
		vols:      cfg.Volumes,
		changes:   newChangeNotifier(),
		pending:   newPendingState(),
	}
}

// assetPath is the on-disk path for an asset's serialised record, under
// the asset root and named by its asset path (spec §6, "Persistent state
// layout").
func (m *Manager) assetPath(name string) string {
	return filepath.Join(m.assetRoot, name+".kasset")
}

func (m *Manager) versionPath(ref types.Ref) string {
	return filepath.Join(m.assetRoot, fmt.Sprintf("%s.v%d.kversion", ref.AssetName, ref.Version))
}

// LoadFromDisk rebuilds the in-memory graph (and, from it, the catalog
// secondary index) by walking every *.kasset/*.kversion file under the
// asset root. The catalog is never itself authoritative (spec §4.2,
// "Persistence").
func (m *Manager) LoadFromDisk() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	assets := make(map[string]*types.Asset)
	versions := make(map[string]*types.AssetVersion)

	err := filepath.WalkDir(m.assetRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case filepath.Ext(path) == ".kasset":
			var a types.Asset
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return rerr
			}
			if rerr := json.Unmarshal(data, &a); rerr != nil {
				return rerr
			}
			assets[a.Name] = &a
		case filepath.Ext(path) == ".kversion":
			var v types.AssetVersion
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return rerr
			}
			if rerr := json.Unmarshal(data, &v); rerr != nil {
				return rerr
			}
			versions[v.Verref()] = &v
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			m.assets, m.versions = assets, versions
			return nil
		}
		return ferrors.New(ferrors.KindFatal, "assetmgr.LoadFromDisk", err)
	}

	m.assets, m.versions = assets, versions

	if m.cat != nil {
		assetList := make([]*types.Asset, 0, len(assets))
		for _, a := range assets {
			assetList = append(assetList, a)
		}
		versionList := make([]*types.AssetVersion, 0, len(versions))
		for _, v := range versions {
			versionList = append(versionList, v)
		}
		if err := m.cat.Rebuild(assetList, versionList); err != nil {
			log.Warn(fmt.Sprintf("assetmgr: catalog rebuild failed: %v", err))
		}
	}

	return nil
}

// SetResources binds the resource manager this Manager submits tasks to
// and is notified by. Split from NewManager because construction is
// circular: the resource manager takes this Manager as its Notifier, so
// one side has to be wired after both exist (see pkg/lifecycle).
func (m *Manager) SetResources(rm *resourcemgr.Manager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rmgr = rm
}

func (m *Manager) nextTaskIDLocked() uint32 {
	m.nextTaskID++
	return m.nextTaskID
}
