// Package lifecycle ties together startup, recovery, and shutdown for a
// single fusiond instance: the single-instance advisory lock, the
// assetmgr/resourcemgr/providerproxy wiring order, and signal-driven
// shutdown (spec.md §4.6, §6).
package lifecycle

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"

	"github.com/cuemby/fusiond/pkg/assetmgr"
	"github.com/cuemby/fusiond/pkg/catalog"
	"github.com/cuemby/fusiond/pkg/log"
	"github.com/cuemby/fusiond/pkg/metrics"
	"github.com/cuemby/fusiond/pkg/providerproxy"
	"github.com/cuemby/fusiond/pkg/resourcemgr"
	"github.com/cuemby/fusiond/pkg/task"
	"github.com/cuemby/fusiond/pkg/volume"
	"github.com/cuemby/fusiond/pkg/wire"
)

// Config bundles everything needed to bring up one fusiond instance.
type Config struct {
	StateDir    string
	AssetRoot   string
	RulesDir    string
	VolumesPath string
	ThisHost    string
}

// System is the running instance: every long-lived component plus the
// lock file held for its lifetime. The System Manager singleton spec.md §6
// describes maps directly onto this struct — there's exactly one per
// process, constructed once by Start.
type System struct {
	cfg Config

	lock *os.File

	volumes   *volume.Manager
	rules     *task.RuleSet
	catalog   *catalog.Catalog
	resources *resourcemgr.Manager
	assets    *assetmgr.Manager
	metrics   *resourcemgr.MetricsCollector

	assetListener    net.Listener
	providerListener net.Listener
}

// Start acquires the single-instance lock, loads configuration, rebuilds
// state from disk, runs startup recovery, and opens the asset-manager and
// provider listeners. It does not block; the caller keeps the process
// alive and calls Shutdown when done.
func Start(cfg Config) (*System, error) {
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	if err := os.MkdirAll(cfg.AssetRoot, 0755); err != nil {
		return nil, fmt.Errorf("creating asset root: %w", err)
	}

	lock, err := acquireLock(filepath.Join(cfg.StateDir, "active"))
	if err != nil {
		return nil, err
	}

	s := &System{cfg: cfg, lock: lock}

	if err := s.wire(); err != nil {
		s.releaseLock()
		return nil, err
	}

	return s, nil
}

func (s *System) wire() error {
	volumesData, err := os.ReadFile(s.cfg.VolumesPath)
	if err != nil {
		return fmt.Errorf("reading volumes config: %w", err)
	}
	s.volumes = volume.NewManager()
	if err := s.volumes.Load(volumesData); err != nil {
		return fmt.Errorf("loading volumes config: %w", err)
	}

	s.rules = task.NewRuleSet()
	if err := s.rules.LoadDir(s.cfg.RulesDir); err != nil {
		return fmt.Errorf("loading task rules: %w", err)
	}

	cat, err := catalog.Open(s.cfg.StateDir)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	s.catalog = cat
	metrics.RegisterComponent("catalog", true, "open")

	s.assets = assetmgr.NewManager(assetmgr.Config{
		AssetRoot: s.cfg.AssetRoot,
		StateDir:  s.cfg.StateDir,
		ThisHost:  s.cfg.ThisHost,
		Catalog:   cat,
		Rules:     s.rules,
		Volumes:   s.volumes,
	})

	metrics.RegisterComponent("assetmgr", false, "loading asset graph")

	s.resources = resourcemgr.NewManager(s.volumes, s.assets)
	s.assets.SetResources(s.resources)

	if err := s.assets.LoadFromDisk(); err != nil {
		return fmt.Errorf("loading asset graph: %w", err)
	}
	if err := s.assets.Recover(); err != nil {
		return fmt.Errorf("recovering in-flight tasks: %w", err)
	}
	metrics.RegisterComponent("assetmgr", true, "ready")
	metrics.RegisterComponent("resourcemgr", true, "ready")

	assetLn, err := net.Listen("tcp", fmt.Sprintf(":%d", wire.AssetManagerPort))
	if err != nil {
		return fmt.Errorf("listening for asset manager clients: %w", err)
	}
	s.assetListener = assetLn

	providerLn, err := net.Listen("tcp", fmt.Sprintf(":%d", wire.ResourceProviderPort))
	if err != nil {
		return fmt.Errorf("listening for providers: %w", err)
	}
	s.providerListener = providerLn

	s.metrics = resourcemgr.NewMetricsCollector(s.resources)
	s.metrics.Start()

	go s.resources.ActivateLoop()
	go func() {
		srv := assetmgr.NewServer(s.assets)
		if err := srv.Serve(s.assetListener); err != nil {
			log.Warn(fmt.Sprintf("lifecycle: asset manager listener stopped: %v", err))
		}
	}()
	go func() {
		pl := providerproxy.NewListener(s.resources)
		if err := pl.Serve(s.providerListener); err != nil {
			log.Warn(fmt.Sprintf("lifecycle: provider listener stopped: %v", err))
		}
	}()

	log.Info("fusiond started")
	return nil
}

// Shutdown stops the listeners, the activation loop, and the metrics
// collector, then releases the single-instance lock. Safe to call once.
func (s *System) Shutdown() {
	log.Info("fusiond shutting down")

	if s.assetListener != nil {
		_ = s.assetListener.Close()
	}
	if s.providerListener != nil {
		_ = s.providerListener.Close()
	}
	if s.metrics != nil {
		s.metrics.Stop()
	}
	if s.resources != nil {
		s.resources.Stop()
	}
	if s.catalog != nil {
		_ = s.catalog.Close()
	}

	s.releaseLock()
	log.Info("fusiond shutdown complete")
}

func (s *System) releaseLock() {
	if s.lock == nil {
		return
	}
	_ = syscall.Flock(int(s.lock.Fd()), syscall.LOCK_UN)
	_ = s.lock.Close()
	s.lock = nil
}

// acquireLock takes an exclusive, non-blocking advisory lock on path,
// refusing to start a second instance against the same state directory
// (spec.md §4.6, "Single instance").
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another fusiond instance already holds %s", path)
	}
	return f, nil
}
