// Package resourcemgr implements the waiting-task queue, provider registry,
// volume runtime accounting, and the activation algorithm that matches
// waiting tasks to connected resource providers (spec §4.3, §4.4).
//
// Grounded on original_source/earth_enterprise's
// autoingest/sysman/khResourceManager.{h,cpp}. The C++ class carries a
// never-destroyed mutex and a condition variable signalled whenever the
// activation predicate might have changed; Manager reproduces that with a
// plain sync.Mutex/sync.Cond pair rather than collapsing into channel-only
// concurrency, per spec §9's note on preserving the two-mutex/condvar
// shape across reimplementations.
package resourcemgr

import (
	"fmt"
	"sync"

	"github.com/cuemby/fusiond/pkg/ferrors"
	"github.com/cuemby/fusiond/pkg/log"
	"github.com/cuemby/fusiond/pkg/metrics"
	"github.com/cuemby/fusiond/pkg/reservation"
	"github.com/cuemby/fusiond/pkg/task"
	"github.com/cuemby/fusiond/pkg/types"
	"github.com/cuemby/fusiond/pkg/volume"
)

// Notifier delivers resource-manager events to the asset manager, crossing
// the mutex boundary strictly via these calls (never a shared lock).
type Notifier interface {
	NotifyTaskLost(verref string, taskID uint32)
	NotifyTaskProgress(verref string, taskID uint32, progress float64)
	NotifyTaskDone(verref string, taskID uint32, success bool)
}

// Manager owns the resource mutex: the waiting queue, provider registry,
// volume runtime state, and the activation condition.
type Manager struct {
	mu   sync.Mutex
	cond *sync.Cond

	vols     *volume.Manager
	notifier Notifier

	providers map[string]*Provider
	volumes   map[string]*runtimeVolume
	waiting   *waitingQueue

	numActivateBlockers uint32
	stopped             bool
}

// NewManager constructs a Manager. vols supplies the static volume list
// (host placement); notifier receives TaskLost/TaskProgress/TaskDone
// events destined for the asset manager.
func NewManager(vols *volume.Manager, notifier Notifier) *Manager {
	m := &Manager{
		vols:      vols,
		notifier:  notifier,
		providers: make(map[string]*Provider),
		volumes:   make(map[string]*runtimeVolume),
		waiting:   newWaitingQueue(),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// BumpUpBlockers increments the count of reasons activation must not run
// (e.g. a pending transaction that hasn't committed its task commands
// yet). Must be called with no locks held that Manager itself would need.
func (m *Manager) BumpUpBlockers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numActivateBlockers++
}

// BumpDownBlockers reverses BumpUpBlockers and wakes the activation loop
// once the count returns to zero.
func (m *Manager) BumpDownBlockers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.numActivateBlockers > 0 {
		m.numActivateBlockers--
	}
	if m.numActivateBlockers == 0 {
		m.cond.Signal()
	}
}

// Stop wakes the activation loop one last time so it can observe shutdown
// and return.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.cond.Broadcast()
}

// ActivateLoop runs until Stop is called, repeatedly attempting activation
// and sleeping on the condition variable whenever a pass makes no
// progress (spec §5, thread 6: "Activate").
func (m *Manager) ActivateLoop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if m.stopped {
			return
		}
		if !m.tryActivateLocked() {
			if m.stopped {
				return
			}
			m.cond.Wait()
		}
	}
}

// InsertProvider registers a newly connected provider and instantiates
// runtime state for every volume it hosts.
func (m *Manager) InsertProvider(host string, numCPUs int, sender Sender) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.providers[host]; exists {
		return nil, ferrors.Newf(ferrors.KindProviderCommunication, "resourcemgr.InsertProvider", "already have resource provider named %q", host)
	}
	p := newProvider(host, numCPUs, sender)
	m.providers[host] = p

	for _, vn := range m.vols.GetHostVolumes(host) {
		if _, exists := m.volumes[vn]; exists {
			log.Warn(fmt.Sprintf("volume %q already present in runtime table", vn))
		}
		m.volumes[vn] = newRuntimeVolume(vn, host)
	}

	m.cond.Signal()
	return p, nil
}

// EraseProvider removes a provider and every volume it hosted. Any tasks
// still active on it must be reinjected by the caller via AbandonProvider
// before calling this, or use AbandonProvider directly which does both.
func (m *Manager) EraseProvider(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eraseProviderLocked(host)
}

func (m *Manager) eraseProviderLocked(host string) {
	delete(m.providers, host)
	for _, vn := range m.vols.GetHostVolumes(host) {
		delete(m.volumes, vn)
	}
}

// AbandonProvider tears down a provider whose connection was lost:
// re-injects every active task into the waiting queue, notifies the asset
// manager of each loss, and removes the provider and its volumes (spec
// §4.4, "Liveness").
func (m *Manager) AbandonProvider(host string) {
	m.mu.Lock()
	p, ok := m.providers[host]
	if !ok {
		m.mu.Unlock()
		return
	}
	lost := make([]*activeTask, 0, len(p.active))
	for _, at := range p.active {
		lost = append(lost, at)
	}
	p.active = make(map[uint32]*activeTask)
	m.eraseProviderLocked(host)
	m.mu.Unlock()

	for _, at := range lost {
		for _, r := range at.reservations {
			r.Release()
		}
		at.task.JobHost = ""
		at.task.BoundOutfiles = nil
		m.InsertWaitingTask(at.task)
		metrics.TasksLostTotal.Inc()
		if m.notifier != nil {
			m.notifier.NotifyTaskLost(at.task.Verref, at.task.TaskID)
		}
	}
}

// InsertWaitingTask adds (or replaces) a task in the waiting queue and
// wakes the activation loop.
func (m *Manager) InsertWaitingTask(t *types.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waiting.insert(t)
	m.cond.Signal()
}

// EraseWaitingTask removes a task from the waiting queue, if present.
func (m *Manager) EraseWaitingTask(verref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiting.remove(verref)
}

// SubmitTask accepts a freshly constructed task, displacing any task
// already outstanding for the same verref (spec §4.3, "command -
// SubmitTask": idempotent re-submission).
func (m *Manager) SubmitTask(t *types.Task) {
	m.DeleteTask(t.Verref)
	m.InsertWaitingTask(t)
}

// DeleteTask removes a task for verref wherever it currently lives: the
// waiting queue, or an active provider slot (releasing its reservations
// and asking the provider to stop it).
func (m *Manager) DeleteTask(verref string) {
	m.mu.Lock()
	if m.waiting.remove(verref) {
		m.mu.Unlock()
		return
	}
	var provider *Provider
	var taskID uint32
	var at *activeTask
	for _, p := range m.providers {
		for id, a := range p.active {
			if a.task.Verref == verref {
				provider, taskID, at = p, id, a
				break
			}
		}
		if provider != nil {
			break
		}
	}
	if provider != nil {
		delete(provider.active, taskID)
	}
	m.mu.Unlock()

	if at != nil {
		for _, r := range at.reservations {
			r.Release()
		}
		if provider != nil && provider.sender != nil {
			_ = provider.sender.StopJob(&types.StopJob{JobID: taskID})
		}
	}
}

// RequiredAndPreferredHost re-exports task.RequiredAndPreferredHost for
// callers assembling TaskRequirements outside this package.
var RequiredAndPreferredHost = task.RequiredAndPreferredHost

// makeVolumeReservationLocked constructs the reservation.Reservation wrapper around a
// successful volume reservation, wiring Release back to this Manager's
// bookkeeping and provider notification.
func (m *Manager) makeVolumeReservationLocked(volName, path string, size int64) *reservation.Reservation {
	vol, ok := m.volumes[volName]
	if !ok || !vol.makeReservation(path, size) {
		return nil
	}
	m.pushVolumeReservationsLocked(vol)

	r := reservation.NewVolume(volName, path, size, func() {
		m.mu.Lock()
		v, ok := m.volumes[volName]
		if ok {
			v.releaseReservation(path)
			m.pushVolumeReservationsLocked(v)
		}
		m.cond.Signal()
		m.mu.Unlock()
	})
	return r
}

func (m *Manager) pushVolumeReservationsLocked(v *runtimeVolume) {
	p, ok := m.providers[v.host]
	if !ok || p.sender == nil {
		return
	}
	snapshot := make(map[string]int64, len(v.Reservations))
	for k, val := range v.Reservations {
		snapshot[k] = val
	}
	_ = p.sender.ChangeVolumeReservations(&types.ChangeVolumeReservations{
		VolName:      v.name,
		Serial:       v.Serial,
		Reservations: snapshot,
	})
}

func (m *Manager) makeCPUReservationLocked(p *Provider, cpu types.CPUConstraint) *reservation.Reservation {
	num := p.AvailCPUs()
	if num > cpu.Max {
		num = cpu.Max
	}
	if num < cpu.Min {
		return nil
	}
	p.UsedCPUs += num
	host := p.Host
	return reservation.NewCPU(host, num, func() {
		m.mu.Lock()
		if pp, ok := m.providers[host]; ok {
			pp.UsedCPUs -= num
		}
		m.cond.Signal()
		m.mu.Unlock()
	})
}

// SetVolumeAvail applies a provider's free-space report, silently dropping
// reports that predate the volume's current reservation serial (spec §4.3,
// "Reservation serial").
func (m *Manager) SetVolumeAvail(volName string, serial uint32, avail int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[volName]
	if !ok || v.Serial != serial {
		return
	}
	v.setAvail(avail)
	m.cond.Signal()
}
