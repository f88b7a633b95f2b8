// Package reservation implements the two concrete kinds of scarce-resource
// claim used by the resource manager: CPU slots and volume byte budgets
// (spec §3, "Reservation"). Both are refcounted-once handles: the owning
// resource manager calls Release exactly once when the task that holds them
// completes, is lost, or fails to bind.
//
// Grounded on original_source/earth_enterprise's Reservation.{h,cpp}: a
// closed ReservationImpl hierarchy with a default no-op BindFilename,
// overridden only by the volume kind.
package reservation

import "sync"

// Kind identifies which concrete reservation a value holds.
type Kind string

const (
	KindCPU    Kind = "cpu"
	KindVolume Kind = "volume"
)

// Reservation is a refcounted claim on a CPU slot or a volume byte budget.
// ReleaseFunc is supplied by the resource manager at construction time and
// performs the actual bookkeeping (decrementing usedCPUs, shrinking a
// volume's reservation map and bumping its serial).
type Reservation struct {
	kind Kind

	// CPU fields
	host string
	cpus int

	// Volume fields
	volume   string
	path     string
	size     int64
	unbound  bool // true once a cleanup-on-destroy was scheduled instead of an explicit release

	releaseFunc func()
	once        sync.Once
}

// Kind reports whether this is a CPU or Volume reservation.
func (r *Reservation) Kind() Kind { return r.kind }

// Host returns the host a CPU reservation was made on.
func (r *Reservation) Host() string { return r.host }

// CPUs returns the number of CPUs granted to a CPU reservation.
func (r *Reservation) CPUs() int { return r.cpus }

// Volume returns the volume name a Volume reservation was made on.
func (r *Reservation) Volume() string { return r.volume }

// Path returns the reserved path within the volume.
func (r *Reservation) Path() string { return r.path }

// Size returns the reserved byte count.
func (r *Reservation) Size() int64 { return r.size }

// NewCPU constructs a CPU reservation. release is invoked at most once, by
// the first call to Release.
func NewCPU(host string, cpus int, release func()) *Reservation {
	return &Reservation{kind: KindCPU, host: host, cpus: cpus, releaseFunc: release}
}

// NewVolume constructs a volume reservation.
func NewVolume(volume, path string, size int64, release func()) *Reservation {
	return &Reservation{kind: KindVolume, volume: volume, path: path, size: size, releaseFunc: release}
}

// Release gives the resource back. Safe to call more than once; only the
// first call has effect, matching the invariant that the resource is
// released exactly once even if multiple code paths race to clean up.
func (r *Reservation) Release() {
	r.once.Do(func() {
		if r.releaseFunc != nil {
			r.releaseFunc()
		}
	})
}

// MarkUnbound flags that this volume reservation was destroyed without an
// explicit Release — the owner should schedule file cleanup on the volume
// path instead of treating it as a normal decrement (spec §3 invariant on
// Reservation).
func (r *Reservation) MarkUnbound() { r.unbound = true }

// Unbound reports whether MarkUnbound was called.
func (r *Reservation) Unbound() bool { return r.unbound }

// BindFilename attempts to bind defPath (the task-declared output path) to
// a concrete on-disk path via this reservation. Only volume reservations
// can bind; a CPU reservation always declines. asset callers try every
// reservation a task holds in order and take the first bind that succeeds,
// matching khTask::bindOutfiles.
func (r *Reservation) BindFilename(defPath string) (string, bool) {
	if r.kind != KindVolume {
		return "", false
	}
	if r.path == "" {
		return "", false
	}
	return r.path, true
}
