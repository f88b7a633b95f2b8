package resourcemgr

import "github.com/cuemby/fusiond/pkg/types"

// runtimeVolume is the live accounting for one named volume while its
// hosting provider is connected: name/host identity plus the shared
// types.VolumeRuntime bookkeeping (free-space report, outstanding
// reservations, and the change serial used to discard stale VolumeAvail
// reports; spec §4.3, "Reservation serial").
type runtimeVolume struct {
	name string
	host string
	*types.VolumeRuntime
}

func newRuntimeVolume(name, host string) *runtimeVolume {
	return &runtimeVolume{name: name, host: host, VolumeRuntime: types.NewVolumeRuntime()}
}

func (v *runtimeVolume) totalReserved() int64 {
	return v.TotalReserved()
}

// makeReservation reserves size bytes at path if free space allows,
// bumping the serial on success.
func (v *runtimeVolume) makeReservation(path string, size int64) bool {
	if size > v.Avail-v.TotalReserved() {
		return false
	}
	v.Reservations[path] = size
	v.Serial++
	return true
}

func (v *runtimeVolume) releaseReservation(path string) {
	if _, ok := v.Reservations[path]; !ok {
		return
	}
	delete(v.Reservations, path)
	v.Serial++
}

func (v *runtimeVolume) setAvail(avail int64) {
	v.Avail = avail
}
