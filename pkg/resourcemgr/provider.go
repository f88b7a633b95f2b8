package resourcemgr

import (
	"github.com/cuemby/fusiond/pkg/reservation"
	"github.com/cuemby/fusiond/pkg/types"
)

// Sender is what a Provider uses to push commands to the agent it proxies
// for (spec §4.4). providerproxy implements this over a wire.Conn; tests
// substitute a fake.
type Sender interface {
	StartJob(*types.StartJob) error
	StopJob(*types.StopJob) error
	ChangeVolumeReservations(*types.ChangeVolumeReservations) error
	CleanupVolume(*types.CleanupVolume) error
	CleanPath(*types.CleanPath) error
}

// activeTask is a task currently running on a provider, along with the
// reservations it holds so they can be released on completion or loss.
type activeTask struct {
	task         *types.Task
	reservations []*reservation.Reservation
}

// Provider is the resource manager's bookkeeping record for one connected
// resource-provider agent (spec §3, "Provider").
type Provider struct {
	Host     string
	NumCPUs  int
	UsedCPUs int

	sender Sender
	active map[uint32]*activeTask
}

func newProvider(host string, numCPUs int, sender Sender) *Provider {
	return &Provider{
		Host:    host,
		NumCPUs: numCPUs,
		sender:  sender,
		active:  make(map[uint32]*activeTask),
	}
}

// AvailCPUs is the number of CPUs not currently reserved.
func (p *Provider) AvailCPUs() int { return p.NumCPUs - p.UsedCPUs }
