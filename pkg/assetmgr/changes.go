package assetmgr

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cuemby/fusiond/pkg/log"
	"github.com/cuemby/fusiond/pkg/metrics"
	"github.com/cuemby/fusiond/pkg/types"
	"github.com/cuemby/fusiond/pkg/wire"
)

// changeNotifyDelay is added before an AssetChanges fan-out so clients
// reading the affected files over NFS don't race the writer (spec §5,
// thread 3 "AssetNotifier").
const changeNotifyDelay = 2 * time.Second

// changeSendTimeout bounds how long a single listener's send may take;
// a listener that doesn't drain in time is dropped rather than stalling
// every other subscriber (spec §5, thread 3).
const changeSendTimeout = 4 * time.Second

// AssetChanges is the payload delivered to every AssetChanges subscriber
// after a transaction commits.
type AssetChanges struct {
	Assets   []string                        `json:"assets"`
	States   map[string]types.VersionState   `json:"states,omitempty"`
	Progress map[string]float64              `json:"progress,omitempty"`
}

func (c *AssetChanges) empty() bool {
	return len(c.Assets) == 0 && len(c.States) == 0 && len(c.Progress) == 0
}

type changeListener struct {
	conn *wire.Conn
}

// changeNotifier holds the registry of connections that have sent an
// AssetChanges Register and fans out each committed transaction's changes
// to all of them, dropping any listener whose send doesn't complete in
// time (spec §4.2, "AssetChanges listeners").
type changeNotifier struct {
	mu        sync.Mutex
	listeners map[*wire.Conn]*changeListener
}

func newChangeNotifier() *changeNotifier {
	return &changeNotifier{listeners: make(map[*wire.Conn]*changeListener)}
}

// Register adds conn to the listener set. Callers remove it by calling
// Unregister once the connection closes.
func (n *changeNotifier) Register(conn *wire.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[conn] = &changeListener{conn: conn}
}

func (n *changeNotifier) Unregister(conn *wire.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, conn)
}

// Publish delivers changes to every registered listener after
// changeNotifyDelay, each with its own changeSendTimeout; it never blocks
// the caller past scheduling the goroutine (spec §4.2 step 5, §5 thread 3).
func (n *changeNotifier) Publish(changes *AssetChanges) {
	if changes.empty() {
		return
	}
	go func() {
		time.Sleep(changeNotifyDelay)
		start := time.Now()
		n.fanout(changes)
		metrics.NotifierFanoutDuration.Observe(time.Since(start).Seconds())
	}()
}

func (n *changeNotifier) fanout(changes *AssetChanges) {
	n.mu.Lock()
	targets := make([]*changeListener, 0, len(n.listeners))
	for _, l := range n.listeners {
		targets = append(targets, l)
	}
	n.mu.Unlock()

	payload, err := json.Marshal(changes)
	if err != nil {
		log.Warn("assetmgr: failed to marshal AssetChanges payload")
		return
	}

	for _, l := range targets {
		if err := l.conn.SendNotify("AssetChanges", payload, changeSendTimeout); err != nil {
			n.Unregister(l.conn)
		}
	}
}
