// Package providerproxy implements the resource-manager side of one
// connected provider agent: the TCP listener on port 13033, the
// handshake/registration path, the per-connection reader that dispatches
// incoming Notify messages, and the resourcemgr.Sender implementation that
// turns outbound commands into Request messages (spec §4.4).
package providerproxy

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/fusiond/pkg/ferrors"
	"github.com/cuemby/fusiond/pkg/log"
	"github.com/cuemby/fusiond/pkg/resourcemgr"
	"github.com/cuemby/fusiond/pkg/types"
	"github.com/cuemby/fusiond/pkg/wire"
)

// connectTimeout bounds how long the listener waits for a provider's
// ProviderConnect notify after accepting the socket (spec §4.4, "Connect").
const connectTimeout = 10 * time.Second

// Proxy is the resourcemgr.Sender implementation for one connected
// provider: it turns StartJob/StopJob/... into wire Requests and blocks for
// the Reply, scheduling abandonment on any failure (spec §4.4, "Liveness").
type Proxy struct {
	host   string
	conn   *wire.Conn
	onFail func(host string)
}

var _ resourcemgr.Sender = (*Proxy)(nil)

func newProxy(host string, conn *wire.Conn, onFail func(host string)) *Proxy {
	return &Proxy{host: host, conn: conn, onFail: onFail}
}

func (p *Proxy) request(command string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return ferrors.New(ferrors.KindProviderCommunication, "providerproxy.request", err)
	}
	reply, err := p.conn.SendRequest(command, data, wire.DefaultRequestTimeout)
	if err != nil {
		p.fail()
		return ferrors.New(ferrors.KindProviderCommunication, "providerproxy.request", err)
	}
	if reply.Kind == wire.KindException {
		return ferrors.New(ferrors.KindProviderCommunication, "providerproxy.request", fmt.Errorf("%s", string(reply.Payload)))
	}
	return nil
}

func (p *Proxy) fail() {
	if p.onFail != nil {
		p.onFail(p.host)
	}
}

// StartJob implements resourcemgr.Sender.
func (p *Proxy) StartJob(j *types.StartJob) error { return p.request("StartJob", j) }

// StopJob implements resourcemgr.Sender.
func (p *Proxy) StopJob(j *types.StopJob) error { return p.request("StopJob", j) }

// ChangeVolumeReservations implements resourcemgr.Sender.
func (p *Proxy) ChangeVolumeReservations(c *types.ChangeVolumeReservations) error {
	return p.request("ChangeVolumeReservations", c)
}

// CleanupVolume implements resourcemgr.Sender.
func (p *Proxy) CleanupVolume(c *types.CleanupVolume) error {
	return p.request("CleanupVolume", c)
}

// CleanPath implements resourcemgr.Sender.
func (p *Proxy) CleanPath(c *types.CleanPath) error { return p.request("CleanPath", c) }

// Listener accepts provider connections on port 13033, registers each with
// a resourcemgr.Manager, and dispatches its Notify stream.
type Listener struct {
	mgr           *resourcemgr.Manager
	serverVersion string
}

// NewListener constructs a Listener bound to mgr.
func NewListener(mgr *resourcemgr.Manager) *Listener {
	return &Listener{mgr: mgr, serverVersion: wire.ClientVersion}
}

// Serve accepts connections on ln (normally listening on ":13033") until
// the listener is closed or ln.Accept fails permanently.
func (l *Listener) Serve(ln net.Listener) error {
	for {
		netConn, err := ln.Accept()
		if err != nil {
			return err
		}
		go l.handleConn(wire.NewConn(netConn))
	}
}

func (l *Listener) handleConn(conn *wire.Conn) {
	if err := wire.ServerHandshake(conn, l.serverVersion, connectTimeout); err != nil {
		log.Warn(fmt.Sprintf("providerproxy: handshake failed: %v", err))
		conn.Close()
		return
	}

	msg, err := conn.Receive(connectTimeout)
	if err != nil || msg.Kind != wire.KindRegister {
		log.Warn("providerproxy: expected ProviderConnect register")
		conn.Close()
		return
	}

	var pc types.ProviderConnect
	if err := json.Unmarshal(msg.Payload, &pc); err != nil {
		_ = conn.SendException(msg.Header, "malformed ProviderConnect payload", connectTimeout)
		conn.Close()
		return
	}
	if pc.FusionVersion != wire.ClientVersion {
		_ = conn.SendException(msg.Header, fmt.Sprintf("version mismatch: got %s want %s", pc.FusionVersion, wire.ClientVersion), connectTimeout)
		conn.Close()
		return
	}

	proxy := newProxy(pc.Host, conn, l.abandon)
	if _, err := l.mgr.InsertProvider(pc.Host, pc.NumCPUs, proxy); err != nil {
		_ = conn.SendException(msg.Header, err.Error(), connectTimeout)
		conn.Close()
		return
	}
	if err := conn.SendReply(msg.Header, nil, connectTimeout); err != nil {
		l.abandon(pc.Host)
		return
	}

	log.WithHost(pc.Host).Info().Msg("provider connected")
	l.readLoop(pc.Host, conn)
}

// readLoop only receives; every send to this connection happens from
// Proxy.request under the resource manager's mutex (spec §4.4, "Connect":
// "The reader only receives").
func (l *Listener) readLoop(host string, conn *wire.Conn) {
	for {
		msg, err := conn.Receive(0)
		if err != nil {
			log.WithHost(host).Warn().Err(err).Msg("provider connection lost")
			l.abandon(host)
			return
		}
		if msg.Kind != wire.KindNotify {
			continue
		}
		l.dispatch(host, msg)
	}
}

func (l *Listener) dispatch(host string, msg *wire.Message) {
	switch msg.Command {
	case "JobProgress":
		var p types.JobProgress
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		l.mgr.HandleJobProgress(host, p.JobID, p.Progress)
	case "JobDone":
		var d types.JobDone
		if err := json.Unmarshal(msg.Payload, &d); err != nil {
			return
		}
		l.mgr.HandleJobDone(host, d.JobID, d.Success)
	case "VolumeAvail":
		var v types.VolumeAvail
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			return
		}
		l.mgr.SetVolumeAvail(v.VolName, v.Serial, v.Avail)
	default:
		log.WithHost(host).Warn().Str("command", msg.Command).Msg("providerproxy: unknown notify command")
	}
}

func (l *Listener) abandon(host string) {
	l.mgr.AbandonProvider(host)
}
