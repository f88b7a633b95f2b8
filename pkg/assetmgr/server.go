package assetmgr

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/fusiond/pkg/ferrors"
	"github.com/cuemby/fusiond/pkg/log"
	"github.com/cuemby/fusiond/pkg/types"
	"github.com/cuemby/fusiond/pkg/wire"
)

// connectTimeout bounds the handshake and register exchange on a new
// client connection (spec §4.1).
const connectTimeout = 10 * time.Second

// maxClientReaders caps the number of concurrently handled client
// connections, matching the ClientListener thread pool size (spec §5,
// thread 1 "ClientListener": "max 3").
const maxClientReaders = 3

// Server accepts client connections on port 13031 and dispatches Request
// messages to Manager's handlers by command name, plus Register messages
// that subscribe the connection to AssetChanges notifications.
type Server struct {
	m     *Manager
	sem   chan struct{}
	vers  string
}

// NewServer constructs a Server bound to m.
func NewServer(m *Manager) *Server {
	return &Server{m: m, sem: make(chan struct{}, maxClientReaders), vers: wire.ClientVersion}
}

// Serve accepts connections on ln until it closes or fails permanently.
func (s *Server) Serve(ln net.Listener) error {
	for {
		netConn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.sem <- struct{}{}
		go func() {
			defer func() { <-s.sem }()
			s.handleConn(wire.NewConn(netConn))
		}()
	}
}

func (s *Server) handleConn(conn *wire.Conn) {
	defer conn.Close()

	if err := wire.ServerHandshake(conn, s.vers, connectTimeout); err != nil {
		log.Warn(fmt.Sprintf("assetmgr: handshake failed: %v", err))
		return
	}

	for {
		msg, err := conn.Receive(0)
		if err != nil {
			s.m.changes.Unregister(conn)
			return
		}

		switch msg.Kind {
		case wire.KindRegister:
			s.handleRegister(conn, msg)
		case wire.KindRequest:
			s.handleRequest(conn, msg)
		case wire.KindNotify:
			// The asset manager has no notify-only commands from clients
			// today; ignore unknown ones rather than closing the
			// connection.
		default:
			_ = conn.SendException(msg.Header, fmt.Sprintf("unexpected message kind %s", msg.Kind), connectTimeout)
		}
	}
}

func (s *Server) handleRegister(conn *wire.Conn, msg *wire.Message) {
	switch msg.Command {
	case "AssetChanges":
		s.m.changes.Register(conn)
		_ = conn.SendReply(msg.Header, nil, connectTimeout)
	default:
		_ = conn.SendException(msg.Header, fmt.Sprintf("unknown register command %q", msg.Command), connectTimeout)
	}
}

type buildPayload struct {
	Ref string `json:"ref"`
}

func (s *Server) handleRequest(conn *wire.Conn, msg *wire.Message) {
	reply, handlerErr := s.dispatch(msg)
	if handlerErr != nil {
		_ = conn.SendException(msg.Header, handlerErr.Error(), connectTimeout)
		return
	}
	_ = conn.SendReply(msg.Header, reply, connectTimeout)
}

func (s *Server) dispatch(msg *wire.Message) ([]byte, error) {
	switch msg.Command {
	case "New":
		var req EditRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return nil, badPayload(msg.Command, err)
		}
		ref, err := s.m.HandleNewRequest(req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(buildPayload{Ref: ref.String()})

	case "Edit":
		return s.dispatchBuild(msg, s.m.HandleEditRequest)
	case "Modify":
		return s.dispatchBuild(msg, s.m.HandleModifyRequest)
	case "AddTo":
		return s.dispatchBuild(msg, s.m.HandleAddToRequest)
	case "DropFrom":
		return s.dispatchBuild(msg, s.m.HandleDropFromRequest)

	case "Import":
		var req EditRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return nil, badPayload(msg.Command, err)
		}
		return nil, s.m.HandleImportRequest(req)

	case "CancelVersion":
		var p struct {
			Verref string `json:"verref"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, badPayload(msg.Command, err)
		}
		return nil, s.m.CancelVersion(p.Verref)

	case "RebuildVersion":
		var p struct {
			Verref string `json:"verref"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, badPayload(msg.Command, err)
		}
		return nil, s.m.RebuildVersion(p.Verref)

	case "SetBadVersion":
		var p struct {
			Verref string `json:"verref"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, badPayload(msg.Command, err)
		}
		return nil, s.m.SetBadVersion(p.Verref)

	case "ClearBadVersion":
		var p struct {
			Verref string `json:"verref"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, badPayload(msg.Command, err)
		}
		return nil, s.m.ClearBadVersion(p.Verref)

	case "CleanVersion":
		var p struct {
			Verref string `json:"verref"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, badPayload(msg.Command, err)
		}
		return nil, s.m.CleanVersion(p.Verref)

	case "ProductReImport":
		var p struct {
			AssetName string `json:"asset_name"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, badPayload(msg.Command, err)
		}
		return nil, s.m.ProductReImport(p.AssetName)

	case "GetCurrTasks":
		tasks, err := s.m.GetCurrTasks()
		if err != nil {
			return nil, err
		}
		return json.Marshal(tasks)

	case "AssetStatus":
		var p struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, badPayload(msg.Command, err)
		}
		a, versions, err := s.m.AssetStatus(p.Name)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Asset    interface{} `json:"asset"`
			Versions interface{} `json:"versions"`
		}{a, versions})

	case "ReloadConfig":
		var p struct {
			RulesDir string `json:"rules_dir"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, badPayload(msg.Command, err)
		}
		return nil, s.m.ReloadConfig(p.RulesDir)

	default:
		return nil, ferrors.Newf(ferrors.KindClientRequest, "assetmgr.Server.dispatch", "unknown command %q", msg.Command)
	}
}

func (s *Server) dispatchBuild(msg *wire.Message, handler func(EditRequest) (types.Ref, error)) ([]byte, error) {
	var req EditRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, badPayload(msg.Command, err)
	}
	ref, err := handler(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(buildPayload{Ref: ref.String()})
}

func badPayload(command string, err error) error {
	return ferrors.Newf(ferrors.KindClientRequest, "assetmgr.Server.dispatch", "malformed %s payload: %v", command, err)
}
