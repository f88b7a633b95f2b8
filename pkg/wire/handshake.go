package wire

import (
	"fmt"
	"time"

	"github.com/cuemby/fusiond/pkg/ferrors"
)

// ValidateProtocolVersionCommand is the mandatory first request on every
// client-to-server connection (spec §4.1).
const ValidateProtocolVersionCommand = "ValidateProtocolVersion"

// ClientVersion is the version string this implementation presents and
// expects from peers during the handshake.
const ClientVersion = "1.0.0"

// ClientHandshake sends ValidateProtocolVersion and returns an error if the
// server rejects it.
func ClientHandshake(c *Conn, timeout time.Duration) error {
	reply, err := c.SendRequest(ValidateProtocolVersionCommand, []byte(ClientVersion), timeout)
	if err != nil {
		return err
	}
	if reply.Kind == KindException {
		return ferrors.New(ferrors.KindProtocol, "ClientHandshake", fmt.Errorf("%s", string(reply.Payload)))
	}
	return nil
}

// ServerHandshake reads the mandatory first request and validates it,
// sending an Exception and signalling the caller to close the connection
// on mismatch. serverVersion is normally ClientVersion; it is accepted as
// a parameter to make the "version mismatch" path testable.
func ServerHandshake(c *Conn, serverVersion string, timeout time.Duration) error {
	msg, err := c.Receive(timeout)
	if err != nil {
		return err
	}
	if msg.Kind != KindRequest || msg.Command != ValidateProtocolVersionCommand {
		_ = c.SendException(msg.Header, "first message must be ValidateProtocolVersion", timeout)
		return ferrors.Newf(ferrors.KindProtocol, "ServerHandshake", "unexpected first message kind=%s command=%q", msg.Kind, msg.Command)
	}

	clientVersion := string(msg.Payload)
	if clientVersion != serverVersion {
		_ = c.SendException(msg.Header, fmt.Sprintf("client/server mismatch: client=%s server=%s", clientVersion, serverVersion), timeout)
		return ferrors.Newf(ferrors.KindProtocol, "ServerHandshake", "invalid protocol version: client=%s server=%s", clientVersion, serverVersion)
	}

	return c.SendReply(msg.Header, nil, timeout)
}
