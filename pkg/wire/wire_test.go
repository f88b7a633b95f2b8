package wire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Version: ProtocolVersion, Serial: 42, Length: 3, Kind: KindRequest, Command: "Build"}
	buf, err := marshalHeader(h)
	require.NoError(t, err)
	require.Len(t, buf, HeaderSize)

	got, err := unmarshalHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h.Version, got.Version)
	assert.Equal(t, h.Serial, got.Serial)
	assert.Equal(t, h.Kind, got.Kind)
	assert.Equal(t, h.Command, got.Command)
}

func TestCommandNamePadding(t *testing.T) {
	buf, err := encodeCommand("Build")
	require.NoError(t, err)
	assert.Len(t, buf, commandLen)
	for i := len("Build"); i < commandLen; i++ {
		assert.Equal(t, byte(0), buf[i])
	}
	assert.Equal(t, "Build", decodeCommand(buf))
}

func TestCommandNameTooLong(t *testing.T) {
	_, err := encodeCommand(string(make([]byte, commandLen+1)))
	require.Error(t, err)
}

func TestBadMagicRejected(t *testing.T) {
	buf, err := marshalHeader(Header{Version: ProtocolVersion, Kind: KindRequest, Command: "X"})
	require.NoError(t, err)
	buf[0] = 'Z'
	_, err = unmarshalHeader(buf)
	require.Error(t, err)
}

func TestBadVersionRejected(t *testing.T) {
	buf, err := marshalHeader(Header{Version: 2, Kind: KindRequest, Command: "X"})
	require.NoError(t, err)
	_, err = unmarshalHeader(buf)
	require.Error(t, err)
}

func pipeConns(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var server net.Conn
	accepted := make(chan struct{})
	go func() {
		server, _ = ln.Accept()
		close(accepted)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	<-accepted
	return client, server
}

func TestMessageRoundTripOverSocket(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	cc := NewConn(client)
	sc := NewConn(server)

	go func() {
		msg, err := sc.Receive(time.Second)
		if err != nil {
			return
		}
		_ = sc.SendReply(msg.Header, []byte("pong"), time.Second)
	}()

	reply, err := cc.SendRequest("Ping", []byte("ping"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindReply, reply.Kind)
	assert.Equal(t, "Ping", reply.Command)
	assert.Equal(t, "pong", string(reply.Payload))
}

func TestEmptyPayloadRequestYieldsReply(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	cc := NewConn(client)
	sc := NewConn(server)

	go func() {
		msg, err := sc.Receive(time.Second)
		if err != nil {
			return
		}
		_ = sc.SendReply(msg.Header, nil, time.Second)
	}()

	reply, err := cc.SendRequest("NoOp", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindReply, reply.Kind)
	assert.Empty(t, reply.Payload)
}

func TestHandshakeVersionMismatchSendsExceptionAndReturnsError(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	cc := NewConn(client)
	sc := NewConn(server)

	done := make(chan error, 1)
	go func() {
		done <- ServerHandshake(sc, ClientVersion, time.Second)
	}()

	reply, err := cc.SendRequest(ValidateProtocolVersionCommand, []byte("0.0.0"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindException, reply.Kind)
	assert.Contains(t, string(reply.Payload), "mismatch")

	serverErr := <-done
	require.Error(t, serverErr)
}

func TestHandshakeSuccess(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	cc := NewConn(client)
	sc := NewConn(server)

	done := make(chan error, 1)
	go func() {
		done <- ServerHandshake(sc, ClientVersion, time.Second)
	}()

	require.NoError(t, ClientHandshake(cc, time.Second))
	require.NoError(t, <-done)
}
