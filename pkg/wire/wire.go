// Package wire implements the fixed-header request/reply/notify/register/
// exception framing protocol spoken between the asset manager, the resource
// manager, resource providers, and client tools. See spec §4.1.
//
// Every message on the wire is a 72-byte header in network byte order
// followed by a variable-length payload:
//
//	magic[28]        "Keyhole Fusion Wire Protocol" (no terminator)
//	version  uint8    protocol version, currently 1
//	serial   uint32   message serial number
//	length   uint32   payload length in bytes
//	kind     uint8    Invalid|Register|Notify|Request|Reply|Exception
//	command[32]       ASCII command name, zero-padded
//	reserved[2]       must be zero
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/cuemby/fusiond/pkg/ferrors"
)

// Magic is the exact, terminator-free protocol magic string.
const Magic = "Keyhole Fusion Wire Protocol"

// ProtocolVersion is the only version this implementation speaks.
const ProtocolVersion uint8 = 1

const (
	magicLen   = 28
	commandLen = 32
	// HeaderSize is the fixed on-wire header length: 28+1+4+4+1+32+2.
	HeaderSize = magicLen + 1 + 4 + 4 + 1 + commandLen + 2
)

func init() {
	if len(Magic) != magicLen {
		panic(fmt.Sprintf("wire: magic string must be %d bytes, got %d", magicLen, len(Magic)))
	}
}

// Kind identifies the semantic role of a message.
type Kind uint8

const (
	KindInvalid   Kind = 0
	KindRegister  Kind = 1
	KindNotify    Kind = 2
	KindRequest   Kind = 3
	KindReply     Kind = 4
	KindException Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "Register"
	case KindNotify:
		return "Notify"
	case KindRequest:
		return "Request"
	case KindReply:
		return "Reply"
	case KindException:
		return "Exception"
	default:
		return "Invalid"
	}
}

// Header is the fixed 72-byte frame prefix.
type Header struct {
	Version uint8
	Serial  uint32
	Length  uint32
	Kind    Kind
	Command string
}

// Message is a fully decoded wire message: header plus payload bytes.
type Message struct {
	Header
	Payload []byte
}

// encodeCommand pads/truncates a command name into the fixed-width field.
func encodeCommand(name string) ([commandLen]byte, error) {
	var buf [commandLen]byte
	if len(name) > commandLen {
		return buf, ferrors.Newf(ferrors.KindProtocol, "encodeCommand", "command name %q exceeds %d bytes", name, commandLen)
	}
	copy(buf[:], name)
	return buf, nil
}

func decodeCommand(buf [commandLen]byte) string {
	i := bytes.IndexByte(buf[:], 0)
	if i < 0 {
		return string(buf[:])
	}
	return string(buf[:i])
}

// marshalHeader serialises h into a 72-byte frame prefix.
func marshalHeader(h Header) ([]byte, error) {
	cmd, err := encodeCommand(h.Command)
	if err != nil {
		return nil, err
	}

	out := make([]byte, HeaderSize)
	off := 0
	copy(out[off:off+magicLen], Magic)
	off += magicLen
	out[off] = h.Version
	off++
	binary.BigEndian.PutUint32(out[off:], h.Serial)
	off += 4
	binary.BigEndian.PutUint32(out[off:], h.Length)
	off += 4
	out[off] = byte(h.Kind)
	off++
	copy(out[off:off+commandLen], cmd[:])
	off += commandLen
	// two reserved bytes, already zero
	return out, nil
}

// unmarshalHeader validates and decodes a 72-byte frame prefix.
func unmarshalHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) != HeaderSize {
		return h, ferrors.Newf(ferrors.KindProtocol, "unmarshalHeader", "short header: %d bytes", len(buf))
	}

	off := 0
	magic := string(buf[off : off+magicLen])
	off += magicLen
	if magic != Magic {
		return h, ferrors.Newf(ferrors.KindProtocol, "unmarshalHeader", "bad magic %q", magic)
	}

	h.Version = buf[off]
	off++
	if h.Version != ProtocolVersion {
		return h, ferrors.Newf(ferrors.KindProtocol, "unmarshalHeader", "unsupported protocol version %d", h.Version)
	}

	h.Serial = binary.BigEndian.Uint32(buf[off:])
	off += 4
	h.Length = binary.BigEndian.Uint32(buf[off:])
	off += 4
	h.Kind = Kind(buf[off])
	off++

	var cmdBuf [commandLen]byte
	copy(cmdBuf[:], buf[off:off+commandLen])
	h.Command = decodeCommand(cmdBuf)
	off += commandLen

	reserved := buf[off : off+2]
	if reserved[0] != 0 || reserved[1] != 0 {
		return h, ferrors.New(ferrors.KindProtocol, "unmarshalHeader", fmt.Errorf("non-zero reserved bytes"))
	}

	return h, nil
}

// deadlineConn is satisfied by net.Conn; kept narrow for testability.
type deadlineConn interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// ReadMessage reads one complete message, applying timeout if non-zero.
// It returns a *ferrors.Error of KindProtocol on any framing failure.
func ReadMessage(conn deadlineConn, timeout time.Duration) (*Message, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, ferrors.New(ferrors.KindProtocol, "ReadMessage", err)
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	hdrBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(conn, hdrBuf); err != nil {
		return nil, ferrors.New(ferrors.KindProtocol, "ReadMessage.header", err)
	}

	hdr, err := unmarshalHeader(hdrBuf)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, hdr.Length)
	if hdr.Length > 0 {
		if _, err := io.ReadFull(conn, payload); err != nil {
			return nil, ferrors.New(ferrors.KindProtocol, "ReadMessage.payload", err)
		}
	}

	return &Message{Header: hdr, Payload: payload}, nil
}

// WriteMessage serialises header+payload and writes them in one call. It
// sets no write deadline; WriteMessageTimeout adds one.
func WriteMessage(conn deadlineConn, msg *Message) error {
	msg.Length = uint32(len(msg.Payload))
	msg.Version = ProtocolVersion

	hdrBuf, err := marshalHeader(msg.Header)
	if err != nil {
		return err
	}

	frame := make([]byte, 0, len(hdrBuf)+len(msg.Payload))
	frame = append(frame, hdrBuf...)
	frame = append(frame, msg.Payload...)

	if _, err := conn.Write(frame); err != nil {
		return ferrors.New(ferrors.KindProtocol, "WriteMessage", err)
	}
	return nil
}

// WriteMessageTimeout is WriteMessage with a send deadline.
func WriteMessageTimeout(conn deadlineConn, msg *Message, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return ferrors.New(ferrors.KindProtocol, "WriteMessageTimeout", err)
		}
		defer conn.SetWriteDeadline(time.Time{})
	}
	return WriteMessage(conn, msg)
}
