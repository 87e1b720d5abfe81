// Package session drives one end-to-end transfer: connecting or accepting,
// running the password handshake, negotiating the transfer request, and
// spawning and joining the pipeline stages that stream the files.
package session

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/nimbusio/beam/internal/cryptoengine"
	"github.com/nimbusio/beam/internal/xerrors"
)

// tracer produces the spans wrapping each session phase. It resolves
// against whatever TracerProvider observability.InitTracing installed; if
// that was never called, otel's default no-op provider makes every span a
// harmless stub.
var tracer = otel.Tracer("github.com/nimbusio/beam/internal/session")

// traceStep runs fn inside a child span named name, recording and
// propagating any error fn returns.
func traceStep(ctx context.Context, name string, fn func() error) error {
	_, span := tracer.Start(ctx, name)
	defer span.End()
	if err := fn(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// QueueCapacity bounds every pipeline queue in a session; 50 in-flight
// chunks lets the read/encrypt/send stages run ahead of a slow network
// without unbounded memory growth.
const QueueCapacity = 50

// HandshakeTimeout is a bound for the initial key-exchange phase of a
// session. Sender and Receiver do not apply it: no read deadline is set on
// the connection, so a peer that stops sending mid-handshake blocks the
// session until the connection is closed.
const HandshakeTimeout = 10 * time.Second

const ackOK = 1
const ackFail = 0
const acceptYes = 1
const acceptNo = 0

// handshakeTagLen is the length of the fixed ASCII tag sealed during the
// handshake; ciphertext is always this many bytes plus AEAD overhead.
const handshakeTagLen = len("trit_bonjour")

// State names the sender/receiver session lifecycle.
type State int

const (
	StateInit State = iota
	StateConnected
	StateHandshaken
	StateNegotiated
	StateStreaming
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnected:
		return "connected"
	case StateHandshaken:
		return "handshaken"
	case StateNegotiated:
		return "negotiated"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress reports pipeline counters so an external collaborator (a
// progress bar, a log line) can poll transfer status without touching the
// pipeline internals.
type Progress struct {
	NumChunks uint32
	Count     func() uint32
}

func readHandshakePrelude(conn net.Conn) (cryptoengine.Salt, cryptoengine.Nonce, []byte, cryptoengine.Header, error) {
	var salt cryptoengine.Salt
	var nonce cryptoengine.Nonce
	var header cryptoengine.Header

	if _, err := io.ReadFull(conn, salt[:]); err != nil {
		return salt, nonce, nil, header, xerrors.NewNet(xerrors.Disconnected, err)
	}
	if _, err := io.ReadFull(conn, nonce[:]); err != nil {
		return salt, nonce, nil, header, xerrors.NewNet(xerrors.Disconnected, err)
	}
	ciphertext := make([]byte, handshakeTagLen+cryptoengine.Overhead)
	if _, err := io.ReadFull(conn, ciphertext); err != nil {
		return salt, nonce, nil, header, xerrors.NewNet(xerrors.Disconnected, err)
	}
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return salt, nonce, nil, header, xerrors.NewNet(xerrors.Disconnected, err)
	}
	return salt, nonce, ciphertext, header, nil
}

func writeHandshakePrelude(conn net.Conn, salt cryptoengine.Salt, nonce cryptoengine.Nonce, ciphertext []byte, header cryptoengine.Header) error {
	if _, err := conn.Write(salt[:]); err != nil {
		return xerrors.NewNet(xerrors.Disconnected, err)
	}
	if _, err := conn.Write(nonce[:]); err != nil {
		return xerrors.NewNet(xerrors.Disconnected, err)
	}
	if _, err := conn.Write(ciphertext); err != nil {
		return xerrors.NewNet(xerrors.Disconnected, err)
	}
	if _, err := conn.Write(header[:]); err != nil {
		return xerrors.NewNet(xerrors.Disconnected, err)
	}
	return nil
}

func writeAck(conn net.Conn, ok bool) error {
	v := uint8(ackFail)
	if ok {
		v = ackOK
	}
	if err := binary.Write(conn, binary.LittleEndian, v); err != nil {
		return xerrors.NewNet(xerrors.Disconnected, err)
	}
	return nil
}

func readAck(conn net.Conn) (bool, error) {
	var v uint8
	if err := binary.Read(conn, binary.LittleEndian, &v); err != nil {
		return false, xerrors.NewNet(xerrors.Disconnected, err)
	}
	return v == ackOK, nil
}

func writeAccept(conn net.Conn, accept bool) error {
	v := uint8(acceptNo)
	if accept {
		v = acceptYes
	}
	if err := binary.Write(conn, binary.LittleEndian, v); err != nil {
		return xerrors.NewNet(xerrors.Disconnected, err)
	}
	return nil
}

func readAccept(conn net.Conn) (bool, error) {
	var v uint8
	if err := binary.Read(conn, binary.LittleEndian, &v); err != nil {
		return false, xerrors.NewNet(xerrors.Disconnected, err)
	}
	return v == acceptYes, nil
}

func newSessionID() string {
	return uuid.NewString()
}
