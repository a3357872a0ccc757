package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// DefaultConnectTimeout is the default deadline for an initiator's dial.
const DefaultConnectTimeout = 10 * time.Second

// streamInitMarker is written by the initiator immediately after opening
// the stream so the responder's AcceptStream returns promptly instead of
// blocking until the first real frame.
const streamInitMarker = 0x01

// QUICListener accepts inbound QUIC connections and hands back one
// QUICTransport per accepted connection.
type QUICListener struct {
	ln *quic.Listener
}

// ListenQUIC binds a QUIC listener on addr using a self-signed transport
// certificate (peer authentication is the crypto session's job, not
// TLS's).
func ListenQUIC(addr string, certValidity time.Duration) (*QUICListener, string, error) {
	tlsConf, fingerprint, err := generateSelfSignedTLSConfig(certValidity)
	if err != nil {
		return nil, "", err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{EnableDatagrams: false})
	if err != nil {
		return nil, "", fmt.Errorf("transport: quic listen: %w", err)
	}
	return &QUICListener{ln: ln}, fingerprint, nil
}

// Accept blocks until a connection arrives, accepts the single
// bidirectional stream the initiator opened, and returns a
// QUICTransport for it.
func (l *QUICListener) Accept(ctx context.Context, peerID string) (*QUICTransport, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, &IOError{Err: err}
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, &IOError{Err: err}
	}
	// Drain the initiator's single-byte stream-init marker.
	var marker [1]byte
	if _, err := io.ReadFull(stream, marker[:]); err != nil {
		return nil, &IOError{Err: err}
	}
	return newQUICTransport(conn, stream, peerID), nil
}

func (l *QUICListener) Close() error { return l.ln.Close() }

// QUICTransport is one bidirectional stream on a single QUIC connection.
type QUICTransport struct {
	conn   *quic.Conn
	stream *quic.Stream
	peer   string

	writeMu sync.Mutex
	closed  bool
	mu      sync.RWMutex
}

func newQUICTransport(conn *quic.Conn, stream *quic.Stream, peer string) *QUICTransport {
	return &QUICTransport{conn: conn, stream: stream, peer: peer}
}

// DialQUIC connects to addr as the initiator within timeout, opens the
// single stream, and writes the stream-init marker.
func DialQUIC(ctx context.Context, addr string, peer string, timeout time.Duration) (*QUICTransport, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tlsConf := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"termchat-p2p"}}
	conn, err := quic.DialAddr(dialCtx, addr, tlsConf, &quic.Config{EnableDatagrams: false})
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, &TimeoutError{Op: "quic dial"}
		}
		return nil, &IOError{Err: err}
	}

	stream, err := conn.OpenStreamSync(dialCtx)
	if err != nil {
		return nil, &IOError{Err: err}
	}
	if _, err := stream.Write([]byte{streamInitMarker}); err != nil {
		return nil, &IOError{Err: err}
	}
	return newQUICTransport(conn, stream, peer), nil
}

func (t *QUICTransport) Send(ctx context.Context, peer string, payload []byte) error {
	if len(payload) > MaxPayloadBytes {
		return &IOError{Err: fmt.Errorf("payload of %d bytes exceeds max %d", len(payload), MaxPayloadBytes)}
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.isClosed() {
		return &ConnectionClosedError{}
	}

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := t.stream.Write(hdr[:]); err != nil {
		return &IOError{Err: err}
	}
	if _, err := t.stream.Write(payload); err != nil {
		return &IOError{Err: err}
	}
	return nil
}

// Recv reads one length-prefixed frame. It does not observe ctx: it
// blocks until a full frame arrives or the stream fails.
func (t *QUICTransport) Recv(ctx context.Context) (Message, error) {
	if t.isClosed() {
		return Message{}, &ConnectionClosedError{}
	}
	var hdr [4]byte
	if _, err := io.ReadFull(t.stream, hdr[:]); err != nil {
		t.markClosed()
		return Message{}, &ConnectionClosedError{}
	}
	length := binary.LittleEndian.Uint32(hdr[:])
	if length > MaxPayloadBytes {
		return Message{}, &IOError{Err: fmt.Errorf("peer %s sent oversized frame (%d bytes)", t.peer, length)}
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(t.stream, payload); err != nil {
		t.markClosed()
		return Message{}, &ConnectionClosedError{}
	}
	return Message{Peer: t.peer, Payload: payload}, nil
}

func (t *QUICTransport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *QUICTransport) markClosed() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *QUICTransport) Close() error {
	t.markClosed()
	_ = t.stream.Close()
	return t.conn.CloseWithError(0, "closed")
}

func (t *QUICTransport) IsConnected() bool { return !t.isClosed() }
func (t *QUICTransport) Type() Type        { return TypeP2P }

var _ Transport = (*QUICTransport)(nil)
