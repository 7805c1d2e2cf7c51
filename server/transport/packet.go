// Package transport moves gossip messages between nodes as UDP packets.
//
// Each packet carries a fixed two byte header (packet type and wire
// version) followed by the msgpack encoded message.
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"

	"github.com/ugorji/go/codec"
	"go.uber.org/zap"

	"github.com/swarmnet/swarm/pkg/gossip"
	"github.com/swarmnet/swarm/pkg/log"
)

type packetType uint8

const (
	packetTypeMessage packetType = iota + 1
)

const supportedVersion uint8 = 0

// Receiver accepts messages read off the wire. Implemented by
// gossip.Protocol.
type Receiver interface {
	Receive(m *gossip.Message, fromPeerID string) bool
}

// PacketTransport relays gossip messages over a packet connection.
//
// It implements gossip.Sender for outbound messages, and Serve reads
// inbound packets and feeds them to a Receiver.
type PacketTransport struct {
	conn net.PacketConn

	maxPacketSize int

	logger log.Logger
}

func NewPacketTransport(
	conn net.PacketConn,
	maxPacketSize int,
	logger log.Logger,
) *PacketTransport {
	return &PacketTransport{
		conn:          conn,
		maxPacketSize: maxPacketSize,
		logger:        logger.WithSubsystem("transport"),
	}
}

// Addr returns the local address the transport is bound to.
func (t *PacketTransport) Addr() string {
	return t.conn.LocalAddr().String()
}

// Send encodes the message and writes it to the peer's address.
func (t *PacketTransport) Send(peer gossip.Peer, m *gossip.Message) error {
	var buf bytes.Buffer
	_ = buf.WriteByte(uint8(packetTypeMessage))
	_ = buf.WriteByte(supportedVersion)

	if err := newEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if buf.Len() > t.maxPacketSize {
		return fmt.Errorf(
			"message exceeds max packet size: %d > %d",
			buf.Len(), t.maxPacketSize,
		)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", peer.Addr)
	if err != nil {
		return fmt.Errorf("resolve udp: %s: %w", peer.Addr, err)
	}
	if _, err := t.conn.WriteTo(buf.Bytes(), udpAddr); err != nil {
		return fmt.Errorf("write packet: %s: %w", peer.Addr, err)
	}
	return nil
}

// Serve reads packets until the transport is closed, feeding each decoded
// message to the receiver. Malformed packets are logged and skipped.
func (t *PacketTransport) Serve(receiver Receiver) {
	buf := make([]byte, t.maxPacketSize)
	for {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Warn("failed to read packet", zap.Error(err))
			continue
		}

		if err := t.handlePacket(buf[:n], receiver); err != nil {
			t.logger.Warn(
				"failed to handle packet",
				zap.String("addr", addr.String()),
				zap.Error(err),
			)
		}
	}
}

func (t *PacketTransport) Close() error {
	return t.conn.Close()
}

func (t *PacketTransport) handlePacket(b []byte, receiver Receiver) error {
	if len(b) < 2 {
		return fmt.Errorf("packet too small: %d", len(b))
	}
	if packetType(b[0]) != packetTypeMessage {
		return fmt.Errorf("unsupported packet type: %d", b[0])
	}
	if b[1] != supportedVersion {
		return fmt.Errorf("unsupported version: %d", b[1])
	}

	var m gossip.Message
	if err := newDecoder(bytes.NewReader(b[2:])).Decode(&m); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	receiver.Receive(&m, senderID(&m))
	return nil
}

// senderID attributes the message to the relaying node: the last entry of
// the path is the node that sent the packet (the origin on first hop).
func senderID(m *gossip.Message) string {
	if len(m.Path) > 0 {
		return m.Path[len(m.Path)-1]
	}
	return m.OriginID
}

var _ gossip.Sender = &PacketTransport{}

func newHandle() *codec.MsgpackHandle {
	var handle codec.MsgpackHandle
	// Decode wire strings as strings and generic maps as
	// map[string]interface{} so message content is usable by subscribers.
	handle.RawToString = true
	handle.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return &handle
}

type encoder struct {
	encoder *codec.Encoder
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{
		encoder: codec.NewEncoder(w, newHandle()),
	}
}

func (e *encoder) Encode(v interface{}) error {
	return e.encoder.Encode(v)
}

type decoder struct {
	decoder *codec.Decoder
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{
		decoder: codec.NewDecoder(r, newHandle()),
	}
}

func (d *decoder) Decode(v interface{}) error {
	return d.decoder.Decode(v)
}
