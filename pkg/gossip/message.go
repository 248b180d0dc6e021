package gossip

// Wire protocol: a one byte type tag followed by a type specific payload.
// All integers are little-endian. JOINREQ and JOINREP carry the sender's
// address and heartbeat; PING carries a whole membership table as a
// concatenation of fixed-size entries with no count prefix.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// AddrSize is the encoded size of an Address: 4 host bytes and a 2 byte port.
const AddrSize = 6

// EntrySize is the encoded size of one membership entry.
const EntrySize = AddrSize + 8

// HeartbeatDead marks an entry believed failed but kept for propagation.
const HeartbeatDead int64 = -1

var (
	ErrShortMessage = errors.New("gossip: message too short")
	ErrUnknownType  = errors.New("gossip: unknown message type")
	ErrBadPayload   = errors.New("gossip: malformed payload")
)

// Address identifies a node. The first four bytes are the host (an IPv4
// address for UDP deployments) and the last two the port, little-endian.
// Addresses compare by value and are usable as map keys.
type Address [AddrSize]byte

// NewAddress builds an address from host octets and a port.
func NewAddress(host [4]byte, port uint16) Address {
	var a Address
	copy(a[:4], host[:])
	binary.LittleEndian.PutUint16(a[4:], port)
	return a
}

// NewAddressID builds an address from a numeric host id, laid out
// little-endian, the way simulated nodes are numbered.
func NewAddressID(id uint32, port uint16) Address {
	var host [4]byte
	binary.LittleEndian.PutUint32(host[:], id)
	return NewAddress(host, port)
}

func (a Address) Host() [4]byte {
	var h [4]byte
	copy(h[:], a[:4])
	return h
}

func (a Address) ID() uint32 { return binary.LittleEndian.Uint32(a[:4]) }

func (a Address) Port() uint16 { return binary.LittleEndian.Uint16(a[4:]) }

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a[0], a[1], a[2], a[3], a.Port())
}

// UDPAddr converts the address to a dialable IPv4 UDP address.
func (a Address) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(a[0], a[1], a[2], a[3]), Port: int(a.Port())}
}

// AddressFromUDP converts an IPv4 UDP address. IPv6 addresses are rejected.
func AddressFromUDP(u *net.UDPAddr) (Address, error) {
	ip4 := u.IP.To4()
	if ip4 == nil {
		return Address{}, fmt.Errorf("gossip: %s is not an IPv4 address", u.IP)
	}
	if u.Port < 0 || u.Port > 0xffff {
		return Address{}, fmt.Errorf("gossip: port %d out of range", u.Port)
	}
	return NewAddress([4]byte{ip4[0], ip4[1], ip4[2], ip4[3]}, uint16(u.Port)), nil
}

// ParseAddress parses "a.b.c.d:port". Host names are resolved to IPv4.
func ParseAddress(hostport string) (Address, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Address{}, fmt.Errorf("gossip: parse %q: %w", hostport, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("gossip: parse port %q: %w", portStr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil {
			return Address{}, fmt.Errorf("gossip: resolve %q: %w", host, err)
		}
		for _, candidate := range ips {
			if candidate.To4() != nil {
				ip = candidate
				break
			}
		}
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return Address{}, fmt.Errorf("gossip: %q has no IPv4 address", host)
	}
	return NewAddress([4]byte{ip4[0], ip4[1], ip4[2], ip4[3]}, uint16(port)), nil
}

type MsgType uint8

const (
	MsgJoinReq MsgType = iota
	MsgJoinRep
	MsgPing
)

func (t MsgType) String() string {
	switch t {
	case MsgJoinReq:
		return "JOINREQ"
	case MsgJoinRep:
		return "JOINREP"
	case MsgPing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// Message is a decoded wire message. Join messages use Addr and Heartbeat;
// PING uses Entries, stamped with the local receive time.
type Message struct {
	Type      MsgType
	Addr      Address
	Heartbeat int64
	Entries   []Entry
}

// AppendEntry appends the 14 byte encoding of one entry to buf.
func AppendEntry(buf []byte, addr Address, heartbeat int64) []byte {
	buf = append(buf, addr[:]...)
	return binary.LittleEndian.AppendUint64(buf, uint64(heartbeat))
}

// EncodeEntries serializes entries back to back. An empty table yields an
// empty payload.
func EncodeEntries(entries []Entry) []byte {
	buf := make([]byte, 0, len(entries)*EntrySize)
	for _, e := range entries {
		buf = AppendEntry(buf, e.Addr, e.Heartbeat)
	}
	return buf
}

// DecodeEntries is the inverse of EncodeEntries. LastUpdate is stamped with
// now; remote clocks are never trusted. A payload that is not a whole number
// of entries, or holds an entry with a zero address or a heartbeat below
// HeartbeatDead, is rejected as a unit.
func DecodeEntries(payload []byte, now int64) ([]Entry, error) {
	if len(payload)%EntrySize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrBadPayload, len(payload), EntrySize)
	}
	entries := make([]Entry, 0, len(payload)/EntrySize)
	for off := 0; off < len(payload); off += EntrySize {
		var addr Address
		copy(addr[:], payload[off:off+AddrSize])
		hb := int64(binary.LittleEndian.Uint64(payload[off+AddrSize : off+EntrySize]))
		if addr.IsZero() {
			return nil, fmt.Errorf("%w: entry %d has zero address", ErrBadPayload, off/EntrySize)
		}
		if hb < HeartbeatDead {
			return nil, fmt.Errorf("%w: entry %d has heartbeat %d", ErrBadPayload, off/EntrySize, hb)
		}
		entries = append(entries, Entry{Addr: addr, Heartbeat: hb, LastUpdate: now})
	}
	return entries, nil
}

// EncodeJoin builds a JOINREQ or JOINREP carrying the sender's own address
// and heartbeat.
func EncodeJoin(t MsgType, addr Address, heartbeat int64) []byte {
	buf := make([]byte, 0, 1+EntrySize)
	buf = append(buf, byte(t))
	return AppendEntry(buf, addr, heartbeat)
}

// EncodePing builds a PING carrying the full table.
func EncodePing(entries []Entry) []byte {
	buf := make([]byte, 0, 1+len(entries)*EntrySize)
	buf = append(buf, byte(MsgPing))
	for _, e := range entries {
		buf = AppendEntry(buf, e.Addr, e.Heartbeat)
	}
	return buf
}

// Decode parses one wire message. now stamps decoded PING entries.
func Decode(data []byte, now int64) (Message, error) {
	if len(data) < 1 {
		return Message{}, ErrShortMessage
	}
	msg := Message{Type: MsgType(data[0])}
	payload := data[1:]

	switch msg.Type {
	case MsgJoinReq, MsgJoinRep:
		if len(payload) != EntrySize {
			return Message{}, fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrBadPayload, msg.Type, len(payload), EntrySize)
		}
		copy(msg.Addr[:], payload[:AddrSize])
		msg.Heartbeat = int64(binary.LittleEndian.Uint64(payload[AddrSize:]))
		if msg.Addr.IsZero() {
			return Message{}, fmt.Errorf("%w: %s from zero address", ErrBadPayload, msg.Type)
		}
		// the sender of a join is alive by definition
		if msg.Heartbeat < 0 {
			return Message{}, fmt.Errorf("%w: %s with heartbeat %d", ErrBadPayload, msg.Type, msg.Heartbeat)
		}
	case MsgPing:
		entries, err := DecodeEntries(payload, now)
		if err != nil {
			return Message{}, err
		}
		msg.Entries = entries
	default:
		return Message{}, fmt.Errorf("%w: tag %d", ErrUnknownType, data[0])
	}
	return msg, nil
}
