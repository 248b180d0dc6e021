package gossip

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// maxDatagram bounds a received PING; about 4600 entries.
const maxDatagram = 64 * 1024

// UDPTransport sends and receives protocol messages as IPv4 datagrams.
type UDPTransport struct {
	conn   *net.UDPConn
	self   Address
	logger *zap.Logger
	wg     sync.WaitGroup
}

// ListenUDP binds to self's host and port.
func ListenUDP(self Address, logger *zap.Logger) (*UDPTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := net.ListenUDP("udp4", self.UDPAddr())
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", self, err)
	}
	return &UDPTransport{conn: conn, self: self, logger: logger}, nil
}

func (t *UDPTransport) Send(from, to Address, payload []byte) error {
	_, err := t.conn.WriteToUDP(payload, to.UDPAddr())
	return err
}

// Serve reads datagrams and hands each to r until Close is called.
func (t *UDPTransport) Serve(r Receiver) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		buf := make([]byte, maxDatagram)
		for {
			n, from, err := t.conn.ReadFromUDP(buf)
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				t.logger.Warn("udp read failed", zap.Error(err))
				continue
			}
			t.logger.Debug("datagram received", zap.Stringer("from", from), zap.Int("bytes", n))
			r.Deliver(buf[:n])
		}
	}()
}

// LocalAddr returns the bound socket address.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Close stops Serve and releases the socket.
func (t *UDPTransport) Close() error {
	err := t.conn.Close()
	t.wg.Wait()
	return err
}
