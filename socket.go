package compoundpi

import (
	"fmt"
	"net"
	"time"

	"github.com/higebu/netfd"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Socket wraps the single UDP control connection either side of the
// protocol uses (§5, "All UDP I/O on the client goes through one socket").
// It satisfies Sender so Repeaters can transmit through it directly.
type Socket struct {
	conn   *net.UDPConn
	logger *log.Entry
}

// NewSocket binds a UDP socket at laddr and enables SO_BROADCAST on it, so
// the client side can fan commands out to a subnet broadcast address
// (§6, "UDP control channel"). Server sockets don't need to send broadcast
// datagrams but enabling the option is harmless.
func NewSocket(laddr *net.UDPAddr) (*Socket, error) {
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", laddr, err)
	}
	if err := enableBroadcast(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable broadcast on %s: %w", laddr, err)
	}
	return &Socket{conn: conn, logger: log.WithField("component", "socket")}, nil
}

// enableBroadcast sets SO_BROADCAST on the connection's underlying file
// descriptor. Go's net package does not do this for us: sending to a
// broadcast address without it fails with EACCES on Linux.
func enableBroadcast(conn *net.UDPConn) error {
	fd := netfd.GetFdFromConn(conn)
	if fd < 0 {
		return fmt.Errorf("could not recover file descriptor from udp connection")
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
}

// SendTo implements Sender by writing one datagram to addr.
func (s *Socket) SendTo(addr *net.UDPAddr, payload []byte) error {
	_, err := s.conn.WriteToUDP(payload, addr)
	return err
}

// ReadFrom reads one datagram into buf, honoring whatever read deadline was
// last set with SetReadTimeout. Timeouts surface as a *net.OpError
// satisfying net.Error.Timeout(), as documented by net.Conn.
func (s *Socket) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	return s.conn.ReadFromUDP(buf)
}

// SetReadTimeout arms a deadline for the next ReadFrom call. The client's
// receive loop re-arms this on a 1s tick before every read until the engine
// is closed (§5, "Suspension points").
func (s *Socket) SetReadTimeout(d time.Duration) error {
	return s.conn.SetReadDeadline(time.Now().Add(d))
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the underlying connection.
func (s *Socket) Close() error {
	return s.conn.Close()
}
