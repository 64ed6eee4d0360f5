package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"github.com/waveform-computing/compoundpi"
)

// downloadDeadline is the "tens of seconds scale" timeout §5 calls for on
// the download path, distinct from the UDP request timeout.
const downloadDeadline = 30 * time.Second

// Listener is the client's TCP download transport (§4.7). Only one
// download is in flight at a time; callers serialize through Download.
type Listener struct {
	ln     net.Listener
	logger *log.Entry

	mu               sync.Mutex
	expectedSource   net.IP
	writer           io.Writer
	resultErr        error
	bytesTransferred int64
	done             chan struct{}
	warn             WarnFunc
}

// NewListener binds a TCP listener at bindAddr and starts accepting
// connections in the background.
func NewListener(bindAddr string) (*Listener, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", bindAddr, err)
	}
	l := &Listener{ln: ln, logger: log.WithField("component", "download")}
	go l.acceptLoop()
	return l, nil
}

// Port reports the TCP port the listener bound, useful when bindAddr used
// port 0.
func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}
		go l.handleConn(conn)
	}
}

// handleConn implements §4.7's connection handler: read a 4-byte
// little-endian length, then exactly that many bytes, then close.
func (l *Listener) handleConn(conn net.Conn) {
	defer conn.Close()

	l.mu.Lock()
	expected := l.expectedSource
	writer := l.writer
	warn := l.warn
	l.mu.Unlock()

	remoteIP := conn.RemoteAddr().(*net.TCPAddr).IP
	if writer == nil {
		l.logger.WithField("addr", remoteIP).Warn("download: connection with no pending request")
		return
	}
	if expected != nil && !remoteIP.Equal(expected) {
		// A connection from an address other than the one we asked to send
		// is discarded, not a transfer failure: the real sender may still
		// connect before the deadline (§4.7, §8 scenario 6).
		l.logger.WithFields(log.Fields{"addr": remoteIP, "expected": expected}).Warn("download: connection from unexpected source")
		if warn != nil {
			warn(remoteIP, compoundpi.WarnUnknownAddress)
		}
		return
	}

	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		l.finish(fmt.Errorf("send: read length prefix: %w", err), 0)
		return
	}
	length := binary.LittleEndian.Uint32(header[:])

	n, err := io.CopyN(writer, conn, int64(length))
	if err != nil || uint32(n) != length {
		l.finish(fmt.Errorf("%w: got %d of %d bytes", compoundpi.ErrSendTruncated, n, length), n)
		return
	}
	l.finish(nil, n)
}

func (l *Listener) finish(err error, bytesTransferred int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		return
	}
	l.resultErr = err
	l.bytesTransferred = bytesTransferred
	close(l.done)
	l.done = nil
	l.writer = nil
	l.expectedSource = nil
	l.warn = nil
}

// Download retrieves file index from addr via engine and writes it to w.
// It drives §4.7's sequence: arm the listener, issue SEND, wait for the
// completion event or time out.
func (e *Engine) Download(ctx context.Context, listener *Listener, addr net.IP, index int, w io.Writer) error {
	session := xid.New().String()
	logger := e.logger.WithFields(log.Fields{"download": session, "addr": addr, "index": index})

	done := make(chan struct{})
	listener.mu.Lock()
	listener.expectedSource = addr
	listener.writer = w
	listener.resultErr = nil
	listener.bytesTransferred = 0
	listener.done = done
	listener.warn = e.warn
	listener.mu.Unlock()

	if err := e.sendTo(ctx, addr, index, listener.Port()); err != nil {
		listener.mu.Lock()
		listener.done = nil
		listener.writer = nil
		listener.expectedSource = nil
		listener.warn = nil
		listener.mu.Unlock()
		logger.WithField("error", err).Debug("download: SEND request failed")
		return err
	}

	select {
	case <-done:
	case <-time.After(downloadDeadline):
		return compoundpi.ErrSendTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	listener.mu.Lock()
	err := listener.resultErr
	transferred := listener.bytesTransferred
	listener.mu.Unlock()

	if err != nil {
		logger.WithField("error", err).Debug("download: transfer failed")
		return err
	}
	if e.metrics != nil {
		e.metrics.DownloadBytesTotal.Add(float64(transferred))
	}
	logger.WithField("bytes", transferred).Debug("download: transfer complete")
	return nil
}

func (e *Engine) sendTo(ctx context.Context, addr net.IP, index, port int) error {
	_, err := e.transact(ctx, "SEND", []net.IP{addr}, strconv.Itoa(index), strconv.Itoa(port))
	return err
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}
