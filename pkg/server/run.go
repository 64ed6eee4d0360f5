package server

import (
	"context"
	"errors"
	"net"
	"time"
)

// maxDatagram matches the wire budget §6 documents for control packets.
const maxDatagram = 1500

// readPollInterval bounds how long a single blocking read waits before
// Run rechecks ctx, mirroring the client's 1s recv poll tick (§5,
// "Suspension points").
const readPollInterval = time.Second

// Run reads datagrams from the dispatcher's socket and feeds them through
// Handle until ctx is cancelled. It is the server's single dispatcher
// goroutine (§5, "the server is single-threaded in its command
// dispatcher").
func (d *Dispatcher) Run(ctx context.Context) error {
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := d.socket.SetReadTimeout(readPollInterval); err != nil {
			return err
		}
		n, from, err := d.socket.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		d.Handle(ctx, datagram, from)
	}
}
