// Package client implements the Compound Pi client transaction engine: the
// server registry, the broadcast/unicast transact primitive responses are
// correlated through, typed command wrappers, and the TCP download
// transport's client side (§4.6, §4.7).
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/waveform-computing/compoundpi"
	"github.com/waveform-computing/compoundpi/internal/metrics"
)

const maxDatagram = 1500

// recvPollInterval bounds how long the receive loop's blocking read waits
// before it rechecks for shutdown, mirroring the "1s tick" the design notes
// describe for suspension points.
const recvPollInterval = time.Second

// ackDeadline is the short, fire-and-forget lifetime given to the ACK
// Repeater a completed transaction round sends to each responder (§4.6
// step 6): long enough to beat a little packet loss, short enough not to
// linger.
const ackDeadline = 1 * time.Second

// socketIO is the subset of *compoundpi.Socket the engine needs. Narrowing
// it to an interface lets tests substitute an in-memory transport instead
// of binding real UDP ports.
type socketIO interface {
	compoundpi.Sender
	ReadFrom(buf []byte) (int, *net.UDPAddr, error)
	SetReadTimeout(d time.Duration) error
}

// roundResult is one address's outcome within a pendingTxn.
type roundResult struct {
	data string
	err  error
}

// pendingTxn is the one in-flight round the receive loop is allowed to
// deliver datagrams to. The engine issues commands serially, so there is
// never more than one (§4.6, §5 "transaction state is per-call").
type pendingTxn struct {
	mu      sync.Mutex
	seqno   uint32
	open    bool // true for Find, where targets are discovered as responses arrive
	targets map[string]net.IP
	results map[string]roundResult
	done    chan struct{}
	closed  bool
}

// WarnFunc receives non-fatal per-packet warnings (§7, "Warnings as a
// side-channel"). It must be safe to call from the engine's receive loop.
type WarnFunc func(addr net.IP, w compoundpi.Warning)

// Engine is the client transaction engine: one UDP socket, one receive
// loop, a server registry, and the seqno counter driving every command it
// issues.
type Engine struct {
	socket     socketIO
	network    *net.IPNet
	serverPort int

	requestTimeout time.Duration
	retryInterval  time.Duration

	warnSink WarnFunc
	metrics  *metrics.Registry
	logger   *log.Entry
	clock    func() time.Time

	mu       sync.Mutex
	registry []net.IP
	nextSeqno uint32
	current  *pendingTxn

	closeOnce sync.Once
	stopCh    chan struct{}
}

// Option customizes an Engine away from its defaults.
type Option func(*Engine)

func WithRequestTimeout(d time.Duration) Option { return func(e *Engine) { e.requestTimeout = d } }
func WithRetryInterval(d time.Duration) Option  { return func(e *Engine) { e.retryInterval = d } }
func WithWarnSink(f WarnFunc) Option            { return func(e *Engine) { e.warnSink = f } }
func WithMetrics(reg *metrics.Registry) Option  { return func(e *Engine) { e.metrics = reg } }
func WithClock(clock func() time.Time) Option   { return func(e *Engine) { e.clock = clock } }

// NewEngine constructs an Engine bound to socket, targeting servers on
// network at serverPort, and starts its receive loop.
func NewEngine(socket socketIO, network *net.IPNet, serverPort int, opts ...Option) *Engine {
	e := &Engine{
		socket:         socket,
		network:        network,
		serverPort:     serverPort,
		requestTimeout: compoundpi.DefaultRepeatDeadline,
		retryInterval:  compoundpi.DefaultRepeatInterval,
		logger:         log.WithField("component", "engine"),
		clock:          time.Now,
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.receiveLoop()
	return e
}

// Close stops the receive loop. It does not close the underlying socket;
// the caller owns that.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.stopCh) })
}

func (e *Engine) receiveLoop() {
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}
		if err := e.socket.SetReadTimeout(recvPollInterval); err != nil {
			return
		}
		n, from, err := e.socket.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if ne, ok := err.(net.Error); ok {
				netErr = ne
			}
			if netErr != nil && netErr.Timeout() {
				continue
			}
			return
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		e.handleDatagram(datagram, from)
	}
}

func (e *Engine) handleDatagram(data []byte, from *net.UDPAddr) {
	e.mu.Lock()
	txn := e.current
	network := e.network
	e.mu.Unlock()
	if txn == nil {
		return
	}

	resp, err := compoundpi.DecodeResponse(data)
	if err != nil {
		e.warn(from.IP, compoundpi.WarnBadResponse)
		return
	}
	if from.Port != e.serverPort {
		e.warn(from.IP, compoundpi.WarnWrongPort)
		return
	}

	key := from.IP.String()
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if txn.closed {
		return
	}

	if txn.open {
		if !network.Contains(from.IP) {
			e.warn(from.IP, compoundpi.WarnUnknownAddress)
			return
		}
		if _, seen := txn.targets[key]; !seen {
			txn.targets[key] = from.IP
		}
	} else if _, targeted := txn.targets[key]; !targeted {
		e.warn(from.IP, compoundpi.WarnUnknownAddress)
		return
	}

	switch {
	case resp.Seqno < txn.seqno:
		e.warn(from.IP, compoundpi.WarnStaleResponse)
		return
	case resp.Seqno > txn.seqno:
		e.warn(from.IP, compoundpi.WarnFutureResponse)
		return
	}
	if _, already := txn.results[key]; already {
		e.warn(from.IP, compoundpi.WarnMultiResponse)
		return
	}

	if resp.OK {
		txn.results[key] = roundResult{data: resp.Data}
	} else {
		txn.results[key] = roundResult{err: &compoundpi.PeerError{Addr: from.IP, Kind: compoundpi.PeerServerError, Message: resp.Data}}
	}
	if !txn.open && len(txn.results) == len(txn.targets) {
		txn.closed = true
		close(txn.done)
	}
}

func (e *Engine) warn(addr net.IP, w compoundpi.Warning) {
	if e.warnSink != nil {
		e.warnSink(addr, w)
	}
	if e.metrics != nil {
		e.metrics.WarningsTotal.WithLabelValues(w.String()).Inc()
	}
	e.logger.WithFields(log.Fields{"addr": addr, "warning": w}).Debug("warning")
}

func (e *Engine) contains(addr net.IP) bool {
	for _, a := range e.registry {
		if a.Equal(addr) {
			return true
		}
	}
	return false
}

// broadcastAddr computes the subnet broadcast address of network (§3,
// "the broadcast address of that network is reserved for fan-out").
func broadcastAddr(network *net.IPNet) net.IP {
	ip4 := network.IP.To4()
	mask := net.IP(network.Mask).To4()
	out := make(net.IP, 4)
	for i := range out {
		out[i] = ip4[i] | ^mask[i]
	}
	return out
}

func (e *Engine) nextSeq() uint32 {
	e.nextSeqno++
	return e.nextSeqno
}

var errNoResponse = fmt.Errorf("no response received")
