package compoundpi

import (
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultRepeatInterval is the upper bound of the uniform jitter window
	// between retransmissions (§4.1).
	DefaultRepeatInterval = 200 * time.Millisecond
	// DefaultRepeatDeadline is the hard wall-clock budget a Repeater runs
	// for before giving up regardless of acknowledgement (§4.1, §5).
	DefaultRepeatDeadline = 5 * time.Second
)

// Sender is the minimal capability a Repeater needs from a socket: fire one
// datagram at one address. Keeping it this narrow lets server and client
// share the same Repeater over different underlying *net.UDPConn wrappers,
// and lets tests substitute an in-memory sender.
type Sender interface {
	SendTo(addr *net.UDPAddr, payload []byte) error
}

// seedPool hands out per-Repeater PRNG seeds from one shared, mutex-guarded
// source so individual Repeaters can use their own unsynchronized
// *rand.Rand afterwards (§9, "Random jitter").
var seedPool = struct {
	mu     sync.Mutex
	source rand.Source
}{source: rand.NewSource(time.Now().UnixNano())}

func nextSeed() int64 {
	seedPool.mu.Lock()
	defer seedPool.mu.Unlock()
	return seedPool.source.Int63()
}

// Repeater retransmits a single payload to a single destination on
// randomized intervals until cancelled or a deadline elapses (§4.1). It is
// the building block both the server's outstanding-response table and the
// client's transaction/ACK machinery are made of.
type Repeater struct {
	sender      Sender
	addr        *net.UDPAddr
	payload     []byte
	intervalMax time.Duration
	deadline    time.Duration
	logger      *log.Entry

	stopped atomic.Bool
	done    chan struct{}
	stopCh  chan struct{}
	stopOne sync.Once
}

// RepeaterOption customizes a Repeater away from its defaults.
type RepeaterOption func(*Repeater)

func WithIntervalMax(d time.Duration) RepeaterOption {
	return func(r *Repeater) { r.intervalMax = d }
}

func WithDeadline(d time.Duration) RepeaterOption {
	return func(r *Repeater) { r.deadline = d }
}

func WithRepeaterLogger(entry *log.Entry) RepeaterOption {
	return func(r *Repeater) { r.logger = entry }
}

// NewRepeater builds a Repeater for one destination/payload pair. Call
// Start to begin transmitting.
func NewRepeater(sender Sender, addr *net.UDPAddr, payload []byte, opts ...RepeaterOption) *Repeater {
	r := &Repeater{
		sender:      sender,
		addr:        addr,
		payload:     payload,
		intervalMax: DefaultRepeatInterval,
		deadline:    DefaultRepeatDeadline,
		logger:      log.WithField("component", "repeater"),
		done:        make(chan struct{}),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start transmits the payload immediately, then keeps retransmitting on the
// configured jitter schedule on a background goroutine until Stop is called
// or the deadline expires. Start must only be called once.
func (r *Repeater) Start() {
	rng := rand.New(rand.NewSource(nextSeed()))
	r.transmit()
	go r.run(rng)
}

func (r *Repeater) run(rng *rand.Rand) {
	defer close(r.done)

	deadlineTimer := time.NewTimer(r.deadline)
	defer deadlineTimer.Stop()

	for {
		interval := time.Duration(rng.Int63n(int64(r.intervalMax) + 1))
		tick := time.NewTimer(interval)
		select {
		case <-r.stopCh:
			tick.Stop()
			return
		case <-deadlineTimer.C:
			tick.Stop()
			r.logger.WithField("addr", r.addr).Debug("repeater deadline elapsed")
			return
		case <-tick.C:
			r.transmit()
		}
	}
}

func (r *Repeater) transmit() {
	if err := r.sender.SendTo(r.addr, r.payload); err != nil {
		r.logger.WithFields(log.Fields{"addr": r.addr, "error": err}).Warn("repeater send failed")
	}
}

// Stop signals the Repeater to terminate. It is observable within at most
// one jitter interval (§4.1). Stop is idempotent and safe to call from any
// goroutine, including concurrently with Start's internal loop.
func (r *Repeater) Stop() {
	if r.stopped.CompareAndSwap(false, true) {
		r.stopOne.Do(func() { close(r.stopCh) })
	}
}

// Done returns a channel closed once the Repeater's goroutine has exited,
// whether by Stop or deadline.
func (r *Repeater) Done() <-chan struct{} {
	return r.done
}
