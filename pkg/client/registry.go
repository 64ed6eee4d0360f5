package client

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/waveform-computing/compoundpi"
)

// Registry returns a stable-order snapshot of the known server addresses.
func (e *Engine) Registry() []net.IP {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]net.IP, len(e.registry))
	copy(out, e.registry)
	return out
}

// Insert performs a HELLO handshake against addr and, on success, appends
// it to the registry (§4.6, "Insert-like operations perform a HELLO
// handshake ... and only then commit").
func (e *Engine) Insert(ctx context.Context, addr net.IP) error {
	e.mu.Lock()
	duplicate := e.contains(addr)
	e.mu.Unlock()
	if duplicate {
		return fmt.Errorf("%w: %s", compoundpi.ErrRedefinedServer, addr)
	}
	if err := e.helloHandshake(ctx, addr); err != nil {
		return err
	}
	e.mu.Lock()
	e.registry = append(e.registry, addr)
	e.mu.Unlock()
	return nil
}

// Append is an alias for Insert; both add to the end of the registry.
func (e *Engine) Append(ctx context.Context, addr net.IP) error { return e.Insert(ctx, addr) }

// Extend inserts every address in addrs in order, stopping at the first
// failure.
func (e *Engine) Extend(ctx context.Context, addrs []net.IP) error {
	for _, addr := range addrs {
		if err := e.Insert(ctx, addr); err != nil {
			return err
		}
	}
	return nil
}

// Set replaces the address at index after a successful handshake with the
// new address (registry "assignment").
func (e *Engine) Set(ctx context.Context, index int, addr net.IP) error {
	e.mu.Lock()
	inRange := index >= 0 && index < len(e.registry)
	e.mu.Unlock()
	if !inRange {
		return fmt.Errorf("%w: index %d", compoundpi.ErrUndefinedServers, index)
	}
	if err := e.helloHandshake(ctx, addr); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry[index] = addr
	return nil
}

// Remove drops addr from the registry with no protocol traffic (§4.6,
// "remove is silent").
func (e *Engine) Remove(addr net.IP) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, a := range e.registry {
		if a.Equal(addr) {
			e.registry = append(e.registry[:i], e.registry[i+1:]...)
			return
		}
	}
}

// Move relocates the entry at from to position to, preserving the rest of
// the order.
func (e *Engine) Move(from, to int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if from < 0 || from >= len(e.registry) || to < 0 || to >= len(e.registry) {
		return fmt.Errorf("%w: move index out of range", compoundpi.ErrUndefinedServers)
	}
	addr := e.registry[from]
	rest := append(e.registry[:from:from], e.registry[from+1:]...)
	moved := make([]net.IP, 0, len(rest)+1)
	moved = append(moved, rest[:to]...)
	moved = append(moved, addr)
	moved = append(moved, rest[to:]...)
	e.registry = moved
	return nil
}

// Sort orders the registry by numeric IPv4 address.
func (e *Engine) Sort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	sort.Slice(e.registry, func(i, j int) bool {
		a, b := e.registry[i].To4(), e.registry[j].To4()
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
}

// Find broadcasts HELLO to the subnet broadcast address and collects
// responders into the registry until expected responses arrive or the
// request timeout elapses (§4.6). expected <= 0 means "collect until
// timeout, however many respond".
func (e *Engine) Find(ctx context.Context, expected int) ([]net.IP, error) {
	e.mu.Lock()
	seqno := e.nextSeq()
	network := e.network
	e.mu.Unlock()

	ts := strconv.FormatFloat(float64(e.clock().UnixNano())/float64(time.Second), 'f', -1, 64)
	payload := compoundpi.EncodeRequest(seqno, "HELLO", ts)

	txn := &pendingTxn{
		seqno:   seqno,
		open:    true,
		targets: make(map[string]net.IP),
		results: make(map[string]roundResult),
		done:    make(chan struct{}),
	}
	e.mu.Lock()
	e.current = txn
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
	}()

	bcast := &net.UDPAddr{IP: broadcastAddr(network), Port: e.serverPort}
	rep := compoundpi.NewRepeater(e.socket, bcast, payload,
		compoundpi.WithIntervalMax(e.retryInterval), compoundpi.WithDeadline(e.requestTimeout))
	rep.Start()
	defer rep.Stop()

	deadline := time.After(e.requestTimeout)
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()
waitLoop:
	for {
		txn.mu.Lock()
		count := len(txn.results)
		txn.mu.Unlock()
		if expected > 0 && count >= expected {
			break waitLoop
		}
		select {
		case <-deadline:
			break waitLoop
		case <-ctx.Done():
			break waitLoop
		case <-poll.C:
		}
	}

	txn.mu.Lock()
	found := make([]net.IP, 0, len(txn.results))
	for key, res := range txn.results {
		if res.err == nil {
			found = append(found, net.ParseIP(key))
		}
	}
	txn.mu.Unlock()
	sort.Slice(found, func(i, j int) bool { return found[i].String() < found[j].String() })

	e.mu.Lock()
	for _, ip := range found {
		if !e.contains(ip) {
			e.registry = append(e.registry, ip)
		}
	}
	e.mu.Unlock()
	return found, nil
}

// helloHandshake performs the single-address HELLO round trip Insert/Set
// depend on: send HELLO, await VERSION, verify it, and ACK.
func (e *Engine) helloHandshake(ctx context.Context, addr net.IP) error {
	e.mu.Lock()
	seqno := e.nextSeq()
	e.mu.Unlock()

	ts := strconv.FormatFloat(float64(e.clock().UnixNano())/float64(time.Second), 'f', -1, 64)
	payload := compoundpi.EncodeRequest(seqno, "HELLO", ts)

	txn := &pendingTxn{
		seqno:   seqno,
		targets: map[string]net.IP{addr.String(): addr},
		results: make(map[string]roundResult),
		done:    make(chan struct{}),
	}
	e.mu.Lock()
	e.current = txn
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
	}()

	rep := compoundpi.NewRepeater(e.socket, &net.UDPAddr{IP: addr, Port: e.serverPort}, payload,
		compoundpi.WithIntervalMax(e.retryInterval), compoundpi.WithDeadline(e.requestTimeout))
	rep.Start()
	defer rep.Stop()

	select {
	case <-txn.done:
	case <-time.After(e.requestTimeout):
	case <-ctx.Done():
	}

	txn.mu.Lock()
	res, ok := txn.results[addr.String()]
	txn.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s: %v", compoundpi.ErrTransactionFailed, addr, errNoResponse)
	}
	if res.err != nil {
		return fmt.Errorf("%w: %s: %v", compoundpi.ErrTransactionFailed, addr, res.err)
	}

	version := res.data
	if len(version) >= len("VERSION ") {
		version = version[len("VERSION "):]
	}
	if version != compoundpi.ProtocolVersion {
		e.warn(addr, compoundpi.WarnWrongVersion)
		return fmt.Errorf("%w: %s: version mismatch, got %q", compoundpi.ErrTransactionFailed, addr, version)
	}

	ackPayload := compoundpi.EncodeRequest(seqno, "ACK")
	ackRep := compoundpi.NewRepeater(e.socket, &net.UDPAddr{IP: addr, Port: e.serverPort}, ackPayload,
		compoundpi.WithDeadline(ackDeadline))
	ackRep.Start()
	return nil
}
