package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"github.com/waveform-computing/compoundpi"
)

// transact is the core of the client transaction engine (§4.6). An empty
// targets slice means "every registered server"; it is rejected if the
// registry is empty and sent via broadcast otherwise. transact returns a
// map of responder address -> OK data for every address that succeeded;
// when any address failed, that map comes back together with a
// *compoundpi.TransactionError aggregating the per-address failures.
func (e *Engine) transact(ctx context.Context, command string, targets []net.IP, params ...string) (map[string]string, error) {
	e.mu.Lock()
	full := len(targets) == 0
	if full {
		targets = append([]net.IP(nil), e.registry...)
		if len(targets) == 0 {
			e.mu.Unlock()
			return nil, compoundpi.ErrNoServers
		}
	} else {
		for _, t := range targets {
			if !e.contains(t) {
				e.mu.Unlock()
				return nil, fmt.Errorf("%w: %s", compoundpi.ErrUndefinedServers, t)
			}
		}
	}
	seqno := e.nextSeq()
	e.mu.Unlock()

	// corrID tags every log line this transaction produces so concurrent
	// transactions (sequential here, but overlapping in-flight ACKs/retries)
	// stay distinguishable without parsing seqnos by hand.
	corrID := xid.New().String()
	logger := e.logger.WithFields(log.Fields{"txn": corrID, "command": command, "seqno": seqno})
	logger.Debug("transaction started")
	if e.metrics != nil {
		e.metrics.Outstanding.Track("transaction", corrID)
		defer e.metrics.Outstanding.Untrack("transaction", corrID)
	}

	payload := compoundpi.EncodeRequest(seqno, command, params...)

	txn := &pendingTxn{
		seqno:   seqno,
		targets: make(map[string]net.IP, len(targets)),
		results: make(map[string]roundResult),
		done:    make(chan struct{}),
	}
	for _, t := range targets {
		txn.targets[t.String()] = t
	}

	e.mu.Lock()
	e.current = txn
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
	}()

	var repeaters []*compoundpi.Repeater
	if full {
		bcast := &net.UDPAddr{IP: broadcastAddr(e.network), Port: e.serverPort}
		rep := compoundpi.NewRepeater(e.socket, bcast, payload,
			compoundpi.WithIntervalMax(e.retryInterval), compoundpi.WithDeadline(e.requestTimeout))
		repeaters = append(repeaters, rep)
	} else {
		for _, t := range targets {
			rep := compoundpi.NewRepeater(e.socket, &net.UDPAddr{IP: t, Port: e.serverPort}, payload,
				compoundpi.WithIntervalMax(e.retryInterval), compoundpi.WithDeadline(e.requestTimeout))
			repeaters = append(repeaters, rep)
		}
	}
	for _, r := range repeaters {
		r.Start()
	}
	defer func() {
		for _, r := range repeaters {
			r.Stop()
		}
	}()

	waitStart := e.clock()
	select {
	case <-txn.done:
	case <-time.After(e.requestTimeout):
	case <-ctx.Done():
	}
	if e.metrics != nil {
		e.metrics.TransactionLatency.WithLabelValues(command).Observe(e.clock().Sub(waitStart).Seconds())
	}

	txn.mu.Lock()
	results := make(map[string]roundResult, len(txn.results))
	for k, v := range txn.results {
		results[k] = v
	}
	txn.closed = true
	txn.mu.Unlock()

	for key, addr := range txn.targets {
		if _, responded := results[key]; !responded {
			continue
		}
		ackPayload := compoundpi.EncodeRequest(seqno, "ACK")
		ackRep := compoundpi.NewRepeater(e.socket, &net.UDPAddr{IP: addr, Port: e.serverPort}, ackPayload,
			compoundpi.WithDeadline(ackDeadline))
		ackRep.Start()
	}

	ok := make(map[string]string)
	var peerErrs []*compoundpi.PeerError
	for key, addr := range txn.targets {
		res, got := results[key]
		switch {
		case !got:
			peerErrs = append(peerErrs, &compoundpi.PeerError{Addr: addr, Kind: compoundpi.PeerMissingResponse})
		case res.err != nil:
			if pe, ok2 := res.err.(*compoundpi.PeerError); ok2 {
				peerErrs = append(peerErrs, pe)
			} else {
				peerErrs = append(peerErrs, &compoundpi.PeerError{Addr: addr, Kind: compoundpi.PeerInvalidResponse, Message: res.err.Error()})
			}
		default:
			ok[key] = res.data
		}
	}

	if len(peerErrs) > 0 {
		if e.metrics != nil {
			e.metrics.TransactionsTotal.WithLabelValues(command, "failed").Inc()
		}
		logger.WithField("failed", len(peerErrs)).Debug("transaction failed")
		return ok, &compoundpi.TransactionError{Command: command, Peers: peerErrs}
	}
	if e.metrics != nil {
		e.metrics.TransactionsTotal.WithLabelValues(command, "ok").Inc()
	}
	logger.Debug("transaction completed")
	return ok, nil
}
