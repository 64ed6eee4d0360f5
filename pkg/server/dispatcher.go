// Package server implements the Compound Pi server runtime: the
// single-client dispatch pipeline, the command handlers it drives, the
// in-memory file store, the LED blink task, and the SEND file transport
// (§4.4 of the protocol this module implements).
package server

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/waveform-computing/compoundpi"
	"github.com/waveform-computing/compoundpi/internal/metrics"
	"github.com/waveform-computing/compoundpi/pkg/camera"
)

// handlerFunc implements one command's server effect and OK-data rendering.
// Returning an error produces an ERROR response carrying its message.
type handlerFunc func(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error)

var handlers = map[string]handlerFunc{
	"BLINK":      handleBlink,
	"STATUS":     handleStatus,
	"RESOLUTION": handleResolution,
	"FRAMERATE":  handleFramerate,
	"AWB":        handleAWB,
	"AGC":        handleAGC,
	"EXPOSURE":   handleExposure,
	"METERING":   handleMetering,
	"ISO":        handleISO,
	"BRIGHTNESS": handleBrightness,
	"CONTRAST":   handleContrast,
	"SATURATION": handleSaturation,
	"EV":         handleEV,
	"FLIP":       handleFlip,
	"DENOISE":    handleDenoise,
	"CAPTURE":    handleCapture,
	"RECORD":     handleRecord,
	"SEND":       handleSend,
	"LIST":       handleList,
	"CLEAR":      handleClear,
}

type outstandingEntry struct {
	repeater *compoundpi.Repeater
	payload  []byte
}

// Dispatcher is the server's single-threaded command pipeline (§4.4). One
// Dispatcher binds to exactly one client for its lifetime.
type Dispatcher struct {
	socket  *compoundpi.Socket
	sender  compoundpi.Sender
	cam     camera.Camera
	store   *FileStore
	metrics *metrics.Registry
	logger  *log.Entry
	clock   func() time.Time

	bound              bool
	boundClient        net.IP
	currentSeqno       uint32
	lastHelloTimestamp float64

	outstanding map[uint32]*outstandingEntry
	blink       *blinkTask
}

// NewDispatcher constructs a Dispatcher over socket, driving cam and
// persisting captures in store. reg may be nil to disable metrics.
func NewDispatcher(socket *compoundpi.Socket, cam camera.Camera, store *FileStore, reg *metrics.Registry) *Dispatcher {
	return &Dispatcher{
		socket:             socket,
		sender:             socket,
		cam:                cam,
		store:              store,
		metrics:            reg,
		logger:             log.WithField("component", "dispatcher"),
		clock:              time.Now,
		lastHelloTimestamp: math.Inf(-1),
		outstanding:        make(map[uint32]*outstandingEntry),
	}
}

func (d *Dispatcher) timestamp() float64 {
	return float64(d.clock().UnixNano()) / float64(time.Second)
}

// Handle runs one inbound datagram through the dispatch pipeline (§4.4).
func (d *Dispatcher) Handle(ctx context.Context, data []byte, from *net.UDPAddr) {
	req, err := compoundpi.DecodeRequest(data)
	if err != nil {
		d.logger.WithFields(log.Fields{"from": from, "error": err}).Warn("malformed request")
		d.reply(from, compoundpi.EncodeError(0, err.Error()))
		return
	}

	if req.Command == "HELLO" {
		d.handleHello(req, from)
		return
	}

	if !d.bound || !from.IP.Equal(d.boundClient) {
		d.reply(from, compoundpi.EncodeError(req.Seqno, "Invalid client or protocol error"))
		return
	}

	if req.Command == "ACK" {
		d.handleAck(req)
		return
	}

	switch {
	case req.Seqno < d.currentSeqno:
		d.logger.WithField("seqno", req.Seqno).Debug("stale seqno dropped")
	case req.Seqno == d.currentSeqno:
		d.resend(from, req.Seqno)
	default:
		d.currentSeqno = req.Seqno
		d.dispatchCommand(ctx, req, from)
	}
}

func (d *Dispatcher) handleHello(req compoundpi.Request, from *net.UDPAddr) {
	if d.bound && !from.IP.Equal(d.boundClient) {
		d.reply(from, compoundpi.EncodeError(req.Seqno, "Invalid client or protocol error"))
		return
	}
	spec, _ := compoundpi.LookupCommand("HELLO")
	params, err := compoundpi.ParseParams(spec, req.Raw)
	if err != nil {
		d.reply(from, compoundpi.EncodeError(req.Seqno, err.Error()))
		return
	}
	timestamp := params.Float("timestamp")
	if timestamp <= d.lastHelloTimestamp {
		d.reply(from, compoundpi.EncodeError(req.Seqno, "stale client time"))
		return
	}

	for seqno, entry := range d.outstanding {
		entry.repeater.Stop()
		delete(d.outstanding, seqno)
	}

	d.lastHelloTimestamp = timestamp
	d.bound = true
	d.boundClient = from.IP
	d.currentSeqno = req.Seqno
	d.logger.WithField("client", from.IP).Info("client bound")
	d.respond(from, req.Seqno, compoundpi.EncodeOK(req.Seqno, "VERSION "+compoundpi.ProtocolVersion))
}

func (d *Dispatcher) handleAck(req compoundpi.Request) {
	entry, ok := d.outstanding[req.Seqno]
	if !ok {
		return
	}
	entry.repeater.Stop()
	delete(d.outstanding, req.Seqno)
	if d.metrics != nil {
		d.metrics.Outstanding.Untrack("server-response", fmt.Sprintf("%d", req.Seqno))
	}
}

// resend re-fires the cached repeater for the current seqno without
// re-executing the handler (§4.4, idempotence).
func (d *Dispatcher) resend(from *net.UDPAddr, seqno uint32) {
	entry, ok := d.outstanding[seqno]
	if !ok {
		return
	}
	entry.repeater.Stop()
	rep := compoundpi.NewRepeater(d.sender, from, entry.payload, compoundpi.WithRepeaterLogger(d.logger))
	entry.repeater = rep
	rep.Start()
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, req compoundpi.Request, from *net.UDPAddr) {
	for seqno, entry := range d.outstanding {
		entry.repeater.Stop()
		delete(d.outstanding, seqno)
	}

	spec, err := compoundpi.LookupCommand(req.Command)
	if err != nil {
		d.respond(from, req.Seqno, compoundpi.EncodeError(req.Seqno, err.Error()))
		return
	}
	params, err := compoundpi.ParseParams(spec, req.Raw)
	if err != nil {
		d.respond(from, req.Seqno, compoundpi.EncodeError(req.Seqno, err.Error()))
		return
	}
	handle, ok := handlers[req.Command]
	if !ok {
		d.respond(from, req.Seqno, compoundpi.EncodeError(req.Seqno, fmt.Sprintf("%s not implemented", req.Command)))
		return
	}

	data, err := handle(ctx, d, params, from)
	if err != nil {
		d.respond(from, req.Seqno, compoundpi.EncodeError(req.Seqno, err.Error()))
		return
	}
	d.respond(from, req.Seqno, compoundpi.EncodeOK(req.Seqno, data))
}

func (d *Dispatcher) respond(from *net.UDPAddr, seqno uint32, payload []byte) {
	rep := compoundpi.NewRepeater(d.sender, from, payload, compoundpi.WithRepeaterLogger(d.logger))
	d.outstanding[seqno] = &outstandingEntry{repeater: rep, payload: payload}
	if d.metrics != nil {
		d.metrics.Outstanding.Track("server-response", fmt.Sprintf("%d", seqno))
	}
	rep.Start()
}

func (d *Dispatcher) reply(from *net.UDPAddr, payload []byte) {
	if err := d.sender.SendTo(from, payload); err != nil {
		d.logger.WithFields(log.Fields{"to": from, "error": err}).Warn("reply send failed")
	}
}

// waitForSync blocks the dispatcher until the given unix-seconds wall time,
// or returns an error immediately if that time has already passed (§4.4,
// "Synchronized capture"). sync == 0 means "no synchronization requested".
func (d *Dispatcher) waitForSync(ctx context.Context, sync float64) error {
	if sync == 0 {
		return nil
	}
	target := time.Unix(0, int64(sync*float64(time.Second)))
	now := d.clock()
	if !target.After(now) {
		return fmt.Errorf("sync time already passed")
	}
	timer := time.NewTimer(target.Sub(now))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
