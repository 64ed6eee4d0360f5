package server

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/waveform-computing/compoundpi"
	"github.com/waveform-computing/compoundpi/pkg/camera"
)

// fakeSender records every datagram sent to it instead of touching a real
// socket, so dispatcher tests run without binding UDP ports.
type fakeSender struct {
	sent []sentDatagram
}

type sentDatagram struct {
	addr    *net.UDPAddr
	payload []byte
}

func (f *fakeSender) SendTo(addr *net.UDPAddr, payload []byte) error {
	f.sent = append(f.sent, sentDatagram{addr: addr, payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fakeSender) last() sentDatagram {
	return f.sent[len(f.sent)-1]
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	d := &Dispatcher{
		sender:             sender,
		cam:                camera.NewSimulator(),
		store:              &FileStore{},
		logger:             log.WithField("component", "dispatcher-test"),
		clock:              time.Now,
		lastHelloTimestamp: negInf,
		outstanding:        make(map[uint32]*outstandingEntry),
	}
	return d, sender
}

func TestHelloBindsClient(t *testing.T) {
	d, sender := newTestDispatcher(t)
	from := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 5647}

	d.Handle(context.Background(), compoundpi.EncodeRequest(1, "HELLO", "1000.0"), from)

	assert.True(t, d.bound)
	assert.True(t, d.boundClient.Equal(from.IP))
	resp, err := compoundpi.DecodeResponse(sender.last().payload)
	assert.Nil(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "VERSION "+compoundpi.ProtocolVersion, resp.Data)
}

func TestHelloRejectsStaleClientTime(t *testing.T) {
	d, sender := newTestDispatcher(t)
	from := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 5647}

	d.Handle(context.Background(), compoundpi.EncodeRequest(1, "HELLO", "1000.0"), from)
	d.Handle(context.Background(), compoundpi.EncodeRequest(2, "HELLO", "999.0"), from)

	resp, err := compoundpi.DecodeResponse(sender.last().payload)
	assert.Nil(t, err)
	assert.False(t, resp.OK)
	assert.EqualValues(t, 1, d.currentSeqno, "seqno must not reset on stale HELLO")
}

func TestUnboundClientRejected(t *testing.T) {
	d, sender := newTestDispatcher(t)
	from := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 5647}

	d.Handle(context.Background(), compoundpi.EncodeRequest(1, "STATUS"), from)

	resp, err := compoundpi.DecodeResponse(sender.last().payload)
	assert.Nil(t, err)
	assert.False(t, resp.OK)
}

func TestResolutionThenStatusReflectsIt(t *testing.T) {
	d, sender := newTestDispatcher(t)
	from := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 5647}

	d.Handle(context.Background(), compoundpi.EncodeRequest(1, "HELLO", "1000.0"), from)
	d.Handle(context.Background(), compoundpi.EncodeRequest(2, "RESOLUTION", "640", "480"), from)
	d.Handle(context.Background(), compoundpi.EncodeRequest(3, "STATUS"), from)

	resp, err := compoundpi.DecodeResponse(sender.last().payload)
	assert.Nil(t, err)
	assert.True(t, resp.OK)
	snap, err := compoundpi.ParseStatus(resp.Data)
	assert.Nil(t, err)
	assert.Equal(t, 640, snap.Camera.Resolution.Width)
	assert.Equal(t, 480, snap.Camera.Resolution.Height)
}

func TestClearThenListIsEmpty(t *testing.T) {
	d, sender := newTestDispatcher(t)
	from := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 5647}

	d.Handle(context.Background(), compoundpi.EncodeRequest(1, "HELLO", "1000.0"), from)
	d.Handle(context.Background(), compoundpi.EncodeRequest(2, "CLEAR"), from)
	d.Handle(context.Background(), compoundpi.EncodeRequest(3, "LIST"), from)

	resp, err := compoundpi.DecodeResponse(sender.last().payload)
	assert.Nil(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "", resp.Data)
}

func TestCaptureThenListHasNEntries(t *testing.T) {
	d, sender := newTestDispatcher(t)
	from := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 5647}

	d.Handle(context.Background(), compoundpi.EncodeRequest(1, "HELLO", "1000.0"), from)
	d.Handle(context.Background(), compoundpi.EncodeRequest(2, "CAPTURE", "3"), from)
	d.Handle(context.Background(), compoundpi.EncodeRequest(3, "LIST"), from)

	resp, err := compoundpi.DecodeResponse(sender.last().payload)
	assert.Nil(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, 3, d.store.Len())
	for i := 0; i < 3; i++ {
		assert.Contains(t, resp.Data, "IMAGE,"+strconv.Itoa(i)+",")
	}
}

func TestRetransmittedSeqnoReturnsCachedPayload(t *testing.T) {
	d, sender := newTestDispatcher(t)
	from := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 5647}

	d.Handle(context.Background(), compoundpi.EncodeRequest(1, "HELLO", "1000.0"), from)
	d.Handle(context.Background(), compoundpi.EncodeRequest(2, "RESOLUTION", "640", "480"), from)
	first := append([]byte(nil), sender.last().payload...)

	d.Handle(context.Background(), compoundpi.EncodeRequest(2, "RESOLUTION", "99999", "99999"), from)
	second := sender.last().payload

	assert.Equal(t, first, second, "retransmission must not re-execute the handler")
}

func TestSyncInPastRejected(t *testing.T) {
	d, sender := newTestDispatcher(t)
	from := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 5647}

	d.Handle(context.Background(), compoundpi.EncodeRequest(1, "HELLO", "1000.0"), from)
	d.Handle(context.Background(), compoundpi.EncodeRequest(2, "CAPTURE", "1", "0", "0", "1.0"), from)

	resp, err := compoundpi.DecodeResponse(sender.last().payload)
	assert.Nil(t, err)
	assert.False(t, resp.OK)
}

const negInf = -1.0e308
