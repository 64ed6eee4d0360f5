package client

import (
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/waveform-computing/compoundpi"
)

func TestListenerDeliversPayloadFromExpectedSource(t *testing.T) {
	listener, err := NewListener("127.0.0.1:0")
	assert.Nil(t, err)
	defer listener.Close()

	var buf bytes.Buffer
	done := make(chan struct{})
	listener.mu.Lock()
	listener.expectedSource = net.ParseIP("127.0.0.1")
	listener.writer = &buf
	listener.done = done
	listener.mu.Unlock()

	conn, err := net.Dial("tcp", listener.ln.Addr().String())
	assert.Nil(t, err)
	defer conn.Close()

	payload := []byte("foo bar")
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	_, err = conn.Write(append(header[:], payload...))
	assert.Nil(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for download completion")
	}
	assert.Equal(t, "foo bar", buf.String())
}

func TestListenerDiscardsUnexpectedSourceAndKeepsWaiting(t *testing.T) {
	listener, err := NewListener("127.0.0.1:0")
	assert.Nil(t, err)
	defer listener.Close()

	var buf bytes.Buffer
	done := make(chan struct{})

	var mu sync.Mutex
	var warned []compoundpi.Warning
	warn := func(addr net.IP, w compoundpi.Warning) {
		mu.Lock()
		defer mu.Unlock()
		warned = append(warned, w)
	}

	listener.mu.Lock()
	listener.expectedSource = net.ParseIP("10.0.0.9")
	listener.writer = &buf
	listener.done = done
	listener.warn = warn
	listener.mu.Unlock()

	rogue, err := net.Dial("tcp", listener.ln.Addr().String())
	assert.Nil(t, err)
	_, _ = rogue.Write([]byte{0, 0, 0, 0})
	rogue.Close()

	// Give handleConn a moment to process the rogue connection, then confirm
	// the pending download is still open: no result, no close.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("unexpected source connection must not end the pending download")
	default:
	}
	mu.Lock()
	assert.Equal(t, []compoundpi.Warning{compoundpi.WarnUnknownAddress}, warned)
	mu.Unlock()
	assert.Empty(t, buf.String())

	// The real sender can still complete the transfer afterwards.
	listener.mu.Lock()
	listener.expectedSource = net.ParseIP("127.0.0.1")
	listener.mu.Unlock()

	conn, err := net.Dial("tcp", listener.ln.Addr().String())
	assert.Nil(t, err)
	defer conn.Close()

	payload := []byte("real payload")
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	_, err = conn.Write(append(header[:], payload...))
	assert.Nil(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the real transfer to complete")
	}
	assert.Equal(t, "real payload", buf.String())
}
