package compoundpi

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSender struct {
	mu    sync.Mutex
	sends int
}

func (s *countingSender) SendTo(addr *net.UDPAddr, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	return nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends
}

func TestRepeaterTransmitsImmediatelyThenRetransmits(t *testing.T) {
	sender := &countingSender{}
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5647}
	r := NewRepeater(sender, addr, []byte("1 HELLO 0"), WithIntervalMax(10*time.Millisecond), WithDeadline(100*time.Millisecond))
	r.Start()
	defer r.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.GreaterOrEqual(t, sender.count(), 2)
}

func TestRepeaterStopEndsRunLoop(t *testing.T) {
	sender := &countingSender{}
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5647}
	r := NewRepeater(sender, addr, []byte("1 HELLO 0"), WithIntervalMax(5*time.Millisecond), WithDeadline(5*time.Second))
	r.Start()

	time.Sleep(20 * time.Millisecond)
	r.Stop()

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("repeater did not stop")
	}

	countAtStop := sender.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, countAtStop, sender.count())
}

func TestRepeaterDeadlineStopsWithoutExplicitStop(t *testing.T) {
	sender := &countingSender{}
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5647}
	r := NewRepeater(sender, addr, []byte("1 HELLO 0"), WithIntervalMax(5*time.Millisecond), WithDeadline(20*time.Millisecond))
	r.Start()

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("repeater did not honor deadline")
	}
	assert.GreaterOrEqual(t, sender.count(), 1)
}

func TestRepeaterStopIsIdempotent(t *testing.T) {
	sender := &countingSender{}
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5647}
	r := NewRepeater(sender, addr, []byte("1 HELLO 0"))
	r.Start()
	r.Stop()
	r.Stop()
}
