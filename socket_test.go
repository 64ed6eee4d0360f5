package compoundpi

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSocketSendToAndReadFromLoopback(t *testing.T) {
	a, err := NewSocket(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	assert.Nil(t, err)
	defer a.Close()

	b, err := NewSocket(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	assert.Nil(t, err)
	defer b.Close()

	assert.Nil(t, a.SendTo(b.LocalAddr(), []byte("1 HELLO 0")))

	assert.Nil(t, b.SetReadTimeout(time.Second))
	buf := make([]byte, 64)
	n, from, err := b.ReadFrom(buf)
	assert.Nil(t, err)
	assert.Equal(t, "1 HELLO 0", string(buf[:n]))
	assert.True(t, from.IP.Equal(net.ParseIP("127.0.0.1")))
}

func TestSocketReadTimeoutExpires(t *testing.T) {
	s, err := NewSocket(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	assert.Nil(t, err)
	defer s.Close()

	assert.Nil(t, s.SetReadTimeout(10*time.Millisecond))
	buf := make([]byte, 64)
	_, _, err = s.ReadFrom(buf)
	assert.NotNil(t, err)
	netErr, ok := err.(net.Error)
	assert.True(t, ok)
	assert.True(t, netErr.Timeout())
}
