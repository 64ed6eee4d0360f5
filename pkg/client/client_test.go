package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/waveform-computing/compoundpi"
	"github.com/waveform-computing/compoundpi/pkg/camera"
	"github.com/waveform-computing/compoundpi/pkg/server"
)

func newLoopbackEngine(t *testing.T) (*Engine, net.IP, func()) {
	t.Helper()
	serverSocket, err := compoundpi.NewSocket(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	assert.Nil(t, err)

	dispatcher := server.NewDispatcher(serverSocket, camera.NewSimulator(), &server.FileStore{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Run(ctx)

	clientSocket, err := compoundpi.NewSocket(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	assert.Nil(t, err)

	_, network, _ := net.ParseCIDR("127.0.0.1/32")
	engine := NewEngine(clientSocket, network, serverSocket.LocalAddr().Port,
		WithRequestTimeout(2*time.Second), WithRetryInterval(50*time.Millisecond))

	cleanup := func() {
		cancel()
		engine.Close()
		clientSocket.Close()
		serverSocket.Close()
	}
	return engine, net.ParseIP("127.0.0.1"), cleanup
}

func TestEngineInsertHandshakeAndDuplicate(t *testing.T) {
	engine, addr, cleanup := newLoopbackEngine(t)
	defer cleanup()

	err := engine.Insert(context.Background(), addr)
	assert.Nil(t, err)
	assert.Len(t, engine.Registry(), 1)

	err = engine.Insert(context.Background(), addr)
	assert.ErrorIs(t, err, compoundpi.ErrRedefinedServer)
}

func TestEngineResolutionThenStatus(t *testing.T) {
	engine, addr, cleanup := newLoopbackEngine(t)
	defer cleanup()

	assert.Nil(t, engine.Insert(context.Background(), addr))
	assert.Nil(t, engine.Resolution(context.Background(), 640, 480, addr))

	statuses, err := engine.Status(context.Background(), addr)
	assert.Nil(t, err)
	snap, ok := statuses[addr.String()]
	assert.True(t, ok)
	assert.Equal(t, 640, snap.Camera.Resolution.Width)
	assert.Equal(t, 480, snap.Camera.Resolution.Height)
}

func TestEngineCaptureThenList(t *testing.T) {
	engine, addr, cleanup := newLoopbackEngine(t)
	defer cleanup()

	assert.Nil(t, engine.Insert(context.Background(), addr))
	assert.Nil(t, engine.Clear(context.Background(), addr))
	assert.Nil(t, engine.Capture(context.Background(), 2, false, 0, 0, addr))

	files, err := engine.List(context.Background(), addr)
	assert.Nil(t, err)
	assert.Len(t, files[addr.String()], 2)
}

func TestTransactRejectsUndefinedTarget(t *testing.T) {
	engine, _, cleanup := newLoopbackEngine(t)
	defer cleanup()

	err := engine.Resolution(context.Background(), 640, 480, net.ParseIP("127.0.0.2"))
	assert.ErrorIs(t, err, compoundpi.ErrUndefinedServers)
}

func TestTransactFailsWithNoServers(t *testing.T) {
	engine, _, cleanup := newLoopbackEngine(t)
	defer cleanup()

	err := engine.Clear(context.Background())
	assert.ErrorIs(t, err, compoundpi.ErrNoServers)
}

func TestRegistryRemoveMoveSort(t *testing.T) {
	engine := &Engine{registry: []net.IP{
		net.ParseIP("192.168.0.3"),
		net.ParseIP("192.168.0.1"),
		net.ParseIP("192.168.0.2"),
	}}

	engine.Sort()
	got := engine.Registry()
	assert.Equal(t, "192.168.0.1", got[0].String())
	assert.Equal(t, "192.168.0.3", got[2].String())

	assert.Nil(t, engine.Move(2, 0))
	got = engine.Registry()
	assert.Equal(t, "192.168.0.3", got[0].String())

	engine.Remove(net.ParseIP("192.168.0.1"))
	got = engine.Registry()
	assert.Len(t, got, 2)
}
