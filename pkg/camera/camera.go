// Package camera defines the capability a Compound Pi server dispatches
// configuration and capture commands to, and a software simulator that
// implements it without real camera hardware.
//
// The interface is deliberately narrow: configure, capture_sequence,
// record, led, and a status accessor, matching the out-of-scope hardware
// collaborator the server is built against rather than wrapping any one
// vendor SDK.
package camera

import (
	"fmt"
	"sync"
	"time"

	"github.com/waveform-computing/compoundpi"
)

// Camera is the capability a server binds to dispatch commands against. A
// real implementation drives actual hardware; Simulator below is a
// reference implementation usable standalone and in tests.
type Camera interface {
	// Configure applies a mutator to the mirrored configuration state under
	// the camera's lock and returns the resulting state.
	Configure(mutate func(*compoundpi.CameraState)) compoundpi.CameraState

	// State returns a snapshot of the current configuration.
	State() compoundpi.CameraState

	// CaptureSequence takes count frames, honoring videoPort/quality, and
	// returns the raw payload of each in capture order.
	CaptureSequence(count int, videoPort bool, quality int) ([][]byte, error)

	// Record captures length seconds of video at the given format/quality/
	// bitrate/intra_period, optionally with motion-vector output, and
	// returns the raw payload(s): the video stream, and the motion stream
	// when requested.
	Record(length time.Duration, format string, quality, bitrate, intraPeriod int, motion bool) (video, motionData []byte, err error)

	// LED turns the camera's activity LED on or off immediately. The
	// Simulator's CaptureSequence and Record drive it off while they run
	// and back on when they return; BLINK overrides it via a detached task.
	LED(on bool)
}

// Simulator is a Camera that fabricates deterministic payloads instead of
// talking to hardware. It is the default binding for compoundpi-serverd
// when no platform-specific camera driver is compiled in, and it backs the
// server package's tests.
type Simulator struct {
	mu    sync.Mutex
	state compoundpi.CameraState
	led   bool

	// sleep stands in for time.Sleep so tests can avoid real waits; nil
	// means use time.Sleep.
	sleep func(time.Duration)
}

// NewSimulator returns a Simulator seeded with the hardware default state.
func NewSimulator() *Simulator {
	return &Simulator{state: compoundpi.DefaultCameraState()}
}

func (s *Simulator) sleepFor(d time.Duration) {
	if s.sleep != nil {
		s.sleep(d)
		return
	}
	time.Sleep(d)
}

func (s *Simulator) Configure(mutate func(*compoundpi.CameraState)) compoundpi.CameraState {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.state)
	return s.state
}

func (s *Simulator) State() compoundpi.CameraState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CaptureSequence fabricates count frames. Each frame's payload encodes its
// index and the resolution/quality in effect, enough for tests to assert on
// without a real sensor.
func (s *Simulator) CaptureSequence(count int, videoPort bool, quality int) ([][]byte, error) {
	if count < 1 {
		return nil, fmt.Errorf("capture_sequence: count must be >= 1, got %d", count)
	}
	s.mu.Lock()
	res := s.state.Resolution
	s.mu.Unlock()

	s.LED(false)
	defer s.LED(true)

	frames := make([][]byte, count)
	for i := 0; i < count; i++ {
		frames[i] = []byte(fmt.Sprintf("JPEG frame=%d res=%dx%d videoPort=%t quality=%d",
			i, res.Width, res.Height, videoPort, quality))
	}
	return frames, nil
}

// Record fabricates length worth of video, plus a motion vector stream when
// requested. It blocks for the requested duration via sleepFor, mirroring a
// real encoder's synchronous capture call.
func (s *Simulator) Record(length time.Duration, format string, quality, bitrate, intraPeriod int, motion bool) ([]byte, []byte, error) {
	if length <= 0 {
		return nil, nil, fmt.Errorf("record: length must be positive, got %s", length)
	}
	s.LED(false)
	defer s.LED(true)

	s.sleepFor(length)

	video := []byte(fmt.Sprintf("%s video length=%s quality=%d bitrate=%d intra_period=%d",
		format, length, quality, bitrate, intraPeriod))
	var motionData []byte
	if motion {
		motionData = []byte(fmt.Sprintf("motion length=%s", length))
	}
	return video, motionData, nil
}

func (s *Simulator) LED(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.led = on
}

// LEDState reports the simulator's current LED state, for tests.
func (s *Simulator) LEDState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led
}
