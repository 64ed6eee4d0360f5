package camera

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/waveform-computing/compoundpi"
)

func TestSimulatorDefaultState(t *testing.T) {
	sim := NewSimulator()
	state := sim.State()
	assert.Equal(t, compoundpi.DefaultCameraState(), state)
}

func TestSimulatorConfigure(t *testing.T) {
	sim := NewSimulator()
	state := sim.Configure(func(s *compoundpi.CameraState) {
		s.Resolution = compoundpi.Resolution{Width: 640, Height: 480}
	})
	assert.Equal(t, 640, state.Resolution.Width)
	assert.Equal(t, 640, sim.State().Resolution.Width)
}

func TestSimulatorCaptureSequence(t *testing.T) {
	sim := NewSimulator()
	frames, err := sim.CaptureSequence(3, false, 0)
	assert.Nil(t, err)
	assert.Len(t, frames, 3)
	assert.True(t, sim.LEDState(), "led should be restored to on after capture")
}

func TestSimulatorCaptureSequenceRejectsZeroCount(t *testing.T) {
	sim := NewSimulator()
	_, err := sim.CaptureSequence(0, false, 0)
	assert.Error(t, err)
}

func TestSimulatorRecordWithMotion(t *testing.T) {
	sim := NewSimulator()
	sim.sleep = func(time.Duration) {}
	video, motion, err := sim.Record(2*time.Second, "h264", 0, 17000000, 0, true)
	assert.Nil(t, err)
	assert.NotEmpty(t, video)
	assert.NotEmpty(t, motion)
}

func TestSimulatorRecordWithoutMotion(t *testing.T) {
	sim := NewSimulator()
	sim.sleep = func(time.Duration) {}
	_, motion, err := sim.Record(time.Second, "h264", 0, 17000000, 0, false)
	assert.Nil(t, err)
	assert.Nil(t, motion)
}

func TestSimulatorRecordRejectsNonPositiveLength(t *testing.T) {
	sim := NewSimulator()
	_, _, err := sim.Record(0, "h264", 0, 17000000, 0, false)
	assert.Error(t, err)
}

func TestSimulatorLEDSetAndReport(t *testing.T) {
	sim := NewSimulator()
	sim.LED(true)
	assert.True(t, sim.LEDState())
	sim.LED(false)
	assert.False(t, sim.LEDState())
}
