package compoundpi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleSnapshot() StatusSnapshot {
	return StatusSnapshot{
		Camera:    DefaultCameraState(),
		Timestamp: 1234.5,
		Files:     2,
	}
}

func TestRenderStatusLineOrder(t *testing.T) {
	rendered := RenderStatus(sampleSnapshot())
	want := []string{
		"RESOLUTION 1280,720",
		"FRAMERATE 30/1",
		"AWB auto,14/10,15/10",
		"AGC auto,1/1,1/1",
		"EXPOSURE auto,0",
		"ISO 0",
		"METERING average",
		"BRIGHTNESS 50",
		"CONTRAST 0",
		"SATURATION 0",
		"EV 0",
		"FLIP 0,0",
		"DENOISE 0",
		"TIMESTAMP 1234.5",
		"FILES 2",
	}
	assert.Equal(t, want, strings.Split(rendered, "\n"))
}

func TestRenderParseStatusRoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	snap.Camera.Flip.Horizontal = true
	snap.Camera.Denoise = true

	parsed, err := ParseStatus(RenderStatus(snap))
	assert.Nil(t, err)
	assert.Equal(t, snap, parsed)
}

func TestParseStatusRejectsWrongLineCount(t *testing.T) {
	_, err := ParseStatus("RESOLUTION 1280,720\nFRAMERATE 30/1")
	assert.ErrorIs(t, err, ErrBadFraming)
}

func TestParseStatusRejectsOutOfOrderKey(t *testing.T) {
	broken := "FRAMERATE 30/1\nRESOLUTION 1280,720\n" +
		"AWB auto,14/10,15/10\nAGC auto,1/1,1/1\nEXPOSURE auto,0\nISO 0\n" +
		"METERING average\nBRIGHTNESS 50\nCONTRAST 0\nSATURATION 0\nEV 0\n" +
		"FLIP 0,0\nDENOISE 0\nTIMESTAMP 1234.5\nFILES 2"
	_, err := ParseStatus(broken)
	assert.ErrorIs(t, err, ErrBadFraming)
}

func TestFormatCSVLine(t *testing.T) {
	line := FormatCSVLine(FileImage, 0, 12.5, 4096)
	assert.Equal(t, "IMAGE,0,12.5,4096", line)
}
