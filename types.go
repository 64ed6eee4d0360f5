package compoundpi

import "fmt"

// ProtocolVersion is compared byte-for-byte by clients against a server's
// HELLO response (§6, "Protocol version handshake"). original_source's
// client.py rejects anything that doesn't match precisely.
const ProtocolVersion = "1.0"

// Fraction is a decimal fraction with a denominator bounded at 65536, used
// for framerate and the AWB/AGC gain parameters (§4.2).
type Fraction struct {
	Num, Den uint32
}

const maxFractionDenominator = 65536

// NewFraction constructs a Fraction, rejecting denominators outside the
// protocol's bound.
func NewFraction(num, den uint32) (Fraction, error) {
	if den == 0 || den > maxFractionDenominator {
		return Fraction{}, fmt.Errorf("%w: denominator %d out of range", ErrParamFormat, den)
	}
	return Fraction{Num: num, Den: den}, nil
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

// FileType identifies the kind of captured media in the file store.
type FileType uint8

const (
	FileImage FileType = iota
	FileVideo
	FileMotion
)

func (t FileType) String() string {
	switch t {
	case FileImage:
		return "IMAGE"
	case FileVideo:
		return "VIDEO"
	case FileMotion:
		return "MOTION"
	default:
		return "UNKNOWN"
	}
}

func ParseFileType(s string) (FileType, error) {
	switch s {
	case "IMAGE":
		return FileImage, nil
	case "VIDEO":
		return FileVideo, nil
	case "MOTION":
		return FileMotion, nil
	default:
		return 0, fmt.Errorf("%w: file type %q", ErrParamFormat, s)
	}
}

// CapturedFile describes one captured media record (§3): its type, capture
// timestamp and payload. The server's file store keeps its records as
// pkg/server.FileRecord, which has the same fields. Index is not stored on
// the record; it is the record's position in the store at listing time,
// and CLEAR resets the whole store.
type CapturedFile struct {
	Type      FileType
	Timestamp float64
	Payload   []byte
}

// Resolution is the camera's capture width/height in pixels.
type Resolution struct {
	Width, Height int
}

// AWBState mirrors the AWB mode plus manual red/blue gains (§4.5).
type AWBState struct {
	Mode string
	Red  Fraction
	Blue Fraction
}

// AGCState mirrors the AGC mode plus analog/digital gains, reported but not
// settable by AGC itself — only STATUS exposes the gains (§4.5).
type AGCState struct {
	Mode    string
	Analog  Fraction
	Digital Fraction
}

// ExposureState mirrors exposure mode and shutter speed in milliseconds.
type ExposureState struct {
	Mode     string
	SpeedMs  float64
}

// Flip captures horizontal/vertical orientation flags.
type Flip struct {
	Horizontal bool
	Vertical   bool
}

// CameraState is the full mirrored camera configuration the server keeps
// and that a STATUS response snapshots in its entirety (§3, §4.5).
type CameraState struct {
	Resolution Resolution
	Framerate  Fraction
	AWB        AWBState
	AGC        AGCState
	Exposure   ExposureState
	ISO        int
	Metering   string
	Brightness int
	Contrast   int
	Saturation int
	EV         int
	Flip       Flip
	Denoise    bool
}

// DefaultCameraState matches the values original_source/compoundpi/camera.py
// documents as the hardware defaults for a freshly booted Pi camera.
func DefaultCameraState() CameraState {
	return CameraState{
		Resolution: Resolution{Width: 1280, Height: 720},
		Framerate:  Fraction{Num: 30, Den: 1},
		AWB:        AWBState{Mode: "auto", Red: Fraction{Num: 14, Den: 10}, Blue: Fraction{Num: 15, Den: 10}},
		AGC:        AGCState{Mode: "auto", Analog: Fraction{Num: 1, Den: 1}, Digital: Fraction{Num: 1, Den: 1}},
		Exposure:   ExposureState{Mode: "auto", SpeedMs: 0},
		ISO:        0,
		Metering:   "average",
		Brightness: 50,
		Contrast:   0,
		Saturation: 0,
		EV:         0,
		Flip:       Flip{},
		Denoise:    false,
	}
}

// StatusSnapshot is the parsed form of a STATUS OK payload (§4.5), used on
// both sides: the server builds one to render the 15-line block, and the
// client parses the block back into one.
type StatusSnapshot struct {
	Camera    CameraState
	Timestamp float64
	Files     int
}
