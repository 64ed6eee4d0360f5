package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/waveform-computing/compoundpi"
)

// FileDescriptor is one parsed LIST entry.
type FileDescriptor struct {
	Type      compoundpi.FileType
	Index     int
	Timestamp float64
	Size      int
}

func parseFileDescriptor(line string) (FileDescriptor, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return FileDescriptor{}, fmt.Errorf("%w: list entry %q", compoundpi.ErrBadFraming, line)
	}
	t, err := compoundpi.ParseFileType(fields[0])
	if err != nil {
		return FileDescriptor{}, err
	}
	index, err := strconv.Atoi(fields[1])
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("%w: %v", compoundpi.ErrBadFraming, err)
	}
	timestamp, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("%w: %v", compoundpi.ErrBadFraming, err)
	}
	size, err := strconv.Atoi(fields[3])
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("%w: %v", compoundpi.ErrBadFraming, err)
	}
	return FileDescriptor{Type: t, Index: index, Timestamp: timestamp, Size: size}, nil
}

// Status issues STATUS and parses every responder's payload into a
// StatusSnapshot.
func (e *Engine) Status(ctx context.Context, targets ...net.IP) (map[string]compoundpi.StatusSnapshot, error) {
	raw, err := e.transact(ctx, "STATUS", targets)
	out := make(map[string]compoundpi.StatusSnapshot, len(raw))
	for addr, data := range raw {
		snap, perr := compoundpi.ParseStatus(data)
		if perr != nil {
			continue
		}
		out[addr] = snap
	}
	return out, err
}

// Resolution issues RESOLUTION w,h.
func (e *Engine) Resolution(ctx context.Context, width, height int, targets ...net.IP) error {
	_, err := e.transact(ctx, "RESOLUTION", targets, itoa(width), itoa(height))
	return err
}

// Framerate issues FRAMERATE rate.
func (e *Engine) Framerate(ctx context.Context, rate compoundpi.Fraction, targets ...net.IP) error {
	_, err := e.transact(ctx, "FRAMERATE", targets, compoundpi.FormatFraction(rate))
	return err
}

// AWB issues AWB mode,red,blue.
func (e *Engine) AWB(ctx context.Context, mode string, red, blue compoundpi.Fraction, targets ...net.IP) error {
	_, err := e.transact(ctx, "AWB", targets, mode, compoundpi.FormatFraction(red), compoundpi.FormatFraction(blue))
	return err
}

// AGC issues AGC mode.
func (e *Engine) AGC(ctx context.Context, mode string, targets ...net.IP) error {
	_, err := e.transact(ctx, "AGC", targets, mode)
	return err
}

// Exposure issues EXPOSURE mode,speed.
func (e *Engine) Exposure(ctx context.Context, mode string, speedMs float64, targets ...net.IP) error {
	_, err := e.transact(ctx, "EXPOSURE", targets, mode, ftoa(speedMs))
	return err
}

// Metering issues METERING mode.
func (e *Engine) Metering(ctx context.Context, mode string, targets ...net.IP) error {
	_, err := e.transact(ctx, "METERING", targets, mode)
	return err
}

// ISO issues ISO iso. The parsed integer is passed straight through, per
// the resolution of the client-side do_iso ambiguity.
func (e *Engine) ISO(ctx context.Context, iso int, targets ...net.IP) error {
	_, err := e.transact(ctx, "ISO", targets, itoa(iso))
	return err
}

// Brightness issues BRIGHTNESS value.
func (e *Engine) Brightness(ctx context.Context, value int, targets ...net.IP) error {
	_, err := e.transact(ctx, "BRIGHTNESS", targets, itoa(value))
	return err
}

// Contrast issues CONTRAST value.
func (e *Engine) Contrast(ctx context.Context, value int, targets ...net.IP) error {
	_, err := e.transact(ctx, "CONTRAST", targets, itoa(value))
	return err
}

// Saturation issues SATURATION value.
func (e *Engine) Saturation(ctx context.Context, value int, targets ...net.IP) error {
	_, err := e.transact(ctx, "SATURATION", targets, itoa(value))
	return err
}

// EV issues EV value.
func (e *Engine) EV(ctx context.Context, value int, targets ...net.IP) error {
	_, err := e.transact(ctx, "EV", targets, itoa(value))
	return err
}

// Flip issues FLIP h,v.
func (e *Engine) Flip(ctx context.Context, horizontal, vertical bool, targets ...net.IP) error {
	_, err := e.transact(ctx, "FLIP", targets, compoundpi.FormatBool(horizontal), compoundpi.FormatBool(vertical))
	return err
}

// Denoise issues DENOISE value.
func (e *Engine) Denoise(ctx context.Context, value bool, targets ...net.IP) error {
	_, err := e.transact(ctx, "DENOISE", targets, compoundpi.FormatBool(value))
	return err
}

// Capture issues CAPTURE count,video_port,quality,sync.
func (e *Engine) Capture(ctx context.Context, count int, videoPort bool, quality int, sync float64, targets ...net.IP) error {
	_, err := e.transact(ctx, "CAPTURE", targets, itoa(count), compoundpi.FormatBool(videoPort), itoa(quality), ftoa(sync))
	return err
}

// Record issues RECORD length,format,quality,bitrate,intra_period,motion,sync.
func (e *Engine) Record(ctx context.Context, length float64, format string, quality, bitrate, intraPeriod int, motion bool, sync float64, targets ...net.IP) error {
	_, err := e.transact(ctx, "RECORD", targets,
		ftoa(length), format, itoa(quality), itoa(bitrate), itoa(intraPeriod), compoundpi.FormatBool(motion), ftoa(sync))
	return err
}

// List issues LIST and parses each responder's CSV lines.
func (e *Engine) List(ctx context.Context, targets ...net.IP) (map[string][]FileDescriptor, error) {
	raw, err := e.transact(ctx, "LIST", targets)
	out := make(map[string][]FileDescriptor, len(raw))
	for addr, data := range raw {
		if data == "" {
			out[addr] = nil
			continue
		}
		var files []FileDescriptor
		for _, line := range strings.Split(data, "\n") {
			fd, perr := parseFileDescriptor(line)
			if perr != nil {
				continue
			}
			files = append(files, fd)
		}
		out[addr] = files
	}
	return out, err
}

// Clear issues CLEAR.
func (e *Engine) Clear(ctx context.Context, targets ...net.IP) error {
	_, err := e.transact(ctx, "CLEAR", targets)
	return err
}

// Identify issues BLINK, flashing the LED on the targeted servers.
func (e *Engine) Identify(ctx context.Context, targets ...net.IP) error {
	_, err := e.transact(ctx, "BLINK", targets)
	return err
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }
func ftoa(f float64) string { return fmt.Sprintf("%g", f) }
