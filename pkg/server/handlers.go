package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/waveform-computing/compoundpi"
)

func handleBlink(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	if d.blink != nil {
		d.blink.stop()
	}
	d.blink = startBlink(d.cam)
	return "", nil
}

func handleStatus(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	snap := compoundpi.StatusSnapshot{
		Camera:    d.cam.State(),
		Timestamp: d.timestamp(),
		Files:     d.store.Len(),
	}
	return compoundpi.RenderStatus(snap), nil
}

func handleResolution(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	w, h := p.Int("width"), p.Int("height")
	if w <= 0 || h <= 0 {
		return "", fmt.Errorf("resolution must be positive, got %dx%d", w, h)
	}
	d.cam.Configure(func(s *compoundpi.CameraState) {
		s.Resolution = compoundpi.Resolution{Width: w, Height: h}
	})
	return "", nil
}

func handleFramerate(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	rate := p.Fraction("rate")
	d.cam.Configure(func(s *compoundpi.CameraState) { s.Framerate = rate })
	return "", nil
}

func handleAWB(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	mode := p.String("mode")
	red, blue := p.Fraction("red"), p.Fraction("blue")
	d.cam.Configure(func(s *compoundpi.CameraState) {
		s.AWB = compoundpi.AWBState{Mode: mode, Red: red, Blue: blue}
	})
	return "", nil
}

func handleAGC(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	mode := p.String("mode")
	d.cam.Configure(func(s *compoundpi.CameraState) { s.AGC.Mode = mode })
	return "", nil
}

func handleExposure(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	mode := p.String("mode")
	speed := p.Float("speed")
	d.cam.Configure(func(s *compoundpi.CameraState) {
		s.Exposure = compoundpi.ExposureState{Mode: mode, SpeedMs: speed}
	})
	return "", nil
}

func handleMetering(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	mode := p.String("mode")
	d.cam.Configure(func(s *compoundpi.CameraState) { s.Metering = mode })
	return "", nil
}

func handleISO(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	value := p.Int("iso")
	d.cam.Configure(func(s *compoundpi.CameraState) { s.ISO = value })
	return "", nil
}

func handleBrightness(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	value := p.Int("value")
	d.cam.Configure(func(s *compoundpi.CameraState) { s.Brightness = value })
	return "", nil
}

func handleContrast(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	value := p.Int("value")
	d.cam.Configure(func(s *compoundpi.CameraState) { s.Contrast = value })
	return "", nil
}

func handleSaturation(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	value := p.Int("value")
	d.cam.Configure(func(s *compoundpi.CameraState) { s.Saturation = value })
	return "", nil
}

func handleEV(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	value := p.Int("value")
	d.cam.Configure(func(s *compoundpi.CameraState) { s.EV = value })
	return "", nil
}

func handleFlip(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	h, v := p.Bool("horizontal"), p.Bool("vertical")
	d.cam.Configure(func(s *compoundpi.CameraState) { s.Flip = compoundpi.Flip{Horizontal: h, Vertical: v} })
	return "", nil
}

func handleDenoise(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	value := p.Bool("value")
	d.cam.Configure(func(s *compoundpi.CameraState) { s.Denoise = value })
	return "", nil
}

func handleCapture(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	count := p.Int("count")
	videoPort := p.Bool("video_port")
	quality := p.Int("quality")
	sync := p.Float("sync")

	if err := d.waitForSync(ctx, sync); err != nil {
		return "", err
	}

	frames, err := d.cam.CaptureSequence(count, videoPort, quality)
	if err != nil {
		return "", err
	}
	ts := d.timestamp()
	for _, frame := range frames {
		d.store.Append(FileRecord{Type: compoundpi.FileImage, Timestamp: ts, Payload: frame})
	}
	return "", nil
}

func handleRecord(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	length := p.Float("length")
	format := p.String("format")
	quality := p.Int("quality")
	bitrate := p.Int("bitrate")
	intraPeriod := p.Int("intra_period")
	motion := p.Bool("motion")
	sync := p.Float("sync")

	if motion && format != "h264" {
		return "", fmt.Errorf("motion output requires format h264, got %q", format)
	}
	if err := d.waitForSync(ctx, sync); err != nil {
		return "", err
	}

	video, motionData, err := d.cam.Record(
		time.Duration(length*float64(time.Second)), format, quality, bitrate, intraPeriod, motion)
	if err != nil {
		return "", err
	}
	ts := d.timestamp()
	d.store.Append(FileRecord{Type: compoundpi.FileVideo, Timestamp: ts, Payload: video})
	if motionData != nil {
		d.store.Append(FileRecord{Type: compoundpi.FileMotion, Timestamp: ts, Payload: motionData})
	}
	return "", nil
}

func handleSend(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	index := p.Int("index")
	port := p.Int("port")
	rec, ok := d.store.Get(index)
	if !ok {
		return "", fmt.Errorf("no file at index %d", index)
	}
	go sendFile(from.IP, port, rec, d.logger)
	return "", nil
}

func handleList(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	files := d.store.List()
	lines := make([]string, len(files))
	for i, rec := range files {
		lines[i] = compoundpi.FormatCSVLine(rec.Type, i, rec.Timestamp, len(rec.Payload))
	}
	return strings.Join(lines, "\n"), nil
}

func handleClear(ctx context.Context, d *Dispatcher, p compoundpi.Params, from *net.UDPAddr) (string, error) {
	d.store.Clear()
	return "", nil
}
