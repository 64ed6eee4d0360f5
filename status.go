package compoundpi

import (
	"fmt"
	"strconv"
	"strings"
)

// statusKeys is the fixed line order §4.5 requires.
var statusKeys = []string{
	"RESOLUTION", "FRAMERATE", "AWB", "AGC", "EXPOSURE", "ISO", "METERING",
	"BRIGHTNESS", "CONTRAST", "SATURATION", "EV", "FLIP", "DENOISE",
	"TIMESTAMP", "FILES",
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RenderStatus renders the fixed 15-line STATUS payload (§4.5). Both the
// server (producing it) and the client (parsing it back with ParseStatus)
// depend on this exact layout.
func RenderStatus(s StatusSnapshot) string {
	lines := []string{
		fmt.Sprintf("RESOLUTION %d,%d", s.Camera.Resolution.Width, s.Camera.Resolution.Height),
		fmt.Sprintf("FRAMERATE %s", FormatFraction(s.Camera.Framerate)),
		fmt.Sprintf("AWB %s,%s,%s", s.Camera.AWB.Mode, FormatFraction(s.Camera.AWB.Red), FormatFraction(s.Camera.AWB.Blue)),
		fmt.Sprintf("AGC %s,%s,%s", s.Camera.AGC.Mode, FormatFraction(s.Camera.AGC.Analog), FormatFraction(s.Camera.AGC.Digital)),
		fmt.Sprintf("EXPOSURE %s,%s", s.Camera.Exposure.Mode, formatFloat(s.Camera.Exposure.SpeedMs)),
		fmt.Sprintf("ISO %d", s.Camera.ISO),
		fmt.Sprintf("METERING %s", s.Camera.Metering),
		fmt.Sprintf("BRIGHTNESS %d", s.Camera.Brightness),
		fmt.Sprintf("CONTRAST %d", s.Camera.Contrast),
		fmt.Sprintf("SATURATION %d", s.Camera.Saturation),
		fmt.Sprintf("EV %d", s.Camera.EV),
		fmt.Sprintf("FLIP %s,%s", FormatBool(s.Camera.Flip.Horizontal), FormatBool(s.Camera.Flip.Vertical)),
		fmt.Sprintf("DENOISE %s", FormatBool(s.Camera.Denoise)),
		fmt.Sprintf("TIMESTAMP %s", formatFloat(s.Timestamp)),
		fmt.Sprintf("FILES %d", s.Files),
	}
	return strings.Join(lines, "\n")
}

// ParseStatus parses a STATUS OK payload back into a StatusSnapshot,
// rejecting anything that deviates from the fixed 15-line shape.
func ParseStatus(data string) (StatusSnapshot, error) {
	lines := strings.Split(strings.TrimRight(data, "\n"), "\n")
	if len(lines) != len(statusKeys) {
		return StatusSnapshot{}, fmt.Errorf("%w: status must have %d lines, got %d", ErrBadFraming, len(statusKeys), len(lines))
	}
	fields := make(map[string][]string, len(lines))
	for i, line := range lines {
		key, rest, ok := strings.Cut(line, " ")
		if !ok || key != statusKeys[i] {
			return StatusSnapshot{}, fmt.Errorf("%w: expected %s line, got %q", ErrBadFraming, statusKeys[i], line)
		}
		fields[key] = strings.Split(rest, ",")
	}

	var s StatusSnapshot
	var err error
	if s.Camera.Resolution.Width, err = parseInt(fields["RESOLUTION"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.Resolution.Height, err = parseInt(fields["RESOLUTION"], 1); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.Framerate, err = parseFractionField(fields["FRAMERATE"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	s.Camera.AWB.Mode = field(fields["AWB"], 0)
	if s.Camera.AWB.Red, err = parseFractionField(fields["AWB"], 1); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.AWB.Blue, err = parseFractionField(fields["AWB"], 2); err != nil {
		return StatusSnapshot{}, err
	}
	s.Camera.AGC.Mode = field(fields["AGC"], 0)
	if s.Camera.AGC.Analog, err = parseFractionField(fields["AGC"], 1); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.AGC.Digital, err = parseFractionField(fields["AGC"], 2); err != nil {
		return StatusSnapshot{}, err
	}
	s.Camera.Exposure.Mode = field(fields["EXPOSURE"], 0)
	if s.Camera.Exposure.SpeedMs, err = parseFloatField(fields["EXPOSURE"], 1); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.ISO, err = parseInt(fields["ISO"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	s.Camera.Metering = field(fields["METERING"], 0)
	if s.Camera.Brightness, err = parseInt(fields["BRIGHTNESS"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.Contrast, err = parseInt(fields["CONTRAST"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.Saturation, err = parseInt(fields["SATURATION"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.EV, err = parseInt(fields["EV"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.Flip.Horizontal, err = parseBoolField(fields["FLIP"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.Flip.Vertical, err = parseBoolField(fields["FLIP"], 1); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Camera.Denoise, err = parseBoolField(fields["DENOISE"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Timestamp, err = parseFloatField(fields["TIMESTAMP"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	if s.Files, err = parseInt(fields["FILES"], 0); err != nil {
		return StatusSnapshot{}, err
	}
	return s, nil
}

func field(parts []string, i int) string {
	if i >= len(parts) {
		return ""
	}
	return parts[i]
}

func parseInt(parts []string, i int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(field(parts, i)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadFraming, err)
	}
	return n, nil
}

func parseFloatField(parts []string, i int) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(field(parts, i)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadFraming, err)
	}
	return f, nil
}

func parseBoolField(parts []string, i int) (bool, error) {
	switch strings.TrimSpace(field(parts, i)) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: expected 0 or 1", ErrBadFraming)
	}
}

func parseFractionField(parts []string, i int) (Fraction, error) {
	return parseFraction(field(parts, i))
}

// FormatCSVLine renders one LIST entry (§4.3, "<type>,<index>,<ts>,<size>").
func FormatCSVLine(t FileType, index int, timestamp float64, size int) string {
	return fmt.Sprintf("%s,%d,%s,%d", t, index, formatFloat(timestamp), size)
}
