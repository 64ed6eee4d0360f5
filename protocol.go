package compoundpi

import (
	"fmt"
	"strconv"
	"strings"
)

// ParamKind is the typed-parser tag the codec uses for each command
// parameter (§4.2). The command set is small and fixed, so this is a closed
// enum rather than open polymorphism, per the design notes.
type ParamKind uint8

const (
	ParamInt ParamKind = iota
	ParamFraction
	ParamFloat
	ParamBool
	ParamEnum
)

// ParamSpec describes one positional parameter: its name, its parser kind,
// and an optional default rendering used when the value is omitted from a
// trailing position (§4.2, "Default values are allowed for trailing
// parameters").
type ParamSpec struct {
	Name    string
	Kind    ParamKind
	Default *string
}

// CommandSpec is one command's name and ordered parameter list. The full
// table lives in commandTable.
type CommandSpec struct {
	Name   string
	Params []ParamSpec
}

func strPtr(s string) *string { return &s }

// commandTable is the closed registry of (name, parser, param-count) the
// codec and dispatcher both consult (§4.3, §9 "Dynamic dispatch over
// commands").
var commandTable = map[string]CommandSpec{
	"HELLO": {Name: "HELLO", Params: []ParamSpec{
		{Name: "timestamp", Kind: ParamFloat},
	}},
	"ACK":    {Name: "ACK"},
	"BLINK":  {Name: "BLINK"},
	"STATUS": {Name: "STATUS"},
	"RESOLUTION": {Name: "RESOLUTION", Params: []ParamSpec{
		{Name: "width", Kind: ParamInt},
		{Name: "height", Kind: ParamInt},
	}},
	"FRAMERATE": {Name: "FRAMERATE", Params: []ParamSpec{
		{Name: "rate", Kind: ParamFraction},
	}},
	"AWB": {Name: "AWB", Params: []ParamSpec{
		{Name: "mode", Kind: ParamEnum},
		{Name: "red", Kind: ParamFraction, Default: strPtr("1/1")},
		{Name: "blue", Kind: ParamFraction, Default: strPtr("1/1")},
	}},
	"AGC": {Name: "AGC", Params: []ParamSpec{
		{Name: "mode", Kind: ParamEnum},
	}},
	"EXPOSURE": {Name: "EXPOSURE", Params: []ParamSpec{
		{Name: "mode", Kind: ParamEnum},
		{Name: "speed", Kind: ParamFloat},
	}},
	"METERING": {Name: "METERING", Params: []ParamSpec{
		{Name: "mode", Kind: ParamEnum},
	}},
	"ISO": {Name: "ISO", Params: []ParamSpec{
		{Name: "iso", Kind: ParamInt},
	}},
	"BRIGHTNESS": {Name: "BRIGHTNESS", Params: []ParamSpec{{Name: "value", Kind: ParamInt}}},
	"CONTRAST":   {Name: "CONTRAST", Params: []ParamSpec{{Name: "value", Kind: ParamInt}}},
	"SATURATION": {Name: "SATURATION", Params: []ParamSpec{{Name: "value", Kind: ParamInt}}},
	"EV":         {Name: "EV", Params: []ParamSpec{{Name: "value", Kind: ParamInt}}},
	"FLIP": {Name: "FLIP", Params: []ParamSpec{
		{Name: "horizontal", Kind: ParamBool},
		{Name: "vertical", Kind: ParamBool},
	}},
	"DENOISE": {Name: "DENOISE", Params: []ParamSpec{{Name: "value", Kind: ParamBool}}},
	"CAPTURE": {Name: "CAPTURE", Params: []ParamSpec{
		{Name: "count", Kind: ParamInt, Default: strPtr("1")},
		{Name: "video_port", Kind: ParamBool, Default: strPtr("0")},
		{Name: "quality", Kind: ParamInt, Default: strPtr("0")},
		{Name: "sync", Kind: ParamFloat, Default: strPtr("0")},
	}},
	"RECORD": {Name: "RECORD", Params: []ParamSpec{
		{Name: "length", Kind: ParamFloat},
		{Name: "format", Kind: ParamEnum, Default: strPtr("h264")},
		{Name: "quality", Kind: ParamInt, Default: strPtr("0")},
		{Name: "bitrate", Kind: ParamInt, Default: strPtr("17000000")},
		{Name: "intra_period", Kind: ParamInt, Default: strPtr("0")},
		{Name: "motion", Kind: ParamBool, Default: strPtr("0")},
		{Name: "sync", Kind: ParamFloat, Default: strPtr("0")},
	}},
	"SEND": {Name: "SEND", Params: []ParamSpec{
		{Name: "index", Kind: ParamInt},
		{Name: "port", Kind: ParamInt},
	}},
	"LIST":  {Name: "LIST"},
	"CLEAR": {Name: "CLEAR"},
}

// LookupCommand returns the schema for a command name, or ErrUnknownCommand.
func LookupCommand(name string) (CommandSpec, error) {
	spec, ok := commandTable[name]
	if !ok {
		return CommandSpec{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return spec, nil
}

// Params is the typed result of parsing a command's parameter list, keyed
// by ParamSpec.Name.
type Params map[string]any

func (p Params) Int(name string) int         { v, _ := p[name].(int); return v }
func (p Params) Float(name string) float64   { v, _ := p[name].(float64); return v }
func (p Params) Bool(name string) bool       { v, _ := p[name].(bool); return v }
func (p Params) String(name string) string   { v, _ := p[name].(string); return v }
func (p Params) Fraction(name string) Fraction {
	v, _ := p[name].(Fraction)
	return v
}

// ParseParams parses the comma-separated raw values of a command into typed
// Params, applying trailing defaults and enforcing the parameter count.
func ParseParams(spec CommandSpec, raw []string) (Params, error) {
	if len(raw) > len(spec.Params) {
		return nil, fmt.Errorf("%w: %s takes at most %d parameter(s), got %d", ErrParamCount, spec.Name, len(spec.Params), len(raw))
	}
	out := make(Params, len(spec.Params))
	for i, ps := range spec.Params {
		var text string
		if i < len(raw) {
			text = raw[i]
		} else if ps.Default != nil {
			text = *ps.Default
		} else {
			return nil, fmt.Errorf("%w: %s missing required parameter %q", ErrParamCount, spec.Name, ps.Name)
		}
		value, err := parseParam(ps.Kind, text)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", spec.Name, ps.Name, err)
		}
		out[ps.Name] = value
	}
	return out, nil
}

func parseParam(kind ParamKind, text string) (any, error) {
	switch kind {
	case ParamInt:
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrParamType, text)
		}
		return n, nil
	case ParamFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrParamType, text)
		}
		return f, nil
	case ParamBool:
		switch strings.TrimSpace(text) {
		case "0":
			return false, nil
		case "1":
			return true, nil
		default:
			return nil, fmt.Errorf("%w: bool must be 0 or 1, got %q", ErrParamType, text)
		}
	case ParamEnum:
		t := strings.TrimSpace(text)
		if t == "" || t != strings.ToLower(t) {
			return nil, fmt.Errorf("%w: enum must be lowercase, got %q", ErrParamFormat, text)
		}
		return t, nil
	case ParamFraction:
		return parseFraction(text)
	default:
		return nil, fmt.Errorf("%w: unhandled parameter kind", ErrParamType)
	}
}

func parseFraction(text string) (Fraction, error) {
	text = strings.TrimSpace(text)
	numStr, denStr, ok := strings.Cut(text, "/")
	if !ok {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Fraction{}, fmt.Errorf("%w: %q", ErrParamType, text)
		}
		return NewFraction(uint32(f*1000), 1000)
	}
	num, err1 := strconv.ParseUint(numStr, 10, 32)
	den, err2 := strconv.ParseUint(denStr, 10, 32)
	if err1 != nil || err2 != nil {
		return Fraction{}, fmt.Errorf("%w: %q", ErrParamType, text)
	}
	return NewFraction(uint32(num), uint32(den))
}

// FormatFraction renders a Fraction the way the wire format expects it:
// numerator/denominator, locale-independent.
func FormatFraction(f Fraction) string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

// FormatBool renders a boolean as the protocol's 0/1 token (§4.2).
func FormatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Request is the decoded form of one request line (§4.2).
type Request struct {
	Seqno   uint32
	Command string
	Raw     []string
}

// EncodeRequest renders a request line. Parameters are not quoted: the
// protocol guarantees no value contains a comma or newline.
func EncodeRequest(seqno uint32, command string, params ...string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", seqno, command)
	if len(params) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(params, ","))
	}
	return []byte(b.String())
}

// DecodeRequest parses a raw datagram into its seqno, command name, and raw
// comma-separated parameter strings. It does not apply the per-command
// schema; call ParseParams with the looked-up CommandSpec for that.
func DecodeRequest(data []byte) (Request, error) {
	line := strings.TrimRight(string(data), "\r\n \t")
	seqField, rest, ok := strings.Cut(line, " ")
	if !ok {
		seqField, rest = line, ""
	}
	seqno, err := strconv.ParseUint(seqField, 10, 32)
	if err != nil {
		return Request{}, fmt.Errorf("%w: bad sequence number %q", ErrBadFraming, seqField)
	}
	rest = strings.TrimLeft(rest, " ")
	command, paramStr, _ := strings.Cut(rest, " ")
	command = strings.TrimSpace(command)
	if command == "" {
		return Request{}, fmt.Errorf("%w: missing command", ErrBadFraming)
	}
	for _, r := range command {
		if r < 'A' || r > 'Z' {
			return Request{}, fmt.Errorf("%w: command must be uppercase letters, got %q", ErrBadFraming, command)
		}
	}
	var raw []string
	if paramStr != "" {
		raw = strings.Split(paramStr, ",")
	}
	return Request{Seqno: uint32(seqno), Command: command, Raw: raw}, nil
}

// Response is the decoded form of a response datagram (§4.2).
type Response struct {
	Seqno uint32
	OK    bool
	Data  string
}

// EncodeOK renders a successful response, with optional LF-separated data.
func EncodeOK(seqno uint32, data string) []byte {
	if data == "" {
		return []byte(fmt.Sprintf("%d OK", seqno))
	}
	return []byte(fmt.Sprintf("%d OK\n%s", seqno, data))
}

// EncodeError renders a failure response; message is mandatory (§4.3 table,
// every ERROR response carries a description).
func EncodeError(seqno uint32, message string) []byte {
	return []byte(fmt.Sprintf("%d ERROR\n%s", seqno, message))
}

// DecodeResponse parses a raw datagram into a Response, failing on
// malformed framing (§7, bad-response warning).
func DecodeResponse(data []byte) (Response, error) {
	text := string(data)
	head, tail, hasData := strings.Cut(text, "\n")
	seqField, status, ok := strings.Cut(head, " ")
	if !ok {
		return Response{}, fmt.Errorf("%w: missing status", ErrBadFraming)
	}
	seqno, err := strconv.ParseUint(seqField, 10, 32)
	if err != nil {
		return Response{}, fmt.Errorf("%w: bad sequence number %q", ErrBadFraming, seqField)
	}
	status = strings.TrimSpace(status)
	var ok2 bool
	switch status {
	case "OK":
		ok2 = true
	case "ERROR":
		ok2 = false
	default:
		return Response{}, fmt.Errorf("%w: status must be OK or ERROR, got %q", ErrBadFraming, status)
	}
	data2 := ""
	if hasData {
		data2 = tail
	}
	return Response{Seqno: uint32(seqno), OK: ok2, Data: data2}, nil
}
