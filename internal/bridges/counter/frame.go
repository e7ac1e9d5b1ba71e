package counter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-counter/internal/device"
)

// Wire protocol constants.
const (
	frameStart = '['
	frameEnd   = ']'

	// responseFields is the header token plus nine data fields.
	responseFields = 10

	// maxFrameLen bounds the receive buffer. A full response is under 60 bytes.
	maxFrameLen = 256

	// DefaultLineEnding terminates every outgoing frame.
	DefaultLineEnding = "\r"

	queryTemplate = "[0000 BTR ]"
)

// Reading is a decoded snapshot of sensor state. It is a value type and is
// never modified after the parser or simulator builds it.
type Reading struct {
	device.CounterState

	// CapturedAt is when the response was received.
	CapturedAt time.Time `json:"captured_at"`

	// Raw is the frame text as received, for diagnostics.
	Raw string `json:"raw,omitempty"`
}

// ResetScope selects which counters a reset clears.
type ResetScope int

const (
	ResetCurrent ResetScope = iota + 1
	ResetEntries
	ResetExits
	ResetAll
)

var resetTemplates = map[ResetScope]string{
	ResetCurrent: "[0000 BTC ]",
	ResetEntries: "[0000 BTI ]",
	ResetExits:   "[0000 BTD ]",
}

var scopeNames = map[ResetScope]string{
	ResetCurrent: "current",
	ResetEntries: "entries",
	ResetExits:   "exits",
	ResetAll:     "all",
}

// String returns the scope name used in commands and the API.
func (s ResetScope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// ParseResetScope converts "current", "entries", "exits" or "all".
func ParseResetScope(name string) (ResetScope, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for scope, n := range scopeNames {
		if n == name {
			return scope, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidScope, name)
}

// resetSequence expands a scope into single-frame scopes in wire order.
func resetSequence(scope ResetScope) ([]ResetScope, error) {
	switch scope {
	case ResetAll:
		return []ResetScope{ResetCurrent, ResetEntries, ResetExits}, nil
	case ResetCurrent, ResetEntries, ResetExits:
		return []ResetScope{scope}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidScope, int(scope))
	}
}

// EncodeQuery returns the read-state frame with its line ending.
func EncodeQuery(lineEnding string) []byte {
	return []byte(queryTemplate + lineEnding)
}

// EncodeReset returns the frame for a single-counter scope. ResetAll has
// no frame of its own; it is sent as three frames by the codec.
func EncodeReset(scope ResetScope, lineEnding string) ([]byte, error) {
	tmpl, ok := resetTemplates[scope]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no single frame", ErrInvalidScope, scope)
	}
	return []byte(tmpl + lineEnding), nil
}

// ParseFrame decodes a response frame. Bytes before the last '[' that
// precedes the first ']' are treated as line noise and skipped.
//
// Fields are positional: header, entries, exits, current, output1, output2,
// count-enabled, button, sensor-health, limit-exceeded. Numbers that fail
// to parse decode as zero; booleans are true when nonzero.
func ParseFrame(text string) (Reading, error) {
	end := strings.IndexByte(text, frameEnd)
	if end < 0 {
		return Reading{}, fmt.Errorf("%w: no terminator", ErrMalformedFrame)
	}
	start := strings.LastIndexByte(text[:end], frameStart)
	if start < 0 {
		return Reading{}, fmt.Errorf("%w: no start marker", ErrMalformedFrame)
	}

	raw := text[start : end+1]
	fields := strings.Split(raw[1:len(raw)-1], ",")
	if len(fields) < responseFields {
		return Reading{}, fmt.Errorf("%w: %d fields, want %d", ErrMalformedFrame, len(fields), responseFields)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	return Reading{
		CounterState: device.CounterState{
			Entries:       parseCount(fields[1]),
			Exits:         parseCount(fields[2]),
			Current:       parseCount(fields[3]),
			Output1:       parseFlag(fields[4]),
			Output2:       parseFlag(fields[5]),
			CountEnabled:  parseFlag(fields[6]),
			Button:        parseFlag(fields[7]),
			SensorHealthy: parseFlag(fields[8]),
			LimitExceeded: parseFlag(fields[9]),
		},
		Raw: raw,
	}, nil
}

// FormatFrame renders a reading in the device's response layout.
func FormatFrame(r Reading) string {
	s := r.CounterState
	return fmt.Sprintf("[0000 BTW ,%06d,%06d,%06d,%d,%d,%d,%d,%d,%d]",
		s.Entries, s.Exits, s.Current,
		flagDigit(s.Output1), flagDigit(s.Output2), flagDigit(s.CountEnabled),
		flagDigit(s.Button), flagDigit(s.SensorHealthy), flagDigit(s.LimitExceeded),
	)
}

func parseCount(field string) uint32 {
	n, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

func parseFlag(field string) bool {
	n, err := strconv.ParseInt(field, 10, 64)
	return err == nil && n != 0
}

func flagDigit(b bool) int {
	if b {
		return 1
	}
	return 0
}
