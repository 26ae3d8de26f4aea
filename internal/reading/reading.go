// Package reading holds the sensor reading model shared by the ingestion
// pipeline and the read views, plus the lenient coercions applied to every
// value that crosses the wire.
package reading

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// Flag is the risk tier attached to a reading.
type Flag string

const (
	FlagWhite  Flag = "white"
	FlagGreen  Flag = "green"
	FlagYellow Flag = "yellow"
	FlagRed    Flag = "red"
	FlagBlack  Flag = "black"
)

// DefaultFlag is stored when a device omits the flag.
const DefaultFlag Flag = "OK"

// Known reports whether f is one of the tier values. Matching is exact:
// "Yellow" is not a tier and is displayed verbatim.
func (f Flag) Known() bool {
	switch f {
	case FlagWhite, FlagGreen, FlagYellow, FlagRed, FlagBlack:
		return true
	}
	return false
}

// Reading is one sample sent by a device. Immutable once appended upstream.
type Reading struct {
	DeviceID    string
	Timestamp   string // raw, may be empty (store stamps it)
	Temperature float64
	Humidity    float64
	HeatIndex   float64
	Flag        Flag
}

// Unparsable is the sentinel shown for timestamps that cannot be parsed.
const Unparsable = "unparsable"

// Location is the fixed UTC+7 zone used for every user-facing timestamp.
var Location = time.FixedZone("ICT", 7*60*60)

// LocalLayout renders timestamps as month/day/year-hour:minute.
const LocalLayout = "01/02/06-15:04"

var fallbackLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// ParseTime parses an ISO-8601 timestamp or epoch seconds.
// Timestamps without a zone are taken as UTC. ok is false when neither form
// matches.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Numbers are epoch seconds; iso8601 would read "2025" as a bare year.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, false
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	}
	if t, err := iso8601.ParseString(s); err == nil {
		return t, true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatLocal renders s in UTC+7. Unparsable input is returned unchanged.
func FormatLocal(s string) string {
	t, ok := ParseTime(s)
	if !ok {
		return s
	}
	return t.In(Location).Format(LocalLayout)
}

// SafeFloat coerces v to a finite float64; anything else yields 0.0.
func SafeFloat(v any) float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		f = p
	case Float:
		f = float64(x)
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Float is a float64 whose JSON decoding never fails: numbers and numeric
// strings are accepted, everything else decodes to 0.
type Float float64

func (f *Float) UnmarshalJSON(b []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		*f = 0
		return nil
	}
	*f = Float(SafeFloat(v))
	return nil
}

// Text is a string whose JSON decoding never fails: numbers and booleans are
// rendered, null and objects decode to "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		*t = ""
		return nil
	}
	*t = Text(Stringify(v))
	return nil
}

func (t Text) String() string { return string(t) }

// Stringify renders scalar JSON values as text; nil and containers give "".
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
