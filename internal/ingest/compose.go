package ingest

import (
	"fmt"
	"strings"

	"htbot/internal/reading"
)

type guidance struct {
	Water string
	Rest  string
	Glyph string
}

var tiers = map[reading.Flag]guidance{
	reading.FlagWhite:  {Water: "อย่างน้อย 0.5 ลิตร", Rest: "50/10 นาที", Glyph: "⚪⚪⚪"},
	reading.FlagGreen:  {Water: "อย่างน้อย 0.5 ลิตร", Rest: "50/10 นาที", Glyph: "🟢🟢🟢"},
	reading.FlagYellow: {Water: "อย่างน้อย 1 ลิตร", Rest: "45/15 นาที", Glyph: "🟡🟡🟡"},
	reading.FlagRed:    {Water: "อย่างน้อย 1 ลิตร", Rest: "30/30 นาที", Glyph: "🔴🔴🔴"},
	reading.FlagBlack:  {Water: "อย่างน้อย 1 ลิตร", Rest: "20/40 นาที", Glyph: "⚫⚫⚫"},
}

const placeholder = "-"

// FlagGlyph renders a flag as its three-glyph indicator, or verbatim when
// the flag is not a known tier.
func FlagGlyph(f reading.Flag) string {
	if f.Known() {
		return tiers[f].Glyph
	}
	return string(f)
}

// Compose renders the push message for r. It never fails: non-finite numbers
// render as 0.0 and unknown flags get placeholder guidance.
func Compose(displayName string, r reading.Reading) string {
	g := guidance{Water: placeholder, Rest: placeholder, Glyph: string(r.Flag)}
	if r.Flag.Known() {
		g = tiers[r.Flag]
	}
	lines := []string{
		"หน่วย: " + displayName,
		fmt.Sprintf("🌡อุณหภูมิ: %.1f °C", reading.SafeFloat(r.Temperature)),
		fmt.Sprintf("💧ความชื้น: %.1f %%RH", reading.SafeFloat(r.Humidity)),
		"-สัญญาณธงสี: " + g.Glyph,
		fmt.Sprintf("-รู้สึกเหมือน: %.1f °C", reading.SafeFloat(r.HeatIndex)),
		"-ฝึก/พัก: " + g.Rest,
		"-ดื่มน้ำ: " + g.Water,
	}
	return strings.Join(lines, "\n")
}
