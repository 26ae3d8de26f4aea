package ingest

import (
	"math"
	"strings"
	"testing"

	"htbot/internal/reading"
)

func TestComposeKnownTier(t *testing.T) {
	msg := Compose("หน่วยฝึก 1", reading.Reading{Temperature: 33.24, Humidity: 70, HeatIndex: 41.06, Flag: "yellow"})
	lines := strings.Split(msg, "\n")
	want := []string{
		"หน่วย: หน่วยฝึก 1",
		"🌡อุณหภูมิ: 33.2 °C",
		"💧ความชื้น: 70.0 %RH",
		"-สัญญาณธงสี: 🟡🟡🟡",
		"-รู้สึกเหมือน: 41.1 °C",
		"-ฝึก/พัก: 45/15 นาที",
		"-ดื่มน้ำ: อย่างน้อย 1 ลิตร",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), msg)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, lines[i], want[i])
		}
	}
}

func TestComposeFlagMatchesExactly(t *testing.T) {
	msg := Compose("x", reading.Reading{Flag: "red"})
	if !strings.Contains(msg, "🔴🔴🔴") || !strings.Contains(msg, "30/30 นาที") {
		t.Fatalf("unexpected message: %q", msg)
	}
	msg = Compose("x", reading.Reading{Flag: "RED"})
	if !strings.Contains(msg, "-สัญญาณธงสี: RED") || !strings.Contains(msg, "-ฝึก/พัก: -") || !strings.Contains(msg, "-ดื่มน้ำ: -") {
		t.Fatalf("upper-case flag should pass through verbatim: %q", msg)
	}
	if got := FlagGlyph("Yellow"); got != "Yellow" {
		t.Fatalf("FlagGlyph(Yellow)=%q", got)
	}
}

func TestComposeUnknownFlag(t *testing.T) {
	msg := Compose("x", reading.Reading{Flag: "purple"})
	if !strings.Contains(msg, "-สัญญาณธงสี: purple") {
		t.Fatalf("raw flag missing: %q", msg)
	}
	if !strings.Contains(msg, "-ฝึก/พัก: -") || !strings.Contains(msg, "-ดื่มน้ำ: -") {
		t.Fatalf("placeholders missing: %q", msg)
	}
}

func TestComposeNonFinite(t *testing.T) {
	msg := Compose("x", reading.Reading{Temperature: math.NaN(), Humidity: math.Inf(1), HeatIndex: reading.SafeFloat("garbage")})
	for _, want := range []string{"อุณหภูมิ: 0.0 °C", "ความชื้น: 0.0 %RH", "รู้สึกเหมือน: 0.0 °C"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("missing %q in %q", want, msg)
		}
	}
}

func TestFlagGlyph(t *testing.T) {
	if got := FlagGlyph("green"); got != "🟢🟢🟢" {
		t.Fatalf("got %q", got)
	}
	if got := FlagGlyph("OK"); got != "OK" {
		t.Fatalf("got %q", got)
	}
}
