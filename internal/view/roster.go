package view

import (
	"slices"
	"strings"

	"htbot/internal/reading"
	"htbot/internal/upstream"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusUnknown = "unknown"
)

// Device is the last known state of one device bound to a destination.
type Device struct {
	ID          string
	Name        string // unit, or ID when unset
	Status      string // online, offline or unknown
	RawStatus   string
	LastUpdate  string // UTC+7, "-" when absent
	Temperature float64
	Humidity    float64
	HeatIndex   float64
	Flag        string
}

func (d Device) Online() bool { return d.Status == StatusOnline }

// Pill is the status indicator shown next to a device.
func (d Device) Pill() string {
	if d.Online() {
		return "🟢"
	}
	return "⚪️"
}

// Roster converts a status response into display records. Rows without an
// id are dropped. An unsuccessful response yields nil.
func Roster(resp upstream.StatusResponse) []Device {
	if resp.Err() != nil {
		return nil
	}
	out := make([]Device, 0, len(resp.Data))
	for _, row := range resp.Data {
		id := strings.TrimSpace(string(row.ID))
		if id == "" {
			continue
		}
		name := strings.TrimSpace(string(row.Unit))
		if name == "" {
			name = id
		}
		raw := strings.TrimSpace(string(row.Status))
		out = append(out, Device{
			ID:          id,
			Name:        name,
			Status:      normalizeStatus(raw),
			RawStatus:   raw,
			LastUpdate:  formatLastUpdate(string(row.LastUpdate)),
			Temperature: reading.SafeFloat(row.Temp),
			Humidity:    reading.SafeFloat(row.Humid),
			HeatIndex:   reading.SafeFloat(row.HIC),
			Flag:        string(row.Flag),
		})
	}
	OnlineFirst(out)
	return out
}

// OnlineFirst moves online devices ahead of the rest, keeping the relative
// order within each group. The store already sends them in this order, so
// on a well-behaved feed this is a no-op.
func OnlineFirst(devs []Device) {
	slices.SortStableFunc(devs, func(a, b Device) int {
		switch {
		case a.Online() == b.Online():
			return 0
		case a.Online():
			return -1
		default:
			return 1
		}
	})
}

// Select returns the requested device id when it is in devs, otherwise the
// default device (the first one). ok is false for an empty roster.
func Select(devs []Device, requested string) (Device, bool) {
	if len(devs) == 0 {
		return Device{}, false
	}
	if requested = strings.TrimSpace(requested); requested != "" {
		for _, d := range devs {
			if d.ID == requested {
				return d, true
			}
		}
	}
	return devs[0], true
}

func normalizeStatus(s string) string {
	switch strings.ToLower(s) {
	case StatusOnline:
		return StatusOnline
	case StatusOffline:
		return StatusOffline
	}
	return StatusUnknown
}

func formatLastUpdate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return "-"
	}
	return reading.FormatLocal(s)
}
