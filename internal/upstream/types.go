package upstream

import (
	"encoding/json"
	"errors"
	"time"

	"htbot/internal/reading"
)

// ErrUnsuccessful is returned when a response parses but reports success=false.
var ErrUnsuccessful = errors.New("upstream reported success=false")

// Config configures the store client.
type Config struct {
	BaseURL string
	Timeout time.Duration // applied to every call; 0 means 15s
}

// DeviceConfig is one row of the config sheet.
type DeviceConfig struct {
	ID       string  `json:"id"`
	Unit     string  `json:"unit"`
	AdjTemp  float64 `json:"adj_temp"`
	AdjHumid float64 `json:"adj_humid"`
}

// ConfigRow is the lenient wire form of a config row.
type ConfigRow struct {
	ID       reading.Text  `json:"id"`
	Unit     reading.Text  `json:"unit"`
	AdjTemp  reading.Float `json:"adj_temp"`
	AdjHumid reading.Float `json:"adj_humid"`
}

type ConfigResponse struct {
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Data    []ConfigRow `json:"data"`
}

// First returns the first config row when the lookup succeeded.
func (r ConfigResponse) First() (ConfigRow, bool) {
	if !r.Success || len(r.Data) == 0 {
		return ConfigRow{}, false
	}
	return r.Data[0], true
}

type DeviceList struct {
	Success bool           `json:"success"`
	Data    []reading.Text `json:"data"`
}

// IDs returns the non-empty device ids in upstream order.
func (l DeviceList) IDs() []string {
	out := make([]string, 0, len(l.Data))
	for _, id := range l.Data {
		if id != "" {
			out = append(out, string(id))
		}
	}
	return out
}

// HistoryRow is one appended reading as returned by the history actions.
type HistoryRow struct {
	ID        reading.Text  `json:"id"`
	Timestamp reading.Text  `json:"timestamp"`
	Temp      reading.Float `json:"temp"`
	Humid     reading.Float `json:"humid"`
	HIC       reading.Float `json:"hic"`
	Flag      reading.Text  `json:"flag"`
}

type HistoryResponse struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Data    []HistoryRow `json:"data"`
}

// StatusRow is a device's last known state as computed by the store.
type StatusRow struct {
	ID         reading.Text  `json:"id"`
	Unit       reading.Text  `json:"unit"`
	Status     reading.Text  `json:"status"`
	LastUpdate reading.Text  `json:"lastupdate"`
	Temp       reading.Float `json:"temp"`
	Humid      reading.Float `json:"humid"`
	HIC        reading.Float `json:"hic"`
	Flag       reading.Text  `json:"flag"`
}

type StatusResponse struct {
	Success bool        `json:"success"`
	Data    []StatusRow `json:"data"`
}

// Ack is the raw acknowledgement body of a write action, passed through to
// callers unchanged.
type Ack = json.RawMessage

// Err reports an unsuccessful status lookup.
func (r StatusResponse) Err() error {
	if !r.Success {
		return ErrUnsuccessful
	}
	return nil
}

// Err reports an unsuccessful history lookup.
func (r HistoryResponse) Err() error {
	if !r.Success {
		return ErrUnsuccessful
	}
	return nil
}
