package view

import (
	"strings"

	"htbot/internal/reading"
	"htbot/internal/upstream"
)

// PageSize is the number of history rows per page.
const PageSize = 200

// Row is one history row ready for the table.
type Row struct {
	DeviceID    string
	Timestamp   string // raw
	Local       string // UTC+7; "" when the row has no timestamp
	Temperature float64
	Humidity    float64
	HeatIndex   float64
	Flag        string
}

// Series is the chart view of a page, oldest first.
type Series struct {
	Labels []string  `json:"labels"`
	Temp   []float64 `json:"temp"`
	Humid  []float64 `json:"humid"`
	HIC    []float64 `json:"hic"`
}

// Page is one window of a device's history.
type Page struct {
	DeviceID string
	Rows     []Row // newest first
	Number   int
	Total    int
	Count    int // rows for the device across all pages
	Chart    Series
}

func (p Page) HasPrev() bool { return p.Number > 1 }
func (p Page) HasNext() bool { return p.Number < p.Total }
func (p Page) Prev() int     { return p.Number - 1 }
func (p Page) Next() int     { return p.Number + 1 }

// FilterDevice keeps the rows of one device, in feed order.
func FilterDevice(rows []upstream.HistoryRow, deviceID string) []Row {
	var out []Row
	for _, r := range rows {
		if strings.TrimSpace(string(r.ID)) != deviceID {
			continue
		}
		ts := strings.TrimSpace(string(r.Timestamp))
		local := ""
		if ts != "" {
			local = reading.FormatLocal(ts)
		}
		out = append(out, Row{
			DeviceID:    deviceID,
			Timestamp:   ts,
			Local:       local,
			Temperature: reading.SafeFloat(r.Temp),
			Humidity:    reading.SafeFloat(r.Humid),
			HeatIndex:   reading.SafeFloat(r.HIC),
			Flag:        string(r.Flag),
		})
	}
	return out
}

// Paginate clamps page into [1, total] and returns that window of items.
// total is at least 1, even for an empty list.
func Paginate[T any](items []T, page, size int) (window []T, number, total int) {
	if size <= 0 {
		size = PageSize
	}
	total = max(1, (len(items)+size-1)/size)
	number = min(max(page, 1), total)
	start := min((number-1)*size, len(items))
	end := min(start+size, len(items))
	return items[start:end], number, total
}

// Chart maps a newest-first window to an oldest-first series.
func Chart(rows []Row) Series {
	s := Series{
		Labels: make([]string, 0, len(rows)),
		Temp:   make([]float64, 0, len(rows)),
		Humid:  make([]float64, 0, len(rows)),
		HIC:    make([]float64, 0, len(rows)),
	}
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		s.Labels = append(s.Labels, r.Local)
		s.Temp = append(s.Temp, r.Temperature)
		s.Humid = append(s.Humid, r.Humidity)
		s.HIC = append(s.HIC, r.HeatIndex)
	}
	return s
}

// BuildPage filters resp to deviceID and cuts the requested page.
// An unsuccessful response gives page 1 of 1 with no rows.
func BuildPage(resp upstream.HistoryResponse, deviceID string, page int) Page {
	var rows []Row
	if resp.Err() == nil {
		rows = FilterDevice(resp.Data, deviceID)
	}
	window, number, total := Paginate(rows, page, PageSize)
	return Page{
		DeviceID: deviceID,
		Rows:     window,
		Number:   number,
		Total:    total,
		Count:    len(rows),
		Chart:    Chart(window),
	}
}
