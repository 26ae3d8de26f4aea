package view

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"htbot/internal/reading"
	"htbot/internal/upstream"
	logx "htbot/pkg/logx"
)

// feed returns n rows for device, newest first, interleaved with another
// device's rows.
func feed(device string, n int) []upstream.HistoryRow {
	var rows []upstream.HistoryRow
	for i := 0; i < n; i++ {
		rows = append(rows, upstream.HistoryRow{
			ID:        reading.Text(device),
			Timestamp: reading.Text(fmt.Sprintf("2025-11-17T%02d:%02d:00Z", 23-(i/60)%24, 59-i%60)),
			Temp:      reading.Float(float64(i)),
			Humid:     50,
			HIC:       reading.Float(float64(i) + 0.5),
			Flag:      "green",
		})
		if i%3 == 0 {
			rows = append(rows, upstream.HistoryRow{ID: "OTHER", Timestamp: "2025-11-17T00:00:00Z", Temp: 99})
		}
	}
	return rows
}

func TestPaginateClamps(t *testing.T) {
	items := make([]int, 450)
	for i := range items {
		items[i] = i
	}
	cases := []struct {
		page, number, first, size int
	}{
		{0, 1, 0, 200},
		{-5, 1, 0, 200},
		{1, 1, 0, 200},
		{2, 2, 200, 200},
		{3, 3, 400, 50},
		{99, 3, 400, 50},
	}
	for _, tc := range cases {
		w, number, total := Paginate(items, tc.page, PageSize)
		if total != 3 {
			t.Fatalf("total=%d", total)
		}
		if number != tc.number || len(w) != tc.size || w[0] != tc.first {
			t.Fatalf("page %d: number=%d len=%d first=%d", tc.page, number, len(w), w[0])
		}
	}
}

func TestPaginateEmpty(t *testing.T) {
	w, number, total := Paginate([]int(nil), 7, PageSize)
	if len(w) != 0 || number != 1 || total != 1 {
		t.Fatalf("got len=%d number=%d total=%d", len(w), number, total)
	}
	_, _, total = Paginate(make([]int, 200), 1, PageSize)
	if total != 1 {
		t.Fatalf("exact page: total=%d", total)
	}
	_, _, total = Paginate(make([]int, 201), 1, PageSize)
	if total != 2 {
		t.Fatalf("one over: total=%d", total)
	}
}

func TestBuildPageWindowAndChart(t *testing.T) {
	resp := upstream.HistoryResponse{Success: true, Data: feed("HT-01", 450)}
	p := BuildPage(resp, "HT-01", 2)

	require.Equal(t, 3, p.Total)
	require.Equal(t, 2, p.Number)
	require.Equal(t, 450, p.Count)
	require.Len(t, p.Rows, 200)

	all := FilterDevice(resp.Data, "HT-01")
	assert.Equal(t, all[200:400], p.Rows)

	require.Len(t, p.Chart.Temp, 200)
	for i := range p.Rows {
		j := len(p.Rows) - 1 - i
		assert.Equal(t, p.Rows[i].Temperature, p.Chart.Temp[j])
		assert.Equal(t, p.Rows[i].HeatIndex, p.Chart.HIC[j])
		assert.Equal(t, p.Rows[i].Local, p.Chart.Labels[j])
	}
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())
}

func TestFilterDeviceKeepsFeedOrder(t *testing.T) {
	rows := []upstream.HistoryRow{
		{ID: "A", Timestamp: "2025-11-17T10:00:00Z", Temp: 1},
		{ID: "B", Timestamp: "2025-11-17T12:00:00Z", Temp: 2},
		{ID: "A", Timestamp: "2025-11-17T11:00:00Z", Temp: 3},
		{ID: "A", Timestamp: "", Temp: 0},
		{ID: "A", Timestamp: "yesterday", Temp: 4},
	}
	got := FilterDevice(rows, "A")
	require.Len(t, got, 4)
	assert.Equal(t, []float64{1, 3, 0, 4}, []float64{got[0].Temperature, got[1].Temperature, got[2].Temperature, got[3].Temperature})
	assert.Equal(t, "11/17/25-17:00", got[0].Local)
	assert.Equal(t, "", got[2].Local)
	assert.Equal(t, "yesterday", got[3].Local)
}

func TestBuildPageUnsuccessful(t *testing.T) {
	p := BuildPage(upstream.HistoryResponse{Success: false, Data: feed("A", 10)}, "A", 3)
	assert.Empty(t, p.Rows)
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, 1, p.Total)
	assert.Empty(t, p.Chart.Labels)
	assert.False(t, p.HasPrev())
	assert.False(t, p.HasNext())
}

type fakeSource struct {
	status    upstream.StatusResponse
	statusErr error
	hist      upstream.HistoryResponse
	histErr   error
	histCalls int
}

func (f *fakeSource) CurrentStatus(ctx context.Context, dest string) (upstream.StatusResponse, error) {
	return f.status, f.statusErr
}

func (f *fakeSource) History(ctx context.Context, dest string) (upstream.HistoryResponse, error) {
	f.histCalls++
	return f.hist, f.histErr
}

func twoDevices() upstream.StatusResponse {
	return upstream.StatusResponse{Success: true, Data: []upstream.StatusRow{
		{ID: "HT-01", Unit: "Alpha", Status: "online"},
		{ID: "HT-02", Status: "offline"},
	}}
}

func TestServiceHistorySelection(t *testing.T) {
	hist := append(feed("HT-01", 5), feed("HT-02", 3)...)
	src := &fakeSource{status: twoDevices(), hist: upstream.HistoryResponse{Success: true, Data: hist}}
	svc := New(src, logx.Nop())

	v := svc.History(context.Background(), "U1", "HT-02", 1)
	assert.Equal(t, "HT-02", v.Selected.ID)
	assert.Equal(t, 3, v.Page.Count)

	v = svc.History(context.Background(), "U1", "NOT-MINE", 1)
	assert.Equal(t, "HT-01", v.Selected.ID)
	assert.Equal(t, 5, v.Page.Count)

	v = svc.History(context.Background(), "U1", "", 1)
	assert.Equal(t, "HT-01", v.Selected.ID)
}

func TestServiceHistoryFailures(t *testing.T) {
	src := &fakeSource{statusErr: errors.New("timeout")}
	v := New(src, logx.Nop()).History(context.Background(), "U1", "", 4)
	assert.True(t, v.Empty())
	assert.Equal(t, 1, v.Page.Number)
	assert.Equal(t, 1, v.Page.Total)
	assert.Zero(t, src.histCalls)

	src = &fakeSource{status: twoDevices(), histErr: errors.New("timeout")}
	v = New(src, logx.Nop()).History(context.Background(), "U1", "", 4)
	assert.False(t, v.Empty())
	assert.Empty(t, v.Page.Rows)
	assert.Equal(t, 1, v.Page.Total)
}

func TestServiceHistoryIsDeterministic(t *testing.T) {
	src := &fakeSource{status: twoDevices(), hist: upstream.HistoryResponse{Success: true, Data: feed("HT-01", 450)}}
	svc := New(src, logx.Nop())

	a, err := json.Marshal(svc.History(context.Background(), "U1", "HT-01", 3))
	require.NoError(t, err)
	b, err := json.Marshal(svc.History(context.Background(), "U1", "HT-01", 3))
	require.NoError(t, err)
	if !bytes.Equal(a, b) {
		t.Fatalf("output differs between identical calls")
	}
}

func TestWriteXLSX(t *testing.T) {
	p := BuildPage(upstream.HistoryResponse{Success: true, Data: feed("HT-01", 3)}, "HT-01", 1)
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, p))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("HT-01")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, exportHeaders, rows[0])
	assert.Equal(t, p.Rows[0].Local, rows[1][0])
	assert.Equal(t, "green", rows[1][4])
}

func TestChartEmptyIsNotNull(t *testing.T) {
	b, err := json.Marshal(Chart(nil))
	require.NoError(t, err)
	if !reflect.DeepEqual(string(b), `{"labels":[],"temp":[],"humid":[],"hic":[]}`) {
		t.Fatalf("got %s", b)
	}
}
