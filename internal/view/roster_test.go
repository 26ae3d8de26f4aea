package view

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htbot/internal/reading"
	"htbot/internal/upstream"
	logx "htbot/pkg/logx"
)

func TestRosterMapsRows(t *testing.T) {
	devs := Roster(upstream.StatusResponse{Success: true, Data: []upstream.StatusRow{
		{ID: "HT-01", Unit: "Alpha", Status: "ONLINE", LastUpdate: "2025-11-17T22:24:02.000Z", Temp: 31.26, Humid: 0, HIC: 35, Flag: "green"},
		{ID: "", Unit: "ghost"},
		{ID: "HT-02", Status: "", LastUpdate: "-"},
	}})
	require.Len(t, devs, 2)

	a := devs[0]
	assert.Equal(t, "Alpha", a.Name)
	assert.Equal(t, StatusOnline, a.Status)
	assert.Equal(t, "11/18/25-05:24", a.LastUpdate)
	assert.Equal(t, reading.SafeFloat(31.26), a.Temperature)
	assert.Zero(t, a.Humidity)
	assert.Equal(t, "🟢", a.Pill())

	b := devs[1]
	assert.Equal(t, "HT-02", b.Name)
	assert.Equal(t, StatusUnknown, b.Status)
	assert.Equal(t, "-", b.LastUpdate)
	assert.Equal(t, "⚪️", b.Pill())
}

func TestRosterUnsuccessful(t *testing.T) {
	assert.Empty(t, Roster(upstream.StatusResponse{Success: false, Data: []upstream.StatusRow{{ID: "x"}}}))
}

func TestOnlineFirstIsStable(t *testing.T) {
	devs := []Device{
		{ID: "a", Status: StatusOffline},
		{ID: "b", Status: StatusOnline},
		{ID: "c", Status: StatusUnknown},
		{ID: "d", Status: StatusOnline},
	}
	OnlineFirst(devs)
	var ids []string
	for _, d := range devs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)

	already := []Device{{ID: "x", Status: StatusOnline}, {ID: "y", Status: StatusOffline}}
	OnlineFirst(already)
	assert.Equal(t, "x", already[0].ID)
}

func TestSelect(t *testing.T) {
	devs := []Device{{ID: "A"}, {ID: "B"}}
	d, ok := Select(devs, "B")
	assert.True(t, ok)
	assert.Equal(t, "B", d.ID)

	d, _ = Select(devs, "Z")
	assert.Equal(t, "A", d.ID)

	_, ok = Select(nil, "A")
	assert.False(t, ok)
}

func TestServiceStatusFailure(t *testing.T) {
	svc := New(&fakeSource{statusErr: errors.New("boom")}, logx.Nop())
	assert.Empty(t, svc.Status(context.Background(), "U1"))
}
