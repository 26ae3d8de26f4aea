package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"htbot/internal/eventbus"
	"htbot/internal/ingest"
	"htbot/internal/notifier"
	"htbot/internal/reading"
	"htbot/internal/upstream"
	"htbot/internal/view"
	logx "htbot/pkg/logx"
)

type fakeIngest struct {
	mu  sync.Mutex
	got []reading.Reading
	res ingest.Result
}

func (f *fakeIngest) Ingest(_ context.Context, r reading.Reading) ingest.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, r)
	return f.res
}

type fakeViews struct {
	devices []view.Device
	history view.HistoryView

	lastDest, lastDevice string
	lastPage             int
}

func (f *fakeViews) Status(_ context.Context, dest string) []view.Device {
	f.lastDest = dest
	return f.devices
}

func (f *fakeViews) History(_ context.Context, dest, deviceID string, page int) view.HistoryView {
	f.lastDest, f.lastDevice, f.lastPage = dest, deviceID, page
	return f.history
}

type fakeRegistry struct {
	list     upstream.DeviceList
	listErr  error
	cfg      upstream.ConfigResponse
	writeErr error
	subErr   error

	written []upstream.DeviceConfig
	subs    [][2]string
}

func (f *fakeRegistry) ListDevices(context.Context) (upstream.DeviceList, error) {
	return f.list, f.listErr
}

func (f *fakeRegistry) GetConfigByID(context.Context, string) (upstream.ConfigResponse, error) {
	return f.cfg, nil
}

func (f *fakeRegistry) WriteConfig(_ context.Context, dc upstream.DeviceConfig) (upstream.Ack, error) {
	f.written = append(f.written, dc)
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return upstream.Ack(`{"success":true}`), nil
}

func (f *fakeRegistry) AddSubscription(_ context.Context, id, dest string) (upstream.Ack, error) {
	f.subs = append(f.subs, [2]string{id, dest})
	if f.subErr != nil {
		return nil, f.subErr
	}
	return upstream.Ack(`{"success":true}`), nil
}

type harness struct {
	ingest   *fakeIngest
	views    *fakeViews
	registry *fakeRegistry
	bus      eventbus.Bus
	handler  http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ingest:   &fakeIngest{res: ingest.Result{Status: ingest.StatusOK, Pushes: []notifier.Outcome{notifier.Skip(ingest.SkipOffSchedule)}}},
		views:    &fakeViews{},
		registry: &fakeRegistry{},
		bus:      eventbus.New(),
	}
	callback := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("OK")) })
	s, err := New(Config{}, Deps{Ingest: h.ingest, Views: h.views, Registry: h.registry, Callback: callback, Bus: h.bus}, logx.Nop())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC) }
	h.handler = s.Handler()
	return h
}

func (h *harness) do(method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func sampleDevices() []view.Device {
	return []view.Device{
		{ID: "HT01", Name: "หน่วยฝึก A", Status: view.StatusOnline, LastUpdate: "06/01/25-12:00", Temperature: 31.24, Humidity: 60, HeatIndex: 35.04, Flag: "yellow"},
		{ID: "HT02", Name: "HT02", Status: view.StatusOffline, LastUpdate: "-"},
	}
}

func TestIngestRejectsMissingID(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, "/history", []byte(`{"temp": 30}`), "application/json")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var res ingest.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, ingest.StatusError, res.Status)
	assert.Empty(t, h.ingest.got)
}

func TestIngestRejectsBadJSON(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, "/history", []byte(`{not json`), "application/json")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, h.ingest.got)
}

func TestIngestRunsPipeline(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, "/history", []byte(`{"id":"HT01","temp":"31.5","humid":60,"hic":35,"timestamp":"2025-06-01T12:30:00+07:00"}`), "application/json")
	require.Equal(t, http.StatusOK, rr.Code)

	require.Len(t, h.ingest.got, 1)
	r := h.ingest.got[0]
	assert.Equal(t, "HT01", r.DeviceID)
	assert.Equal(t, 31.5, r.Temperature)
	assert.Equal(t, reading.DefaultFlag, r.Flag)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	pushes, ok := body["line_push_results"].([]any)
	require.True(t, ok)
	require.Len(t, pushes, 1)
	assert.Equal(t, "skipped", pushes[0].(map[string]any)["outcome"])
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
}

func TestPagesRequireLineID(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/status", "/history", "/register"} {
		t.Run(path, func(t *testing.T) {
			rr := h.do(http.MethodGet, path, nil, "")
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Contains(t, rr.Body.String(), "ไม่สามารถใช้งานหน้านี้ได้โดยตรง")
		})
	}
}

func TestStatusPage(t *testing.T) {
	h := newHarness(t)
	h.views.devices = sampleDevices()

	rr := h.do(http.MethodGet, "/status?line_id=U123", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Equal(t, "U123", h.views.lastDest)
	assert.Contains(t, body, "หน่วยฝึก A")
	assert.Contains(t, body, "31.2 °C")
	assert.Contains(t, body, "35.0 °C")
	assert.Contains(t, body, "🟢")
	assert.Contains(t, body, "06/01/25-12:00")
	assert.Less(t, strings.Index(body, "HT01"), strings.Index(body, "HT02"))
}

func TestStatusPageWithoutDevices(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/status?line_id=U123", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ยังไม่มีอุปกรณ์ที่ผูกกับห้องแชทนี้")
}

func historyView() view.HistoryView {
	devs := sampleDevices()
	rows := []view.Row{
		{DeviceID: "HT01", Local: "06/01/25-13:00", Temperature: 32, Humidity: 61, HeatIndex: 36, Flag: "red"},
		{DeviceID: "HT01", Local: "06/01/25-12:00", Temperature: 31, Humidity: 60, HeatIndex: 35, Flag: "yellow"},
	}
	return view.HistoryView{
		Devices:  devs,
		Selected: devs[0],
		Page: view.Page{
			DeviceID: "HT01", Rows: rows, Number: 2, Total: 3, Count: 450,
			Chart: view.Chart(rows),
		},
	}
}

func TestHistoryPage(t *testing.T) {
	h := newHarness(t)
	h.views.history = historyView()

	rr := h.do(http.MethodGet, "/history?line_id=U123&device_id=HT01&page=2", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "HT01", h.views.lastDevice)
	assert.Equal(t, 2, h.views.lastPage)

	body := rr.Body.String()
	assert.Contains(t, body, "หน้า 2 / 3")
	assert.Contains(t, body, "page=1")
	assert.Contains(t, body, "page=3")
	assert.Contains(t, body, `"labels":["06/01/25-12:00","06/01/25-13:00"]`)
	assert.Contains(t, body, `value="HT01" selected`)
	assert.Less(t, strings.Index(body, "<td>06/01/25-13:00</td>"), strings.Index(body, "<td>06/01/25-12:00</td>"))
}

func TestHistoryPageParamFallsBackToOne(t *testing.T) {
	h := newHarness(t)
	h.views.history = historyView()
	h.do(http.MethodGet, "/history?line_id=U1&page=abc", nil, "")
	assert.Equal(t, 1, h.views.lastPage)
}

func TestHistoryPageWithoutDevices(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/history?line_id=U123", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ยังไม่มีอุปกรณ์ที่ผูกกับห้องแชทนี้")
}

func TestHistoryExport(t *testing.T) {
	h := newHarness(t)
	h.views.history = historyView()

	rr := h.do(http.MethodGet, "/history/export?line_id=U123&device_id=HT01&page=2", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "history-HT01-p2.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("HT01")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "06/01/25-13:00", rows[1][0])
}

func TestHistoryExportWithoutDevices(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/history/export?line_id=U123", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRegisterStages(t *testing.T) {
	h := newHarness(t)
	h.registry.list = upstream.DeviceList{Success: true, Data: []reading.Text{"HT01", "HT02"}}
	h.registry.cfg = upstream.ConfigResponse{Success: true, Count: 1, Data: []upstream.ConfigRow{{ID: "HT01", Unit: "หน่วยฝึก A", AdjTemp: 0.5, AdjHumid: -1.2}}}

	rr := h.do(http.MethodGet, "/register?line_id=U123", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `name="device_id"`)
	assert.Contains(t, rr.Body.String(), "Step 1 / 2")

	rr = h.do(http.MethodGet, "/register?line_id=U123&device_id=HT99", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ไม่อยู่ในรายการอุปกรณ์ที่ระบบรู้จัก")

	rr = h.do(http.MethodGet, "/register?line_id=U123&device_id=HT01", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Step 2 / 2")
	assert.Contains(t, body, `value="หน่วยฝึก A"`)
	assert.Contains(t, body, `<option value="0.5" selected>`)
	assert.Contains(t, body, `<option value="-1.2" selected>`)
	assert.Contains(t, body, `name="line_chat_id" value="U123"`)
}

func TestRegisterAcceptsAnyDeviceWhenListUnavailable(t *testing.T) {
	h := newHarness(t)
	h.registry.listErr = errors.New("upstream down")
	rr := h.do(http.MethodGet, "/register?line_id=U123&device_id=HT99", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Step 2 / 2")
	assert.Contains(t, rr.Body.String(), `<option value="0.0" selected>`)
}

func registerForm() []byte {
	return []byte(url.Values{
		"device_id":    {"HT01"},
		"unit_name":    {"หน่วยฝึก A"},
		"adj_temp":     {"0.5"},
		"adj_humid":    {"-1.0"},
		"line_chat_id": {"U123"},
	}.Encode())
}

func TestRegisterSubmit(t *testing.T) {
	h := newHarness(t)
	ch, unsub := h.bus.Subscribe(4)
	defer unsub()

	rr := h.do(http.MethodPost, "/register", registerForm(), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "บันทึกการตั้งค่าเรียบร้อย")

	require.Len(t, h.registry.written, 1)
	assert.Equal(t, upstream.DeviceConfig{ID: "HT01", Unit: "หน่วยฝึก A", AdjTemp: 0.5, AdjHumid: -1}, h.registry.written[0])
	assert.Equal(t, [][2]string{{"HT01", "U123"}}, h.registry.subs)

	select {
	case ev := <-ch:
		require.Equal(t, eventbus.DeviceRegistered, ev.Type)
		reg := ev.Data.(eventbus.Registered)
		assert.Equal(t, "HT01", reg.DeviceID)
		assert.Equal(t, "U123", reg.Destination)
		assert.Empty(t, reg.ConfigErr)
	default:
		t.Fatal("expected a registration event")
	}
}

func TestRegisterSubmitFailuresAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.registry.writeErr = errors.New("sheet locked")

	rr := h.do(http.MethodPost, "/register", registerForm(), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "sheet locked")
	assert.Contains(t, body, "บันทึกการตั้งค่าไม่สำเร็จบางส่วน")
	assert.Len(t, h.registry.subs, 1, "subscription is attempted even when the config write fails")
}

func TestRegisterSubmitRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	form := url.Values{"device_id": {"HT01"}, "unit_name": {"A"}, "adj_temp": {"warm"}, "adj_humid": {"0"}, "line_chat_id": {"U1"}}
	rr := h.do(http.MethodPost, "/register", []byte(form.Encode()), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, h.registry.written)

	for _, v := range []string{"NaN", "Inf", "-inf"} {
		form.Set("adj_temp", "0")
		form.Set("adj_humid", v)
		rr = h.do(http.MethodPost, "/register", []byte(form.Encode()), "application/x-www-form-urlencoded")
		assert.Equal(t, http.StatusBadRequest, rr.Code, v)
		assert.Empty(t, h.registry.written, v)
	}
}

func TestParseAdj(t *testing.T) {
	f, err := parseAdj(" -1.5 ")
	require.NoError(t, err)
	assert.Equal(t, -1.5, f)
	for _, v := range []string{"NaN", "+Inf", "x"} {
		_, err := parseAdj(v)
		assert.Error(t, err, v)
	}
}

func TestCallbackAndHealth(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, "/callback", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = h.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(http.MethodDelete, "/history", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAdjOptions(t *testing.T) {
	opts := adjOptions(0)
	require.Len(t, opts, 101)
	assert.Equal(t, "-5.0", opts[0].Value)
	assert.Equal(t, "5.0", opts[100].Value)
	assert.True(t, opts[50].Selected)
	assert.Equal(t, "0.0", opts[50].Value)

	opts = adjOptions(7.5)
	require.Len(t, opts, 102)
	assert.Equal(t, option{Value: "7.5", Selected: true}, opts[0])
}

func TestRecoverMiddleware(t *testing.T) {
	h := withRecover(logx.Nop(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestTemplatesEmbedded(t *testing.T) {
	names, err := templateNames()
	require.NoError(t, err)
	assert.Len(t, names, len(pageNames)+1)
}
