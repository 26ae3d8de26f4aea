package web

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"htbot/internal/eventbus"
	"htbot/internal/reading"
	"htbot/internal/upstream"
	logx "htbot/pkg/logx"
)

// Offsets offered by the register form, in tenths.
const (
	adjMinTenths = -50
	adjMaxTenths = 50
)

type option struct {
	Value    string
	Selected bool
}

type registerStartModel struct {
	LineID string
}

type registerFormModel struct {
	LineID       string
	DeviceID     string
	Unit         string
	TempOptions  []option
	HumidOptions []option
}

type registerDoneModel struct {
	OK       bool
	DeviceID string
	Unit     string
	AdjTemp  string
	AdjHumid string
	LineID   string
	Detail   string
}

// adjOptions lists -5.0 to 5.0 in 0.1 steps with def selected. A default
// outside that range is kept as an extra first option.
func adjOptions(def float64) []option {
	want := strconv.FormatFloat(def, 'f', 1, 64)
	if want == "-0.0" {
		want = "0.0"
	}
	out := make([]option, 0, adjMaxTenths-adjMinTenths+2)
	found := false
	for t := adjMinTenths; t <= adjMaxTenths; t++ {
		v := strconv.FormatFloat(float64(t)/10, 'f', 1, 64)
		sel := v == want
		found = found || sel
		out = append(out, option{Value: v, Selected: sel})
	}
	if !found {
		out = slices.Insert(out, 0, option{Value: want, Selected: true})
	}
	return out
}

// handleRegisterForm is the two-stage register page: ask for a device id,
// then show its settings pre-filled from the config sheet.
func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	dest := lineID(r)
	if dest == "" {
		s.render(w, http.StatusOK, pageNotice, noLineID("ลงทะเบียน"))
		return
	}
	deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
	if deviceID == "" {
		s.render(w, http.StatusOK, pageRegisterStart, registerStartModel{LineID: dest})
		return
	}

	ctx := r.Context()
	log := s.log.With(logx.String("device", deviceID), logx.String("destination", dest))

	// An empty or failed device list does not block registration.
	list, err := s.deps.Registry.ListDevices(ctx)
	if err != nil {
		log.Warn("list devices failed", logx.Err(err))
	} else if known := list.IDs(); list.Success && len(known) > 0 && !slices.Contains(known, deviceID) {
		s.render(w, http.StatusOK, pageNotice, unknownDevice(deviceID))
		return
	}

	model := registerFormModel{LineID: dest, DeviceID: deviceID}
	var adjTemp, adjHumid float64
	cfg, err := s.deps.Registry.GetConfigByID(ctx, deviceID)
	if err != nil {
		log.Warn("config lookup failed", logx.Err(err))
	} else if row, ok := cfg.First(); ok {
		model.Unit = strings.TrimSpace(string(row.Unit))
		adjTemp = reading.SafeFloat(row.AdjTemp)
		adjHumid = reading.SafeFloat(row.AdjHumid)
	}
	model.TempOptions = adjOptions(adjTemp)
	model.HumidOptions = adjOptions(adjHumid)
	s.render(w, http.StatusOK, pageRegisterForm, model)
}

// handleRegisterSubmit writes the device config and the subscription. Each
// write is attempted regardless of the other and both results are shown.
func (s *Server) handleRegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, pageNotice, badInput("ไม่สามารถอ่านข้อมูลฟอร์มได้"))
		return
	}
	dest := strings.TrimSpace(r.PostForm.Get("line_chat_id"))
	if dest == "" {
		s.render(w, http.StatusOK, pageNotice, noLineID("ลงทะเบียน"))
		return
	}
	dc := upstream.DeviceConfig{
		ID:   strings.TrimSpace(r.PostForm.Get("device_id")),
		Unit: strings.TrimSpace(r.PostForm.Get("unit_name")),
	}
	if dc.ID == "" || dc.Unit == "" {
		s.render(w, http.StatusBadRequest, pageNotice, badInput("กรุณากรอก Device ID และหน่วยให้ครบ"))
		return
	}
	var err error
	if dc.AdjTemp, err = parseAdj(r.PostForm.Get("adj_temp")); err != nil {
		s.render(w, http.StatusBadRequest, pageNotice, badInput("ค่าชดเชยอุณหภูมิไม่ถูกต้อง"))
		return
	}
	if dc.AdjHumid, err = parseAdj(r.PostForm.Get("adj_humid")); err != nil {
		s.render(w, http.StatusBadRequest, pageNotice, badInput("ค่าชดเชยความชื้นไม่ถูกต้อง"))
		return
	}

	start := s.now()
	ctx := r.Context()
	log := s.log.With(logx.String("device", dc.ID), logx.String("destination", dest))
	ev := eventbus.Registered{DeviceID: dc.ID, Destination: dest}

	detail := map[string]any{}
	if ack, err := s.deps.Registry.WriteConfig(ctx, dc); err != nil {
		log.Error("write config failed", logx.Err(err))
		ev.ConfigErr = err.Error()
		detail["config_result"] = map[string]string{"error": err.Error()}
	} else {
		detail["config_result"] = rawOrNull(ack)
	}
	if ack, err := s.deps.Registry.AddSubscription(ctx, dc.ID, dest); err != nil {
		log.Error("add subscription failed", logx.Err(err))
		ev.SubErr = err.Error()
		detail["subscription_result"] = map[string]string{"error": err.Error()}
	} else {
		detail["subscription_result"] = rawOrNull(ack)
	}
	ev.Took = s.now().Sub(start)
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(eventbus.Event{Type: eventbus.DeviceRegistered, Time: time.Now(), Data: ev})
	}

	ok := ev.ConfigErr == "" && ev.SubErr == ""
	if ok {
		log.Info("device registered")
	}
	b, _ := json.MarshalIndent(detail, "", "  ")
	s.render(w, http.StatusOK, pageRegisterDone, registerDoneModel{
		OK:       ok,
		DeviceID: dc.ID,
		Unit:     dc.Unit,
		AdjTemp:  strconv.FormatFloat(dc.AdjTemp, 'f', 1, 64),
		AdjHumid: strconv.FormatFloat(dc.AdjHumid, 'f', 1, 64),
		LineID:   dest,
		Detail:   string(b),
	})
}

var errNotFinite = errors.New("offset must be a finite number")

func parseAdj(raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

func rawOrNull(ack upstream.Ack) json.RawMessage {
	if len(ack) == 0 || !json.Valid(ack) {
		return json.RawMessage("null")
	}
	return json.RawMessage(ack)
}
