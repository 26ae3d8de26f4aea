package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"htbot/internal/reading"
	"htbot/internal/view"
	logx "htbot/pkg/logx"
)

type statusModel struct {
	LineID  string
	Now     string
	Devices []view.Device
}

type historyModel struct {
	LineID string
	View   view.HistoryView
}

func lineID(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("line_id"))
}

// pageParam reads ?page=; anything unparsable is page 1 and the paginator
// clamps the rest.
func pageParam(r *http.Request) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("page")))
	if err != nil {
		return 1
	}
	return n
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	dest := lineID(r)
	if dest == "" {
		s.render(w, http.StatusOK, pageNotice, noLineID("สถานะ"))
		return
	}
	devs := s.deps.Views.Status(r.Context(), dest)
	if len(devs) == 0 {
		s.render(w, http.StatusOK, pageNotice, noDevices("สถานะ"))
		return
	}
	s.render(w, http.StatusOK, pageStatus, statusModel{
		LineID:  dest,
		Now:     s.now().In(reading.Location).Format(reading.LocalLayout),
		Devices: devs,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	dest := lineID(r)
	if dest == "" {
		s.render(w, http.StatusOK, pageNotice, noLineID("ประวัติ"))
		return
	}
	hv := s.deps.Views.History(r.Context(), dest, strings.TrimSpace(r.URL.Query().Get("device_id")), pageParam(r))
	if hv.Empty() {
		s.render(w, http.StatusOK, pageNotice, noDevices("ประวัติ"))
		return
	}
	s.render(w, http.StatusOK, pageHistory, historyModel{LineID: dest, View: hv})
}

// handleExport serves the same page as the history view as a workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	dest := lineID(r)
	if dest == "" {
		s.render(w, http.StatusBadRequest, pageNotice, noLineID("ประวัติ"))
		return
	}
	hv := s.deps.Views.History(r.Context(), dest, strings.TrimSpace(r.URL.Query().Get("device_id")), pageParam(r))
	if hv.Empty() {
		s.render(w, http.StatusNotFound, pageNotice, noDevices("ประวัติ"))
		return
	}
	name := fmt.Sprintf("history-%s-p%d.xlsx", safeFileName(hv.Page.DeviceID), hv.Page.Number)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := view.WriteXLSX(w, hv.Page); err != nil {
		// Headers are gone by now; the client sees a truncated file.
		s.log.Error("history export failed", logx.String("device", hv.Page.DeviceID), logx.Err(err))
	}
}

func safeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "device"
	}
	return b.String()
}
