package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"

	logx "htbot/pkg/logx"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names; each is a file under templates/ rendered inside layout.html.
const (
	pageNotice        = "notice"
	pageStatus        = "status"
	pageHistory       = "history"
	pageRegisterStart = "register_device"
	pageRegisterForm  = "register_form"
	pageRegisterDone  = "register_done"
)

var pageNames = []string{pageNotice, pageStatus, pageHistory, pageRegisterStart, pageRegisterForm, pageRegisterDone}

type pages struct {
	set map[string]*template.Template
}

var funcs = template.FuncMap{
	"f1": func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
	"historyURL": func(lineID, deviceID string, page int) string {
		q := url.Values{"line_id": {lineID}, "device_id": {deviceID}, "page": {strconv.Itoa(page)}}
		return "/history?" + q.Encode()
	},
	"exportURL": func(lineID, deviceID string, page int) string {
		q := url.Values{"line_id": {lineID}, "device_id": {deviceID}, "page": {strconv.Itoa(page)}}
		return "/history/export?" + q.Encode()
	},
}

func loadPages() (*pages, error) {
	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	p := &pages{set: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		p.set[name] = t
	}
	return p, nil
}

// templateNames lists the embedded files; used by tests.
func templateNames() ([]string, error) {
	return fs.Glob(templateFS, "templates/*.html")
}

// render executes into a buffer first so a template error never leaves a
// half-written page.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	t, ok := s.pages.set[name]
	if !ok {
		s.log.Error("unknown page", logx.String("page", name))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.log.Error("render failed", logx.String("page", name), logx.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// notice is the model of every informational card (missing line_id, no
// devices, unknown device, bad form input).
type notice struct {
	Title   string
	Badge   string
	Heading string
	Lines   []string
	Hint    string
	Tone    string // "", "warn" or "error"
}

func noLineID(command string) notice {
	return notice{
		Title:   "ไม่สามารถเปิดหน้านี้ได้โดยตรง",
		Badge:   "Device Monitor",
		Heading: "ไม่สามารถใช้งานหน้านี้ได้โดยตรง",
		Lines: []string{
			"กรุณากลับไปที่ห้องแชทของบอทนี้ แล้วพิมพ์คำสั่ง /ht",
			"จากนั้นเลือกเมนู " + command + " แล้วเปิดลิงก์ที่บอทส่งมาอีกครั้ง",
		},
		Hint: "ระบบต้องใช้ข้อมูลห้องแชทเพื่อเชื่อมกับอุปกรณ์และส่งแจ้งเตือนกลับได้อย่างถูกต้อง",
		Tone: "warn",
	}
}

func noDevices(what string) notice {
	return notice{
		Title:   "ยังไม่มีอุปกรณ์",
		Badge:   "No Device",
		Heading: "ยังไม่มีอุปกรณ์ที่ผูกกับห้องแชทนี้",
		Lines: []string{
			"กรุณาลงทะเบียนอุปกรณ์จากเมนูในห้องแชทนี้",
			"เพื่อผูก Device ID กับห้องแชท แล้วจึงกลับมาดู" + what + "อีกครั้ง",
		},
		Tone: "warn",
	}
}

func unknownDevice(id string) notice {
	return notice{
		Title:   "Device ID ไม่ถูกต้อง",
		Badge:   "Device Not Found",
		Heading: fmt.Sprintf("%q ไม่อยู่ในรายการอุปกรณ์ที่ระบบรู้จัก", id),
		Lines:   []string{"กรุณาตรวจสอบ Device ID อีกครั้ง"},
		Tone:    "error",
	}
}

func badInput(msg string) notice {
	return notice{Title: "ข้อมูลไม่ถูกต้อง", Badge: "Invalid Input", Heading: "ข้อมูลไม่ถูกต้อง", Lines: []string{msg}, Tone: "error"}
}
