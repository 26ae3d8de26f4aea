package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"htbot/internal/eventbus"
	"htbot/internal/ingest"
	"htbot/internal/reading"
	"htbot/internal/upstream"
	"htbot/internal/view"
	logx "htbot/pkg/logx"
)

type Config struct {
	Addr            string
	PublicBaseURL   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Ingester runs the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, r reading.Reading) ingest.Result
}

// Views builds the read-only page models.
type Views interface {
	Status(ctx context.Context, destination string) []view.Device
	History(ctx context.Context, destination, deviceID string, page int) view.HistoryView
}

// Registry is the slice of the upstream store the register flow needs.
type Registry interface {
	ListDevices(ctx context.Context) (upstream.DeviceList, error)
	GetConfigByID(ctx context.Context, id string) (upstream.ConfigResponse, error)
	WriteConfig(ctx context.Context, dc upstream.DeviceConfig) (upstream.Ack, error)
	AddSubscription(ctx context.Context, id, destination string) (upstream.Ack, error)
}

// Deps are the collaborators of the server. Callback and Bus may be nil.
type Deps struct {
	Ingest   Ingester
	Views    Views
	Registry Registry
	Callback http.Handler
	Bus      eventbus.Bus
}

type Server struct {
	cfg   Config
	deps  Deps
	log   logx.Logger
	pages *pages
	now   func() time.Time
}

func New(cfg Config, deps Deps, log logx.Logger) (*Server, error) {
	if deps.Ingest == nil || deps.Views == nil || deps.Registry == nil {
		return nil, errors.New("web: ingest, views and registry are required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":8000"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p, err := loadPages()
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, deps: deps, log: log, pages: p, now: time.Now}, nil
}

// Handler returns the routed handler with logging and panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /history", s.handleIngest)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /history/export", s.handleExport)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /register", s.handleRegisterForm)
	mux.HandleFunc("POST /register", s.handleRegisterSubmit)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if s.deps.Callback != nil {
		mux.Handle("POST /callback", s.deps.Callback)
	}
	return withRecover(s.log, withRequestLog(s.log, mux))
}

// Run serves until ctx ends, then drains in-flight requests for up to
// ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       90 * time.Second,
	}
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		if err := srv.Shutdown(cctx); err != nil {
			s.log.Warn("web shutdown incomplete", logx.Err(err))
		}
		cancel()
	}()

	s.log.Info("web server started", logx.String("addr", ln.Addr().String()), logx.String("public_base_url", s.cfg.PublicBaseURL))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("web server exited unexpectedly")
	}
	return err
}
