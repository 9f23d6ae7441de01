package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"storagesim/internal/metrics"
	"storagesim/internal/sim"
	"storagesim/internal/state"
)

const shutdownTimeout = 5 * time.Second

// Source exposes the progress of a run. *sim.Simulator implements it.
type Source interface {
	Info() sim.RunInfo
	Status() sim.Status
	States() []state.SystemState
}

type Server struct {
	src     Source
	metrics *metrics.Recorder
	tpl     *template.Template
}

//go:embed templates/index.html
var content embed.FS

func NewServer(src Source, rec *metrics.Recorder) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{src: src, metrics: rec, tpl: tpl}
}

// Handler returns the admin routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/states", s.handleStates)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Warn("admin shutdown", "error", err)
		}
	}()
	slog.Info("admin UI listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := struct {
		Info   sim.RunInfo
		Status sim.Status
		States []state.SystemState
	}{
		Info:   s.src.Info(),
		Status: s.src.Status(),
		States: s.src.States(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		slog.Error("render admin index", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.src.Status())
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	states := s.src.States()
	if states == nil {
		states = []state.SystemState{}
	}
	writeJSON(w, states)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode admin response", "error", err)
	}
}
