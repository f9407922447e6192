package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"traceviz/internal/duration"
	"traceviz/internal/metrics"
	"traceviz/internal/models"
	"traceviz/internal/parser"
	"traceviz/internal/state"
	"traceviz/internal/timeline"
)

//go:embed static/* templates/*.html
var embeddedAssets embed.FS

const maxTraceBytes = 10 << 20

// Server wraps HTTP serving of the trace viewer pages, API and live updates.
type Server struct {
	httpServer *http.Server
	store      *state.Store
	staticFS   fs.FS
	pages      *template.Template
	logger     *slog.Logger
}

// New creates a configured HTTP server for the viewer.
func New(addr string, store *state.Store, logger *slog.Logger) *Server {
	staticFS, err := fs.Sub(embeddedAssets, "static")
	if err != nil {
		panic("static assets missing: " + err.Error())
	}
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		store:      store,
		staticFS:   staticFS,
		pages:      template.Must(template.New("pages").Funcs(funcMap).ParseFS(embeddedAssets, "templates/*.html")),
		logger:     logger,
	}
	s.registerRoutes(mux)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.staticFS))))
	mux.HandleFunc("/trace", s.handleTraceForm)
	mux.HandleFunc("/trace/clear", s.handleClearForm)
	mux.HandleFunc("/api/trace", s.handleTrace)
	mux.HandleFunc("/api/timeline", s.handleTimeline)
	mux.HandleFunc("/api/steps/", s.handleStep)
	mux.HandleFunc("/api/ws", s.handleLive)
}

// timelineView is the header, summary and layout of the loaded trace.
type timelineView struct {
	Name        string                `json:"name"`
	ExecutionID string                `json:"durableExecutionId"`
	Status      string                `json:"status"`
	RawStatus   string                `json:"rawStatus"`
	Version     uint32                `json:"version"`
	Payload     string                `json:"payload"`
	Duration    string                `json:"duration"`
	Summary     models.TraceSummary   `json:"summary"`
	Layout      models.TimelineLayout `json:"layout"`
}

func buildTimelineView(trace models.DurableTrace) timelineView {
	return timelineView{
		Name:        trace.Name,
		ExecutionID: trace.DurableExecutionID,
		Status:      trace.DisplayStatus(),
		RawStatus:   trace.Status,
		Version:     trace.Version,
		Payload:     trace.PayloadText(),
		Duration:    duration.FormatTrace(trace),
		Summary:     metrics.Summarize(trace),
		Layout:      timeline.Build(trace),
	}
}

// stepView is the detail panel content of one step.
type stepView struct {
	StepID      string `json:"durableStepId"`
	ScheduledAt string `json:"scheduledAt"`
	CompletedAt string `json:"completedAt"`
	Result      string `json:"result"`
	InTask      string `json:"inTaskInfo"`
	OutTask     string `json:"outTaskInfo"`
}

func buildStepView(step models.StepTrace) stepView {
	return stepView{
		StepID:      step.DurableStepID,
		ScheduledAt: step.ScheduledAtText(),
		CompletedAt: step.CompletedAtText(),
		Result:      step.ResultText(),
		InTask:      step.InTaskText(),
		OutTask:     step.OutTaskText(),
	}
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		trace, ok := s.store.Current()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, trace)
	case http.MethodPost, http.MethodPut:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTraceBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
			return
		}
		trace, err := s.store.LoadTextTrace(string(body))
		if err != nil {
			s.writeLoadError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, buildTimelineView(trace))
	case http.MethodDelete:
		s.store.Clear()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
	}
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
		return
	}
	trace, ok := s.store.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, buildTimelineView(trace))
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
		return
	}
	id, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/api/steps/"))
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "step id is required")
		return
	}
	trace, ok := s.store.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no trace loaded")
		return
	}
	step, ok := trace.Step(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown step "+id)
		return
	}
	writeJSON(w, http.StatusOK, buildStepView(step))
}

func (s *Server) writeLoadError(w http.ResponseWriter, err error) {
	var perr *parser.ParseError
	if errors.As(err, &perr) {
		writeError(w, http.StatusBadRequest, perr.Kind.String(), perr.Message)
		return
	}
	s.logger.Error("load trace", "error", err)
	writeError(w, http.StatusInternalServerError, "storage", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{
		"kind":  kind,
		"error": message,
	})
}
