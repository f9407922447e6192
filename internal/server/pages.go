package server

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"traceviz/internal/parser"
)

var funcMap = template.FuncMap{
	"pct": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
	"statusClass": func(status string) string {
		return "status-" + status
	},
	"durationClass": func(text string) string {
		if len(text) > 50 {
			return "duration-small"
		}
		return "duration"
	},
}

type pageData struct {
	Timeline *timelineView
	Step     *stepView
	Payload  string
	Error    string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var data pageData
	if trace, ok := s.store.Current(); ok {
		view := buildTimelineView(trace)
		data.Timeline = &view
		if id := r.URL.Query().Get("step"); id != "" {
			if step, ok := trace.Step(id); ok {
				detail := buildStepView(step)
				data.Step = &detail
			}
		}
	}
	s.renderPage(w, http.StatusOK, data)
}

func (s *Server) handleTraceForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxTraceBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	payload := r.PostFormValue("payload")

	if err := s.store.LoadText(payload); err != nil {
		var perr *parser.ParseError
		if !errors.As(err, &perr) {
			s.logger.Error("load trace", "error", err)
			http.Error(w, "could not persist trace", http.StatusInternalServerError)
			return
		}
		s.logger.Debug("rejected trace", "kind", perr.Kind.String(), "error", perr.Message)
		s.renderPage(w, http.StatusBadRequest, pageData{Payload: payload, Error: perr.Message})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleClearForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.store.Clear()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, "index.html", data); err != nil {
		s.logger.Error("render page", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
