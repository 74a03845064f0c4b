package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"slotcal/internal/config"
	"slotcal/internal/drag"
	"slotcal/internal/grid"
	"slotcal/internal/ics"
	appLog "slotcal/internal/log"
	"slotcal/internal/model"
	"slotcal/internal/popover"
	"slotcal/internal/reconcile"
	"slotcal/internal/view"
)

// Calendar is the view state the server renders and mutates.
type Calendar interface {
	State() view.State
	Events() []model.Event
	Disabled() reconcile.DisabledIndex
	Lookup(id string) (model.Event, bool)
	Relocate(ev model.Event, start, end time.Time) error
	SetSelection(start, end time.Time) (view.Selection, error)
	ClearSelection()
	OnChange(fn func(view.State)) (unsubscribe func())
}

// Server serves the calendar page, its JSON API and the page-session
// websocket that drives drag gestures.
type Server struct {
	cfg *config.Config
	cal Calendar
	loc *time.Location
	mux *http.ServeMux
	now func() time.Time
}

//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, cal Calendar, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg: cfg,
		cal: cal,
		loc: loc,
		mux: http.NewServeMux(),
		now: time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="slotcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handlePage)
	s.mux.HandleFunc("GET /calendar", s.handlePage)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/popover", s.handlePopover)
	s.mux.HandleFunc("POST /api/selection", s.handleSelection)
	s.mux.HandleFunc("DELETE /api/selection", s.handleClearSelection)
	s.mux.HandleFunc("GET /calendar.ics", s.handleICS)
	s.mux.HandleFunc("GET /ws/page", s.handlePageSession)
	s.mux.Handle("GET /static/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded assets under /static/.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static assets not available", http.StatusServiceUnavailable)
		})
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// gridOptions builds the render options for state and an optional drag
// projection.
func (s *Server) gridOptions(st view.State, proj drag.Projection) grid.Options {
	today := model.StartOfDay(s.now().In(s.loc))
	opts := grid.Options{
		FirstMonth: today,
		Months:     s.cfg.VisibleMonths,
		WeekStart:  s.cfg.Weekday(),
		Today:      today,
		Disabled:   st.Disabled,
		Projection: proj,
		Draggable:  st.Connected,
		Location:   s.loc,
	}
	if s.cfg.MinDateToday {
		opts.MinDate = today
	}
	return opts
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	st := s.cal.State()
	page := s.pageData(st, drag.Projection{})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "page", page); err != nil {
		appLog.Error("render page failed", err)
	}
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events          []model.Event          `json:"events"`
	Disabled        []reconcile.Interval   `json:"disabled"`
	Diagnostics     []reconcile.Diagnostic `json:"diagnostics,omitempty"`
	Selection       *view.Selection        `json:"selection,omitempty"`
	Connected       bool                   `json:"connected"`
	Version         uint64                 `json:"version"`
	UpdatedAt       time.Time              `json:"updated_at"`
	DisplayTimeZone string                 `json:"display_timezone"`
	WeekStart       string                 `json:"week_start"`
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	st := s.cal.State()
	resp := eventsResponse{
		Events:          st.Events,
		Disabled:        st.Disabled.Intervals(),
		Diagnostics:     st.Diagnostics,
		Connected:       st.Connected,
		Version:         st.Version,
		UpdatedAt:       st.UpdatedAt,
		DisplayTimeZone: s.loc.String(),
		WeekStart:       s.cfg.WeekStart,
	}
	if resp.Events == nil {
		resp.Events = []model.Event{}
	}
	if !st.Selection.IsZero() {
		sel := st.Selection
		resp.Selection = &sel
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePopover returns the busy events blocking ?date=YYYY-MM-DD.
func (s *Server) handlePopover(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("date")
	if _, err := model.ParseDateKey(key, s.loc); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	d, ok := popover.NewSurface(s.cal, s.loc).Lookup(key)
	if !ok {
		writeError(w, http.StatusNotFound, "date is not blocked")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type selectionRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	start, err := model.ParseDateKey(req.Start, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	end := start
	if req.End != "" {
		if end, err = model.ParseDateKey(req.End, s.loc); err != nil {
			writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return
		}
	}
	sel, err := s.cal.SetSelection(start, end)
	switch {
	case errors.Is(err, view.ErrDateUnavailable), errors.Is(err, view.ErrBeforeMinDate):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		appLog.Error("set selection failed", err)
		writeError(w, http.StatusInternalServerError, "failed to set selection")
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

func (s *Server) handleClearSelection(w http.ResponseWriter, _ *http.Request) {
	s.cal.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="slotcal.ics"`)
	err := ics.Export(w, s.cal.Events(), ics.ExportOptions{Name: "slotcal", Now: s.now()})
	if err != nil {
		appLog.Error("ics export failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
