// Package web serves the garage door's status page and command endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/settings"
	"github.com/sweeney/garage-door/internal/status"
)

const maxRequestBodySize = 4 << 10

// Door is the part of the controller the command endpoints drive.
type Door interface {
	RequestOpen() (logic.Plan, error)
	RequestClose() (logic.Plan, error)
	Configure(u settings.Update) (settings.Settings, error)
	Settings() settings.Settings
	RefreshHub() bool
}

// Server serves the status page and command endpoints over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	door       Door
}

// New creates a Server. gatherer may be nil to leave /metrics unmounted.
func New(addr string, tracker *status.Tracker, door Door, gatherer prometheus.Gatherer) *Server {
	s := &Server{tracker: tracker, door: door}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logCommands)
	r.Use(limitBody)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/open", s.handleOpen)
	r.Post("/close", s.handleClose)
	r.Post("/refresh", s.handleRefresh)
	r.Post("/configure", s.handleConfigure)

	// Paths the hub driver has always posted to.
	r.Route("/PiGarage", func(r chi.Router) {
		r.Post("/open/", s.handleLegacy(logic.ActionOpen))
		r.Post("/close/", s.handleLegacy(logic.ActionClose))
	})

	return r
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Printf("web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// planResponse acknowledges an open or close request.
type planResponse struct {
	Action  string `json:"action"`
	From    string `json:"from"`
	Pulses  int    `json:"pulses"`
	Message string `json:"message"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	s.writePlan(w, s.door.RequestOpen)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.writePlan(w, s.door.RequestClose)
}

func (s *Server) writePlan(w http.ResponseWriter, request func() (logic.Plan, error)) {
	plan, err := request()
	if err != nil {
		log.Printf("web: %s: %v", plan.Action, err)
		writeError(w, http.StatusInternalServerError, "actuation failed")
		return
	}
	writeJSON(w, http.StatusOK, planResponse{
		Action:  string(plan.Action),
		From:    string(plan.From),
		Pulses:  plan.Pulses,
		Message: plan.Message,
	})
}

// handleLegacy answers in plain text, as the hub driver expects.
func (s *Server) handleLegacy(action logic.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		request, reply := s.door.RequestOpen, "Opening Garage Door..."
		if action == logic.ActionClose {
			request, reply = s.door.RequestClose, "Closing Garage Door..."
		}
		if _, err := request(); err != nil {
			log.Printf("web: %s: %v", action, err)
			http.Error(w, "actuation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(reply))
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	msg := "refreshed"
	if !s.door.RefreshHub() {
		msg = "no hub configured"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// configureRequest uses the settings file units: seconds and milliseconds.
type configureRequest struct {
	TransitionTime  *float64       `json:"transitionTime"`
	ActuateDuration *float64       `json:"actuateDuration"`
	HubAddress      optionalString `json:"hubAddress"`
}

// optionalString tells an absent field from an explicit null.
type optionalString struct {
	set   bool
	value string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.set = true
	if string(data) == "null" {
		o.value = ""
		return nil
	}
	return json.Unmarshal(data, &o.value)
}

func (req configureRequest) update() settings.Update {
	var u settings.Update
	if req.TransitionTime != nil {
		d := time.Duration(math.Round(*req.TransitionTime * float64(time.Second)))
		u.TransitionTime = &d
	}
	if req.ActuateDuration != nil {
		d := time.Duration(math.Round(*req.ActuateDuration * float64(time.Millisecond)))
		u.PulseDuration = &d
	}
	if req.HubAddress.set {
		hub := req.HubAddress.value
		u.HubAddress = &hub
	}
	return u
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	u := req.update()
	if u.HubAddress == nil && s.door.Settings().HubAddress == "" {
		// The first peer to configure us becomes the hub.
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			u.HubAddress = &host
		}
	}

	cur, err := s.door.Configure(u)
	if errors.Is(err, settings.ErrInvalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("web: configure: %v", err)
		writeError(w, http.StatusInternalServerError, "configure failed")
		return
	}

	resp := status.SettingsJSON{
		TransitionTime:  cur.TransitionTime.Seconds(),
		ActuateDuration: cur.PulseDuration.Milliseconds(),
	}
	if cur.HubAddress != "" {
		resp.HubAddress = &cur.HubAddress
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// logCommands logs every non-GET request with its outcome.
func logCommands(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Printf("web: %s %s from %s -> %d (%v)", r.Method, r.URL.Path, r.RemoteAddr, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}
