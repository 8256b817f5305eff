package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"i4.energy/across/cidmodem/modem"
)

// Modem is the part of *modem.Modem the server drives
type Modem interface {
	Callout(number string, maxWait int) modem.DialResult
	State() modem.State
	LastResult() string
	Pending() modem.CallerID
}

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Modem  Modem
	// MaxWait is used for calls that do not ask for a wait bound
	MaxWait int

	router chi.Router
}

// NewServer wires the routes. Metrics are served from gatherer when it is
// not nil.
func NewServer(logger *slog.Logger, m Modem, maxWait int, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		Logger:  logger,
		Modem:   m,
		MaxWait: maxWait,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/call", s.handleCall)
	r.Get("/status", s.handleStatus)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r

	return s
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("Failed to write response", "error", err)
	}
}

// handleCall starts an outbound call in the background. The call holds the
// line for several seconds, so the request only reports that it was accepted.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	type CallRequest struct {
		Number  string `json:"number"`
		MaxWait int    `json:"max_wait"`
	}

	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	number := strings.TrimSpace(req.Number)
	if number == "" {
		s.sendError(w, "'number' field is required", http.StatusBadRequest)
		return
	}
	if req.MaxWait < 0 {
		s.sendError(w, "'max_wait' must not be negative", http.StatusBadRequest)
		return
	}

	maxWait := req.MaxWait
	if maxWait == 0 {
		maxWait = s.MaxWait
	}

	go func() {
		res := s.Modem.Callout(number, maxWait)
		s.Logger.Info("Call finished",
			"number", res.Number,
			"response", res.Response,
			"timed_out", res.TimedOut,
		)
	}()

	type CallResponse struct {
		Number  string `json:"number"`
		MaxWait int    `json:"max_wait"`
	}
	s.Logger.Info("Call accepted", "number", number, "max_wait", maxWait)
	s.sendJSON(w, CallResponse{Number: number, MaxWait: maxWait}, http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type Pending struct {
		Number string `json:"number,omitempty"`
		Name   string `json:"name,omitempty"`
		Date   string `json:"date,omitempty"`
		Time   string `json:"time,omitempty"`
	}
	type StatusResponse struct {
		State      string  `json:"state"`
		LastResult string  `json:"last_result"`
		Pending    Pending `json:"pending"`
	}

	cid := s.Modem.Pending()
	s.sendJSON(w, StatusResponse{
		State:      s.Modem.State().String(),
		LastResult: s.Modem.LastResult(),
		Pending: Pending{
			Number: cid.Number(),
			Name:   cid.Name(),
			Date:   cid.Date(),
			Time:   cid.Time(),
		},
	}, http.StatusOK)
}
