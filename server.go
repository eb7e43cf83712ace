package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"i4.energy/across/cellular/at"
	"i4.energy/across/cellular/modem"
)

// Gateway is the part of *modem.Modem served over HTTP.
type Gateway interface {
	SendSMS(ctx context.Context, recipient, message string) error
	ListMessages(ctx context.Context, status string) ([]modem.SMS, error)
	DeleteMessage(ctx context.Context, index int) error
	SendUSSD(ctx context.Context, code string) (string, error)
	Connect(ctx context.Context, params modem.ConnectParams) (modem.Outcome, error)
	ConnectivityState() (string, modem.Outcome)
	SimState(ctx context.Context) (modem.SimState, error)
	UnlockSIM(ctx context.Context, pin string) (bool, error)
	IsRegistered(ctx context.Context) (bool, error)
	SignalQuality(ctx context.Context) (rssi, ber int, err error)
	NetworkTime(ctx context.Context) (at.Timestamp, error)
	PacketDataAttached(ctx context.Context) (bool, error)
	IPAddress(ctx context.Context) (string, error)
}

var (
	_ Gateway = (*modem.Modem)(nil)
	_ Sender  = (*modem.Modem)(nil)
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Modem  Gateway
	// Connect holds the parameters used by POST /connect without a body.
	Connect modem.ConnectParams
	// Token, when set, is required as "Authorization: Bearer <token>".
	Token string

	once   sync.Once
	router chi.Router
}

// Routes returns the router, building it on the first call.
func (s *Server) Routes() http.Handler {
	s.once.Do(func() {
		s.router = s.routes()
	})
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.Token != "" {
		r.Use(s.requireToken)
	}

	r.Get("/status", s.handleStatus)
	r.Post("/connect", s.handleConnect)
	r.Post("/sim/unlock", s.handleUnlock)
	r.Route("/sms", func(r chi.Router) {
		r.Post("/", s.handleSMS)
		r.Get("/", s.handleListSMS)
		r.Delete("/{index}", s.handleDeleteSMS)
	})
	r.Post("/ussd", s.handleUSSD)
	return r
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Routes().ServeHTTP(w, r)
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
			s.sendError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// sendModemError maps a modem error to an HTTP status.
func (s *Server) sendModemError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, modem.ErrTimeout), errors.Is(err, modem.ErrRegistrationTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, modem.ErrProtocolRejected),
		errors.Is(err, modem.ErrMalformedResponse),
		errors.Is(err, modem.ErrMalformedTimestamp):
		status = http.StatusBadGateway
	case errors.Is(err, modem.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, modem.ErrSimLocked):
		status = http.StatusLocked
	case errors.Is(err, modem.ErrTransportClosed),
		errors.Is(err, modem.ErrAlreadyClosed),
		errors.Is(err, modem.ErrSimNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	s.Logger.Error("Modem request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	s.sendError(w, err.Error(), status)
}

func decode(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

type statusResponse struct {
	State      string `json:"state"`
	Outcome    string `json:"outcome"`
	SIM        string `json:"sim"`
	Registered bool   `json:"registered"`
	RSSI       int    `json:"rssi"`
	BER        int    `json:"ber"`
	Attached   bool   `json:"attached"`
	IPAddress  string `json:"ip_address,omitempty"`
	Time       string `json:"network_time,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, outcome := s.Modem.ConnectivityState()
	resp := statusResponse{State: state, Outcome: outcome.String()}

	sim, err := s.Modem.SimState(r.Context())
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}
	resp.SIM = sim.String()

	if resp.Registered, err = s.Modem.IsRegistered(r.Context()); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	if resp.RSSI, resp.BER, err = s.Modem.SignalQuality(r.Context()); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	if resp.Attached, err = s.Modem.PacketDataAttached(r.Context()); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	if resp.Attached {
		if resp.IPAddress, err = s.Modem.IPAddress(r.Context()); err != nil {
			s.sendModemError(w, r, err)
			return
		}
	}

	// the clock is only set once the network provided the time
	if ts, err := s.Modem.NetworkTime(r.Context()); err == nil {
		resp.Time = ts.ISO8601()
	} else {
		s.Logger.Debug("Network time unavailable", "error", err)
	}
	s.sendJSON(w, resp)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	type ConnectRequest struct {
		APN         string `json:"apn"`
		User        string `json:"user"`
		Password    string `json:"password"`
		WaitForever *bool  `json:"wait_forever"`
	}

	var req ConnectRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := s.Connect
	if req.APN != "" {
		params.APN, params.User, params.Password = req.APN, req.User, req.Password
	}
	if req.WaitForever != nil {
		params.WaitForever = *req.WaitForever
	}

	outcome, err := s.Modem.Connect(r.Context(), params)
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}
	state, _ := s.Modem.ConnectivityState()
	s.Logger.Info("Connected", "apn", params.APN, "state", state)
	s.sendJSON(w, map[string]string{"outcome": outcome.String(), "state": state})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	type UnlockRequest struct {
		PIN string `json:"pin"`
	}

	var req UnlockRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.PIN == "" {
		s.sendError(w, "'pin' field is required", http.StatusBadRequest)
		return
	}

	accepted, err := s.Modem.UnlockSIM(r.Context(), req.PIN)
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}
	if !accepted {
		s.sendError(w, "SIM not unlocked", http.StatusUnprocessableEntity)
		return
	}
	s.sendJSON(w, map[string]bool{"accepted": true})
}

// handleSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	type SMSRequest struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	if err := s.Modem.SendSMS(r.Context(), req.To, req.Message); err != nil {
		s.sendModemError(w, r, err)
		return
	}

	s.Logger.Info("SMS sent successfully", "to", req.To, "message_length", len(req.Message))
	w.WriteHeader(http.StatusOK)
}

var listFilters = map[string]string{
	"":       at.StatusAll,
	"all":    at.StatusAll,
	"unread": at.StatusUnread,
	"read":   at.StatusRead,
	"unsent": at.StatusUnsent,
	"sent":   at.StatusSent,
}

type messageResponse struct {
	Index     int    `json:"index"`
	Status    string `json:"status"`
	Sender    string `json:"sender"`
	Alpha     string `json:"alpha,omitempty"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (s *Server) handleListSMS(w http.ResponseWriter, r *http.Request) {
	filter, ok := listFilters[r.URL.Query().Get("status")]
	if !ok {
		s.sendError(w, "status must be one of all, unread, read, unsent, sent", http.StatusBadRequest)
		return
	}

	messages, err := s.Modem.ListMessages(r.Context(), filter)
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}

	resp := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		msg := messageResponse{
			Index:  m.Index,
			Status: m.Status,
			Sender: m.Sender,
			Alpha:  m.Alpha,
			Body:   m.Body,
		}
		if !m.Timestamp.IsZero() {
			msg.Timestamp = m.Timestamp.ISO8601()
		}
		resp = append(resp, msg)
	}
	s.sendJSON(w, resp)
}

func (s *Server) handleDeleteSMS(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		s.sendError(w, "index must be a non-negative integer", http.StatusBadRequest)
		return
	}

	if err := s.Modem.DeleteMessage(r.Context(), index); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUSSD(w http.ResponseWriter, r *http.Request) {
	type USSDRequest struct {
		Code string `json:"code"`
	}

	var req USSDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		s.sendError(w, "'code' field is required", http.StatusBadRequest)
		return
	}

	reply, err := s.Modem.SendUSSD(r.Context(), req.Code)
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}
	s.sendJSON(w, map[string]string{"reply": reply})
}
