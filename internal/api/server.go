package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/attendancekit/nfc-backend/internal/config"
	"github.com/attendancekit/nfc-backend/internal/logging"
	"github.com/attendancekit/nfc-backend/internal/reader"
	"github.com/attendancekit/nfc-backend/internal/users"
	"github.com/attendancekit/nfc-backend/internal/web"
)

// Server maps HTTP and websocket requests onto the scan controller and
// the user directory.
type Server struct {
	cfg   *config.Config
	ctrl  *reader.Controller
	users *users.Store
	hub   *WSHub
	srv   *http.Server
}

// New creates the API server. The controller and store are shared with
// the rest of the process; the server never owns reader access itself.
func New(cfg *config.Config, ctrl *reader.Controller, store *users.Store) *Server {
	s := &Server{
		cfg:   cfg,
		ctrl:  ctrl,
		users: store,
		hub:   NewWSHub(),
	}
	s.srv = &http.Server{
		Addr:    cfg.Address(),
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /read", s.handleRead)
	mux.HandleFunc("POST /continuous/start", s.handleContinuousStart)
	mux.HandleFunc("POST /continuous/stop", s.handleContinuousStop)
	mux.HandleFunc("GET /continuous/results", s.handleContinuousResults)
	mux.HandleFunc("POST /user/lookup", s.handleUserLookup)
	mux.HandleFunc("POST /user/register", s.handleUserRegister)
	mux.HandleFunc("DELETE /user/delete", s.handleUserDelete)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /", web.Handler())

	return mux
}

// ListenAndServe starts the websocket hub and serves HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	go s.hub.Run()
	logging.Info(logging.CatHTTP, "API listening", map[string]any{
		"addr": s.cfg.Address(),
	})
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Response shapes

type scanResponse struct {
	UIDHex  *string `json:"uid_hex"`
	Success bool    `json:"success"`
	Message string  `json:"message"`
}

type continuousResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	IsRunning bool   `json:"is_running"`
}

type drainResponse struct {
	UIDHexList []string `json:"uid_hex_list"`
	Count      int      `json:"count"`
}

type healthResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Version string        `json:"version"`
	Scan    reader.Status `json:"scan"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Message: "NFC backend is running",
		Version: Version,
		Scan:    s.ctrl.Status(),
	})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	timeout := reader.DefaultReadTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			timeout = time.Duration(secs * float64(time.Second))
		}
	}

	res := s.ctrl.ReadOnce(timeout)
	switch {
	case errors.Is(res.Err, reader.ErrNoReader):
		writeError(w, http.StatusServiceUnavailable, "reader_unavailable", res.Err.Error())
	case res.Err != nil:
		writeError(w, http.StatusInternalServerError, "reader_fault", res.Err.Error())
	case res.Present():
		hex := res.UID.Hex()
		writeJSON(w, http.StatusOK, scanResponse{
			UIDHex:  &hex,
			Success: true,
			Message: "Card read successfully",
		})
	default:
		writeJSON(w, http.StatusOK, scanResponse{
			Success: false,
			Message: "No card detected (timeout)",
		})
	}
}

func (s *Server) handleContinuousStart(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.Start()
	switch {
	case errors.Is(err, reader.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, continuousResponse{
			Success:   false,
			Message:   "Continuous mode is already running",
			IsRunning: true,
		})
		return
	case errors.Is(err, reader.ErrNoReader):
		writeError(w, http.StatusServiceUnavailable, "reader_unavailable", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "reader_fault", err.Error())
		return
	}

	s.hub.BroadcastStatus(s.ctrl.Status())
	writeJSON(w, http.StatusOK, continuousResponse{
		Success:   true,
		Message:   "Continuous mode started",
		IsRunning: true,
	})
}

func (s *Server) handleContinuousStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	s.hub.BroadcastStatus(s.ctrl.Status())
	writeJSON(w, http.StatusOK, continuousResponse{
		Success:   true,
		Message:   "Continuous mode stopped",
		IsRunning: false,
	})
}

func (s *Server) handleContinuousResults(w http.ResponseWriter, r *http.Request) {
	uids := s.ctrl.Drain()
	list := make([]string, len(uids))
	for i, uid := range uids {
		list[i] = uid.Hex()
	}
	writeJSON(w, http.StatusOK, drainResponse{
		UIDHexList: list,
		Count:      len(list),
	})
}

// User directory

type userLookupRequest struct {
	UIDHex string `json:"uid_hex"`
}

type userLookupResponse struct {
	Found   bool        `json:"found"`
	User    *users.User `json:"user,omitempty"`
	Message string      `json:"message"`
}

type userRegisterResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	IsUpdate bool   `json:"is_update"`
}

type userDeleteRequest struct {
	UIDHex        string `json:"uid_hex"`
	AdminPassword string `json:"admin_password"`
}

type userDeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleUserLookup(w http.ResponseWriter, r *http.Request) {
	var req userLookupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.users.Lookup(req.UIDHex)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	if user != nil {
		writeJSON(w, http.StatusOK, userLookupResponse{Found: true, User: user, Message: "User found"})
	} else {
		writeJSON(w, http.StatusOK, userLookupResponse{Found: false, Message: "User not found"})
	}
}

func (s *Server) handleUserRegister(w http.ResponseWriter, r *http.Request) {
	var req users.User
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UIDHex == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "uid_hex is required")
		return
	}

	updated, err := s.users.Register(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	msg := "User registered successfully"
	if updated {
		msg = "User updated successfully"
	}
	writeJSON(w, http.StatusOK, userRegisterResponse{Success: true, Message: msg, IsUpdate: updated})
}

func (s *Server) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	var req userDeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.AdminPassword != s.cfg.AdminPassword {
		logging.Warn(logging.CatUsers, "Invalid admin password on delete", map[string]any{
			"uid": req.UIDHex,
		})
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid admin password")
		return
	}

	deleted, err := s.users.Delete(req.UIDHex)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	if deleted {
		writeJSON(w, http.StatusOK, userDeleteResponse{Success: true, Message: "User deleted successfully"})
	} else {
		writeJSON(w, http.StatusOK, userDeleteResponse{Success: false, Message: "User not found"})
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}

	var minLevel *logging.Level
	if v := r.URL.Query().Get("level"); v != "" {
		lvl := logging.ParseLevel(v)
		minLevel = &lvl
	}

	var category *logging.Category
	if v := r.URL.Query().Get("category"); v != "" {
		cat := logging.Category(v)
		category = &cat
	}

	writeJSON(w, http.StatusOK, logging.Get().GetEntries(limit, minLevel, category))
}
