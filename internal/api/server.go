package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/santiagoj/homeguard/internal/models"
	"github.com/santiagoj/homeguard/internal/protocol"
	"github.com/santiagoj/homeguard/internal/sms"
)

// Directory is the contact-directory surface exposed over HTTP.
type Directory interface {
	Refresh(ctx context.Context) (*models.DirectorySnapshot, error)
	Snapshot() *models.DirectorySnapshot
	AddContact(ctx context.Context, pairingCode string) (*models.TrustedContact, error)
	RemoveContact(ctx context.Context, pairingCode string) error
	LatestPosition(ctx context.Context, pairingCode string) (*models.Position, error)
	RecentPositions(ctx context.Context, pairingCode string, n int) ([]models.Position, error)
}

// Curfews is the curfew-scheduler surface exposed over HTTP.
type Curfews interface {
	Arm(ctx context.Context, rule models.CurfewRule) (*models.CurfewJob, error)
	List(ctx context.Context) ([]*models.CurfewJob, error)
	Cancel(ctx context.Context, id int64) error
}

// Exchange is the SMS location-exchange surface exposed over HTTP.
type Exchange interface {
	RequestLocation(ctx context.Context, contact *models.TrustedContact) error
	HandleInbound(ctx context.Context, sender, body string) protocol.InboundResult
}

// Reporter accepts position fixes from the device.
type Reporter interface {
	Report(ctx context.Context, pos models.Position) error
}

// Server provides the HTTP API.
type Server struct {
	directory Directory
	curfews   Curfews
	exchange  Exchange
	reporter  Reporter
	gatherer  prometheus.Gatherer
	logger    *logrus.Logger
	mux       *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(
	directory Directory,
	curfews Curfews,
	exchange Exchange,
	reporter Reporter,
	gatherer prometheus.Gatherer,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		directory: directory,
		curfews:   curfews,
		exchange:  exchange,
		reporter:  reporter,
		gatherer:  gatherer,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	// API – Directory
	s.mux.HandleFunc("GET /api/contacts", s.handleGetContacts)
	s.mux.HandleFunc("POST /api/contacts", s.handleAddContact)
	s.mux.HandleFunc("DELETE /api/contacts/{code}", s.handleRemoveContact)
	s.mux.HandleFunc("POST /api/directory/refresh", s.handleRefresh)

	// API – Location exchange
	s.mux.HandleFunc("GET /api/contacts/{code}/locate", s.handleLocate)
	s.mux.HandleFunc("POST /api/contacts/{code}/locate/sms", s.handleLocateSMS)
	s.mux.HandleFunc("GET /api/contacts/{code}/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/position", s.handleReportPosition)

	// API – Curfews
	s.mux.HandleFunc("GET /api/curfews", s.handleGetCurfews)
	s.mux.HandleFunc("POST /api/curfews", s.handleArmCurfew)
	s.mux.HandleFunc("DELETE /api/curfews/{id}", s.handleCancelCurfew)

	// SMS gateway webhook
	s.mux.HandleFunc("POST /api/sms/inbound", s.handleInboundSMS)

	// Metrics
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads the request body into dst and returns an error message on
// failure.  The caller should return immediately when ok == false.
func (s *Server) decodeJSON(r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil {
		return false, "request body is empty"
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

// respondDomainError maps the error taxonomy onto HTTP status codes.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSelfPairing):
		s.respondError(w, http.StatusBadRequest, "cannot pair with your own code")
	case errors.Is(err, models.ErrAlreadyPaired):
		s.respondError(w, http.StatusConflict, "contact is already paired")
	case errors.Is(err, models.ErrContactUnresolved):
		s.respondError(w, http.StatusNotFound, "contact not found")
	case errors.Is(err, models.ErrInvalidCoordinates):
		s.respondError(w, http.StatusBadRequest, "invalid coordinates")
	case errors.Is(err, models.ErrLocationUnavailable):
		s.respondError(w, http.StatusNotFound, "no location available")
	case errors.Is(err, models.ErrNetworkUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, "directory backend unreachable")
	case errors.Is(err, models.ErrRemoteFailure):
		s.respondError(w, http.StatusBadGateway, "directory backend error")
	default:
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// pathCode extracts the {code} path value. Pairing codes are opaque and
// matched byte for byte, so the value passes through untouched.
func pathCode(r *http.Request) (string, error) {
	code := r.PathValue("code")
	if code == "" {
		return "", fmt.Errorf("missing code in path")
	}
	return code, nil
}

// pathID extracts the {id} path value and converts it to int64.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return 0, fmt.Errorf("missing id in path")
	}
	return strconv.ParseInt(raw, 10, 64)
}

// ---------------------------------------------------------------------------
// Directory
// ---------------------------------------------------------------------------

type addContactRequest struct {
	PairingCode string `json:"pairing_code"`
}

func (s *Server) handleGetContacts(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.directory.Snapshot())
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var req addContactRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	code := req.PairingCode
	if code == "" {
		s.respondError(w, http.StatusBadRequest, "pairing_code is required")
		return
	}

	contact, err := s.directory.AddContact(r.Context(), code)
	if err != nil {
		s.logger.WithError(err).WithField("code", code).Warn("failed to add contact")
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, contact)
}

func (s *Server) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	code, err := pathCode(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid pairing code")
		return
	}

	if err := s.directory.RemoveContact(r.Context(), code); err != nil {
		s.logger.WithError(err).WithField("code", code).Warn("failed to remove contact")
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.directory.Refresh(r.Context())
	if err != nil {
		s.logger.WithError(err).Warn("directory refresh failed")
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, snap)
}

// ---------------------------------------------------------------------------
// Location exchange
// ---------------------------------------------------------------------------

type reportPositionRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	code, err := pathCode(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid pairing code")
		return
	}

	pos, err := s.directory.LatestPosition(r.Context(), code)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, pos)
}

func (s *Server) handleLocateSMS(w http.ResponseWriter, r *http.Request) {
	code, err := pathCode(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid pairing code")
		return
	}

	contact := s.directory.Snapshot().FindContact(code)
	if contact == nil {
		s.respondError(w, http.StatusNotFound, "contact not found")
		return
	}

	if err := s.exchange.RequestLocation(r.Context(), contact); err != nil {
		s.logger.WithError(err).WithField("code", code).Warn("failed to send location request")
		s.respondError(w, http.StatusBadGateway, "failed to send location request")
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	code, err := pathCode(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid pairing code")
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	positions, err := s.directory.RecentPositions(r.Context(), code, limit)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if positions == nil {
		positions = []models.Position{}
	}

	s.respondJSON(w, http.StatusOK, positions)
}

func (s *Server) handleReportPosition(w http.ResponseWriter, r *http.Request) {
	var req reportPositionRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		s.respondError(w, http.StatusBadRequest, "latitude/longitude out of range")
		return
	}

	pos := models.Position{
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		CapturedAt: time.Now(),
	}
	if err := s.reporter.Report(r.Context(), pos); err != nil {
		s.logger.WithError(err).Error("failed to record position")
		s.respondError(w, http.StatusInternalServerError, "failed to record position")
		return
	}

	s.respondJSON(w, http.StatusNoContent, nil)
}

// ---------------------------------------------------------------------------
// Curfews
// ---------------------------------------------------------------------------

type armCurfewRequest struct {
	ContactPairingCode string  `json:"contact_pairing_code"`
	Deadline           string  `json:"deadline"` // RFC 3339
	HomeLatitude       float64 `json:"home_latitude"`
	HomeLongitude      float64 `json:"home_longitude"`
}

func (s *Server) handleGetCurfews(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.curfews.List(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to list curfews")
		s.respondError(w, http.StatusInternalServerError, "failed to list curfews")
		return
	}
	if jobs == nil {
		jobs = []*models.CurfewJob{}
	}

	s.respondJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleArmCurfew(w http.ResponseWriter, r *http.Request) {
	var req armCurfewRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	code := req.ContactPairingCode
	if code == "" {
		s.respondError(w, http.StatusBadRequest, "contact_pairing_code is required")
		return
	}
	if req.Deadline == "" {
		s.respondError(w, http.StatusBadRequest, "deadline is required")
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "deadline must be RFC 3339 format")
		return
	}
	if req.HomeLatitude < -90 || req.HomeLatitude > 90 || req.HomeLongitude < -180 || req.HomeLongitude > 180 {
		s.respondError(w, http.StatusBadRequest, "home latitude/longitude out of range")
		return
	}

	contact := s.directory.Snapshot().FindContact(code)
	if contact == nil {
		s.respondError(w, http.StatusNotFound, "contact not found")
		return
	}

	job, err := s.curfews.Arm(r.Context(), models.CurfewRule{
		ContactPairingCode: code,
		ContactDisplayName: contact.DisplayName,
		Deadline:           deadline,
		HomeAnchor:         models.Position{Latitude: req.HomeLatitude, Longitude: req.HomeLongitude},
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to arm curfew")
		s.respondError(w, http.StatusInternalServerError, "failed to arm curfew")
		return
	}

	s.respondJSON(w, http.StatusCreated, job)
}

func (s *Server) handleCancelCurfew(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid curfew id")
		return
	}

	if err := s.curfews.Cancel(r.Context(), id); err != nil {
		s.logger.WithError(err).WithField("id", id).Warn("failed to cancel curfew")
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusNoContent, nil)
}

// ---------------------------------------------------------------------------
// SMS webhook
// ---------------------------------------------------------------------------

// handleInboundSMS is the gateway webhook. The terminal disposition is
// reported to the gateway but never to the SMS sender.
func (s *Server) handleInboundSMS(w http.ResponseWriter, r *http.Request) {
	var req sms.InboundMessage
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	if req.Sender == "" {
		s.respondError(w, http.StatusBadRequest, "sender is required")
		return
	}

	result := s.exchange.HandleInbound(r.Context(), req.Sender, req.Body)

	s.respondJSON(w, http.StatusOK, map[string]string{
		"disposition": string(result.Disposition),
	})
}
