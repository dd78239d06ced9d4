package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/aggregator"
	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/service"
	"github.com/Kaushals112/shadow-aiims-defender/internal/token"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

// DecoyHandler is the HTTP boundary between the presentation layer and the
// detection core. The write endpoints feed raw input into the core; the
// read endpoints serve the monitoring surface.
type DecoyHandler struct {
	decoy  *service.DecoyService
	agg    *aggregator.Aggregator
	logger *zap.Logger
}

// NewDecoyHandler creates the handler.
func NewDecoyHandler(decoy *service.DecoyService, agg *aggregator.Aggregator, logger *zap.Logger) *DecoyHandler {
	return &DecoyHandler{decoy: decoy, agg: agg, logger: logger}
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// RegisterRoutes mounts all decoy routes.
func (h *DecoyHandler) RegisterRoutes(router chi.Router) {
	// Intake: raw attacker input.
	router.Post("/sessions", h.StartSession)
	router.Post("/login", h.Login)
	router.Post("/logout", h.Logout)
	router.Post("/token/refresh", h.RefreshToken)
	router.Post("/search", h.Search)
	router.Post("/reports", h.SubmitReport)
	router.Post("/uploads", h.SubmitUpload)
	router.Post("/visits", h.TrackVisit)

	// Monitoring surface.
	router.Get("/events", h.ListEvents)
	router.Get("/events/session/{sessionID}", h.EventsForSession)
	router.Get("/events/kind/{kind}", h.EventsByKind)
	router.Get("/sessions", h.ListSessions)
	router.Get("/sessions/active", h.ActiveSessions)
	router.Get("/stats", h.Stats)
}

type startSessionRequest struct {
	SourceIdentity string `json:"source_identity"`
}

// StartSession creates a new tracked session for a browsing context.
func (h *DecoyHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.SourceIdentity == "" {
		req.SourceIdentity = r.RemoteAddr
	}

	id := h.decoy.StartSession(r.Context(), req.SourceIdentity)
	h.respondWithJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    map[string]string{"session_id": id},
		Message: "Session started",
	})
}

type loginRequest struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// Login runs the decoy login flow. A wrong pair is a 401 to the attacker
// and a recorded event for the analyst.
func (h *DecoyHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.decoy.Login(r.Context(), req.SessionID, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.respondWithError(w, http.StatusUnauthorized, err, "Invalid credentials. Please try again.")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, err, "Login failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"token": result.Token,
			"claim": result.Claim,
		},
		Message: "Login successful",
	})
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

// Logout ends the session.
func (h *DecoyHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	h.decoy.Logout(r.Context(), req.SessionID)
	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Message: "Logged out"})
}

type refreshRequest struct {
	Token string `json:"token"`
}

// RefreshToken reissues a still-valid bearer token. An invalid one means
// the caller is treated as logged out.
func (h *DecoyHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	newToken, claim, err := h.decoy.RefreshToken(req.Token)
	if err != nil {
		h.respondWithError(w, http.StatusUnauthorized, token.ErrInvalidClaim, "Session expired, please log in again")
		return
	}
	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]interface{}{"token": newToken, "claim": claim},
	})
}

type fieldRequest struct {
	SessionID string `json:"session_id"`
	Value     string `json:"value"`
}

// Search feeds the patient-search field through the classifier.
func (h *DecoyHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.handleField(w, r, "search_query")
}

// SubmitReport feeds the report textarea through the classifier.
func (h *DecoyHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	h.handleField(w, r, "report_content")
}

func (h *DecoyHandler) handleField(w http.ResponseWriter, r *http.Request, field string) {
	var req fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	tags := h.decoy.SubmitField(r.Context(), req.SessionID, field, req.Value)
	// The decoy always answers as if the operation succeeded.
	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]interface{}{"tags": tags},
	})
}

type uploadRequest struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename"`
	FileType  string `json:"file_type"`
	FileSize  int64  `json:"file_size"`
}

// SubmitUpload records file upload metadata. The body itself never reaches
// the core.
func (h *DecoyHandler) SubmitUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	tags := h.decoy.SubmitFile(r.Context(), req.SessionID, req.Filename, req.FileType, req.FileSize)
	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]interface{}{"tags": tags},
		Message: "Report uploaded successfully",
	})
}

type visitRequest struct {
	SessionID string `json:"session_id"`
	Page      string `json:"page"`
	Referrer  string `json:"referrer"`
}

// TrackVisit records page navigation.
func (h *DecoyHandler) TrackVisit(w http.ResponseWriter, r *http.Request) {
	var req visitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	h.decoy.TrackPageVisit(r.Context(), req.SessionID, req.Page, req.Referrer)
	h.respondWithJSON(w, http.StatusOK, Response{Success: true})
}

// ListEvents returns the full attack log in insertion order.
func (h *DecoyHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.agg.Events(r.Context())
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to read events")
		return
	}
	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Data: events})
}

// EventsForSession returns one session's events in insertion order.
func (h *DecoyHandler) EventsForSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	events, err := h.agg.EventsForSession(r.Context(), sessionID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to read events")
		return
	}
	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Data: events})
}

// EventsByKind filters the log by event kind.
func (h *DecoyHandler) EventsByKind(w http.ResponseWriter, r *http.Request) {
	kind := models.EventKind(chi.URLParam(r, "kind"))
	if !models.IsValidKind(kind) {
		h.respondWithError(w, http.StatusBadRequest, errors.New("unknown event kind"), "Unknown event kind")
		return
	}
	events, err := h.agg.EventsByKind(r.Context(), kind)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to read events")
		return
	}
	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Data: events})
}

// ListSessions returns every tracked session.
func (h *DecoyHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Data: h.agg.Sessions()})
}

// ActiveSessions serves the polled session-count indicator.
func (h *DecoyHandler) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	active := h.agg.ActiveSessions(time.Now().UTC())
	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"count":    len(active),
			"sessions": active,
		},
	})
}

// Stats returns the dashboard snapshot.
func (h *DecoyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.agg.Snapshot(r.Context())
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to build snapshot")
		return
	}
	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Data: snap})
}

func (h *DecoyHandler) respondWithJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", util.ErrorField(err))
	}
}

func (h *DecoyHandler) respondWithError(w http.ResponseWriter, status int, err error, message string) {
	h.respondWithJSON(w, status, Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	})
}
