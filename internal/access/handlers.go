package access

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/caremesh/consentd/internal/httpapi"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// Handlers handles HTTP requests for access decisions and emergency
// overrides.
type Handlers struct {
	engine *Engine
	logger *logger.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(engine *Engine, log *logger.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		logger: log,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/access/check", h.Check).Methods("POST")
	router.HandleFunc("/overrides", h.GrantOverride).Methods("POST")
	router.HandleFunc("/overrides", h.ListOverrides).Methods("GET")
	router.HandleFunc("/overrides/{subjectID}/{accessorID}", h.RevokeOverride).Methods("DELETE")
}

// Check answers one access question for the authenticated caller
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	if claims == nil {
		httpapi.WriteError(w, h.logger, types.NewAuthorizationError(types.ErrCodeUnauthorized, "authentication required"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteBadRequest(w, h.logger, "invalid JSON payload")
		return
	}

	// Non-admins may only ask about themselves.
	if claims.Role != types.RoleAdmin {
		req.AccessorID = claims.UserID
	}

	decision, err := h.engine.Decide(r.Context(), req)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, decision)
}

type overrideRequest struct {
	SubjectID  string `json:"subject_id"`
	AccessorID string `json:"accessor_id"`
	Reason     string `json:"reason"`
}

// GrantOverride activates an emergency override. Admin only.
func (h *Handlers) GrantOverride(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	if err := httpapi.RequireRole(claims, types.RoleAdmin); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteBadRequest(w, h.logger, "invalid JSON payload")
		return
	}

	override, warning, err := h.engine.GrantEmergencyOverride(r.Context(), claims.UserID, req.SubjectID, req.AccessorID, req.Reason)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	resp := map[string]interface{}{"override": override}
	if warning != nil {
		resp["warning"] = warning
	}
	httpapi.WriteJSON(w, h.logger, http.StatusCreated, resp)
}

// RevokeOverride lifts an active emergency override. Admin only.
func (h *Handlers) RevokeOverride(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	if err := httpapi.RequireRole(claims, types.RoleAdmin); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	vars := mux.Vars(r)
	warning, err := h.engine.RevokeEmergencyOverride(r.Context(), claims.UserID, vars["subjectID"], vars["accessorID"])
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	resp := map[string]interface{}{"revoked": true}
	if warning != nil {
		resp["warning"] = warning
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, resp)
}

// ListOverrides returns all active emergency overrides. Admin only.
func (h *Handlers) ListOverrides(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	if err := httpapi.RequireRole(claims, types.RoleAdmin); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	overrides, err := h.engine.ListEmergencyOverrides(r.Context())
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"overrides": overrides,
		"count":     len(overrides),
	})
}
