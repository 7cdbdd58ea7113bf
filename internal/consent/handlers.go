package consent

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/caremesh/consentd/internal/httpapi"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// Handlers handles HTTP requests for the consent lifecycle
type Handlers struct {
	service *Service
	logger  *logger.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(service *Service, log *logger.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/consents/requests", h.RequestAccess).Methods("POST")
	router.HandleFunc("/consents/{subjectID}/{accessorID}/grant", h.Grant).Methods("POST")
	router.HandleFunc("/consents/{subjectID}/{accessorID}/revoke", h.Revoke).Methods("POST")
	router.HandleFunc("/consents/{subjectID}/{accessorID}", h.Status).Methods("GET")
}

type requestAccessRequest struct {
	SubjectID string             `json:"subject_id"`
	Message   string             `json:"message"`
	Scope     types.ConsentScope `json:"scope"`
}

type grantRequest struct {
	Overrides *types.ScopeOverrides `json:"overrides"`
	TxRef     string                `json:"tx_ref"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
	TxRef  string `json:"tx_ref"`
}

// RequestAccess opens a consent request from the caller to the subject
func (h *Handlers) RequestAccess(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	if err := httpapi.RequireRole(claims, types.RoleDoctor, types.RoleAdmin); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	var req requestAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteBadRequest(w, h.logger, "invalid JSON payload")
		return
	}

	record, warning, err := h.service.RequestAccess(r.Context(), req.SubjectID, claims.UserID, req.Message, req.Scope)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusCreated, consentResponse(record, warning))
}

// Grant approves a pending consent request. Subject only.
func (h *Handlers) Grant(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	vars := mux.Vars(r)
	subjectID := vars["subjectID"]
	accessorID := vars["accessorID"]

	if err := requireSubject(claims, subjectID); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	var req grantRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpapi.WriteBadRequest(w, h.logger, "invalid JSON payload")
			return
		}
	}

	record, warning, err := h.service.Grant(r.Context(), subjectID, accessorID, req.Overrides, req.TxRef)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, consentResponse(record, warning))
}

// Revoke withdraws a granted consent. Subject only.
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	vars := mux.Vars(r)
	subjectID := vars["subjectID"]
	accessorID := vars["accessorID"]

	if err := requireSubject(claims, subjectID); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	var req revokeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpapi.WriteBadRequest(w, h.logger, "invalid JSON payload")
			return
		}
	}

	record, warning, err := h.service.Revoke(r.Context(), subjectID, accessorID, req.Reason, req.TxRef)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, consentResponse(record, warning))
}

// Status returns the pair's consent with its derived effective status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	vars := mux.Vars(r)
	subjectID := vars["subjectID"]
	accessorID := vars["accessorID"]

	// Only the parties to the relationship (or an admin) may read it.
	if claims == nil || (claims.UserID != subjectID && claims.UserID != accessorID && claims.Role != types.RoleAdmin) {
		httpapi.WriteError(w, h.logger, types.NewAuthorizationError(types.ErrCodeForbidden, "caller is not a party to this consent"))
		return
	}

	record, effective, err := h.service.Status(r.Context(), subjectID, accessorID)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"consent":          record,
		"effective_status": effective,
		"as_of":            time.Now().UTC().Format(time.RFC3339),
	})
}

func requireSubject(claims *types.UserClaims, subjectID string) error {
	if claims == nil {
		return types.NewAuthorizationError(types.ErrCodeUnauthorized, "authentication required")
	}
	if claims.UserID != subjectID {
		return types.NewAuthorizationError(types.ErrCodeForbidden, "only the subject may decide their consent")
	}
	return nil
}

func consentResponse(record *types.Consent, warning *types.LedgerWarning) map[string]interface{} {
	resp := map[string]interface{}{"consent": record}
	if warning != nil {
		resp["warning"] = warning
	}
	return resp
}
