package audit

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/caremesh/consentd/internal/httpapi"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// Handlers handles HTTP requests for the audit trail
type Handlers struct {
	trail  *Trail
	logger *logger.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(trail *Trail, log *logger.Logger) *Handlers {
	return &Handlers{
		trail:  trail,
		logger: log,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/actors/{actorID}", h.ByActor).Methods("GET")
	router.HandleFunc("/audit/actions/{action}", h.ByAction).Methods("GET")
}

// ByActor returns an actor's audit history. Callers may read their own
// history; admins may read anyone's.
func (h *Handlers) ByActor(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	vars := mux.Vars(r)
	actorID := vars["actorID"]

	if claims == nil || (claims.UserID != actorID && claims.Role != types.RoleAdmin) {
		httpapi.WriteError(w, h.logger, types.NewAuthorizationError(types.ErrCodeForbidden, "callers may only read their own audit history"))
		return
	}

	entries, err := h.trail.ByActor(r.Context(), actorID, parseLimit(r))
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// ByAction returns recent entries for one action kind. Admin only.
func (h *Handlers) ByAction(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	if err := httpapi.RequireRole(claims, types.RoleAdmin); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	vars := mux.Vars(r)
	entries, err := h.trail.ByAction(r.Context(), vars["action"], parseLimit(r))
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
