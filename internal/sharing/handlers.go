package sharing

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/caremesh/consentd/internal/httpapi"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// Handlers handles HTTP requests for capability grants
type Handlers struct {
	store  *Store
	logger *logger.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(store *Store, log *logger.Logger) *Handlers {
	return &Handlers{
		store:  store,
		logger: log,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/grants", h.Grant).Methods("POST")
	router.HandleFunc("/grants/{resourceID}/{wallet}", h.Revoke).Methods("DELETE")
	router.HandleFunc("/grants/{resourceID}/{wallet}/check", h.CheckAccess).Methods("GET")
	router.HandleFunc("/wallets/{wallet}/grants", h.ListForWallet).Methods("GET")
}

type grantRequest struct {
	ResourceID     string `json:"resource_id"`
	WalletAddress  string `json:"wallet_address"`
	ExpirationDays int    `json:"expiration_days"`
}

// Grant issues a capability on a record to a wallet
func (h *Handlers) Grant(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	if err := httpapi.RequireRole(claims, types.RolePatient, types.RoleAdmin); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteBadRequest(w, h.logger, "invalid JSON payload")
		return
	}

	grant, warning, err := h.store.Grant(r.Context(), claims.UserID, req.ResourceID, req.WalletAddress, req.ExpirationDays)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	resp := map[string]interface{}{"grant": grant}
	if warning != nil {
		resp["warning"] = warning
	}
	httpapi.WriteJSON(w, h.logger, http.StatusCreated, resp)
}

// Revoke deactivates a wallet's capability on a record
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	if err := httpapi.RequireRole(claims, types.RolePatient, types.RoleAdmin); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	vars := mux.Vars(r)
	warning, err := h.store.Revoke(r.Context(), claims.UserID, vars["resourceID"], vars["wallet"])
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

// CheckAccess reports whether the wallet can use the record now
func (h *Handlers) CheckAccess(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	now := time.Now().UTC()

	allowed, err := h.store.CheckAccess(r.Context(), vars["resourceID"], vars["wallet"], now)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"allowed": allowed,
		"as_of":   now.Format(time.RFC3339),
	})
}

// ListForWallet returns the grants a wallet can currently use
func (h *Handlers) ListForWallet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	grants, err := h.store.ListForWallet(r.Context(), vars["wallet"])
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"grants": grants,
		"count":  len(grants),
	})
}
