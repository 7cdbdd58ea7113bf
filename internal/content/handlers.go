package content

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/caremesh/consentd/internal/httpapi"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

const maxUploadBytes = 64 << 20 // 64 MiB

// Handlers handles HTTP requests for content records
type Handlers struct {
	registry *Registry
	logger   *logger.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(registry *Registry, log *logger.Logger) *Handlers {
	return &Handlers{
		registry: registry,
		logger:   log,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/records", h.Register).Methods("POST")
	router.HandleFunc("/records/{recordID}", h.Get).Methods("GET")
	router.HandleFunc("/records/{recordID}/verify", h.VerifyIntegrity).Methods("POST")
	router.HandleFunc("/owners/{ownerID}/records", h.ListByOwner).Methods("GET")
}

// Register ingests a document. The document bytes arrive as the
// "file" part of a multipart form alongside the metadata fields.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	if claims == nil {
		httpapi.WriteError(w, h.logger, types.NewAuthorizationError(types.ErrCodeUnauthorized, "authentication required"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpapi.WriteBadRequest(w, h.logger, "multipart form must carry a file part")
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	mediaType := r.FormValue("media_type")
	if mediaType == "" {
		mediaType = header.Header.Get("Content-Type")
	}

	record, warning, err := h.registry.Register(r.Context(), claims.UserID, name, mediaType, r.FormValue("storage_locator"), file)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	resp := map[string]interface{}{"record": record}
	if warning != nil {
		resp["warning"] = warning
	}
	httpapi.WriteJSON(w, h.logger, http.StatusCreated, resp)
}

// Get retrieves a content record's metadata
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	record, err := h.registry.Get(r.Context(), vars["recordID"])
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, record)
}

// VerifyIntegrity re-hashes the uploaded bytes and reports the
// comparison against both trust domains.
func (h *Handlers) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	claims := httpapi.ClaimsFrom(r.Context())
	if claims == nil {
		httpapi.WriteError(w, h.logger, types.NewAuthorizationError(types.ErrCodeUnauthorized, "authentication required"))
		return
	}

	vars := mux.Vars(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		httpapi.WriteBadRequest(w, h.logger, "multipart form must carry a file part")
		return
	}
	defer file.Close()

	report, err := h.registry.VerifyIntegrity(r.Context(), claims.UserID, vars["recordID"], file)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, report)
}

// ListByOwner returns an owner's records
func (h *Handlers) ListByOwner(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	records, err := h.registry.ListByOwner(r.Context(), vars["ownerID"])
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}
