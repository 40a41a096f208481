package leads

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/sales-lead-agent/internal/http/middleware"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

// Handler exposes the lead ledger over HTTP.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads []*Lead `json:"leads"`
	Count int     `json:"count"`
	Limit int     `json:"limit"`
}

// ListLeads handles GET /leads
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	items, err := h.repo.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		http.Error(w, "Failed to list leads", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []*Lead{}
	}
	h.logger.Info("leads listed", "operator", operator(r), "count", len(items))

	h.writeJSON(w, http.StatusOK, ListLeadsResponse{Leads: items, Count: len(items), Limit: limit})
}

// GetLead handles GET /leads/{crmID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	crmID := chi.URLParam(r, "crmID")
	if crmID == "" {
		http.Error(w, "missing crm id", http.StatusBadRequest)
		return
	}

	lead, err := h.repo.GetByCRMID(r.Context(), crmID)
	if err != nil {
		if errors.Is(err, ErrLeadNotFound) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load lead", "error", err, "crm_id", crmID)
		http.Error(w, "Failed to load lead", http.StatusInternalServerError)
		return
	}

	h.logger.Info("lead viewed", "operator", operator(r), "crm_id", crmID)
	h.writeJSON(w, http.StatusOK, lead)
}

// operator names the token subject behind a ledger read.
func operator(r *http.Request) string {
	if claims, ok := httpmiddleware.OperatorFromContext(r.Context()); ok {
		return claims.Subject
	}
	return ""
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
