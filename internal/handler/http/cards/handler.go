package cards

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/khaeldev/card-issuance-service/internal/app/issuer"
	"github.com/khaeldev/card-issuance-service/internal/domain"
)

type CardHandler struct {
	service issuer.IssuerService
	logger  *zap.Logger
}

func NewCardHandler(s issuer.IssuerService, l *zap.Logger) *CardHandler {
	return &CardHandler{service: s, logger: l}
}

func (h *CardHandler) IssueCard(w http.ResponseWriter, r *http.Request) {
	var req issuer.IssueCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for IssueCard", zap.Error(err))
		renderError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.service.IssueCard(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRequest):
			h.logger.Warn("Bad request for IssueCard", zap.Error(err))
			renderError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrDuplicateRequest):
			h.logger.Info("Conflicting card request", zap.Error(err))
			renderError(w, "The customer already has a card request in progress", http.StatusConflict)
		default:
			h.logger.Error("Error issuing card", zap.Error(err))
			renderError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

func (h *CardHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "Issuer service is healthy"})
}

func renderError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
