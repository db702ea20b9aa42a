package cards

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/khaeldev/card-issuance-service/internal/app/issuer"
)

func RegisterRoutes(r chi.Router, s issuer.IssuerService, l *zap.Logger) {
	handler := NewCardHandler(s, l.With(zap.String("component", "CardHTTPHandler")))

	r.Route("/cards", func(r chi.Router) {
		r.Post("/issuer", handler.IssueCard)
		r.Get("/health", handler.HealthCheck)
	})
}
