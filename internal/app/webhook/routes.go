// Package webhook собирает HTTP-сервис приёма событий платёжного провайдера.
package webhook

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/lectio-billing/internal/http/handlers/health"
	"github.com/magabrotheeeer/lectio-billing/internal/http/middlewarectx"
)

// Routes — зависимости маршрутов.
type Routes struct {
	Webhook   http.Handler
	Health    *health.Handler
	Metrics   http.Handler
	RateLimit float64
	RateBurst int
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, rt Routes) {
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	// Оба пути ведут в один обработчик: второй оставлен для уже настроенных у провайдера эндпоинтов.
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, rt.RateLimit, rt.RateBurst))
		r.Post("/api/webhooks/stripe", rt.Webhook.ServeHTTP)
		r.Post("/api/stripe/webhook", rt.Webhook.ServeHTTP)
	})

	r.Get("/health", rt.Health.ServeHTTP)
	metrics := rt.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Handle("/metrics", metrics)
}
