package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/example/glam-checkout/internal/api/middleware"
	"github.com/example/glam-checkout/internal/logging"
)

// NewRouter wires the Order Service endpoints. Verification is rate limited
// per client.
func NewRouter(handlers *Handlers, verifyLimiter *middleware.IPRateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logging.Component("http")))
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.Health)

	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/create", handlers.CreateOrder)
		r.With(middleware.RateLimit(verifyLimiter)).Post("/verify", handlers.VerifyPayment)

		r.Group(func(r chi.Router) {
			r.Use(middleware.CheckoutAuth(handlers.tokens))
			r.Post("/failure", handlers.ReportFailure)
			r.Post("/cancel", handlers.CancelOrder)
			r.Get("/{orderRef}", handlers.GetOrder)
		})
	})

	return r
}
