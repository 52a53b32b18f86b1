package routes

import (
	"github.com/bluelight-hub/authguard/internal/handlers"
	"github.com/bluelight-hub/authguard/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	ruleHandler *handlers.RuleHandler,
	adminHandler *handlers.AdminHandler,
) {
	// Login carries its own domain rate limiter inside the handler; the
	// admin surface gets a plain per-IP throttle.
	adminLimit := middleware.DefaultAdminRateLimit()

	router.Post("/auth/login", authHandler.Login)
	router.Post("/auth/heartbeat", authHandler.Heartbeat)
	router.Post("/auth/logout", authHandler.Logout)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(adminLimit))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/lockouts/{email}", adminHandler.LockoutStatus)
			r.Delete("/lockouts/{email}", adminHandler.UnlockAccount)
			r.Get("/attempts/{email}/stats", adminHandler.AttemptStats)

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", ruleHandler.List)
				r.Post("/", ruleHandler.Create)
				r.Post("/reload", ruleHandler.Reload)
				r.Get("/stats", ruleHandler.Stats)
				r.Get("/{id}", ruleHandler.Get)
				r.Put("/{id}", ruleHandler.Update)
				r.Delete("/{id}", ruleHandler.Delete)
			})
		})
	})
}
