package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/onlyfix-api/internal/middleware"
	"github.com/harentsoaR/onlyfix-api/internal/models"
)

type RouteOptions struct {
	// AuthLimiter guards the public /auth endpoints. Nil disables it.
	AuthLimiter gin.HandlerFunc
	// SeedEndpoint exposes POST /dentists/seed.
	SeedEndpoint bool
}

func (h *Handler) RegisterRoutes(r gin.IRouter, opts RouteOptions) {
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))

	authRoutes := r.Group("/auth")
	if opts.AuthLimiter != nil {
		authRoutes.Use(opts.AuthLimiter)
	}
	{
		authRoutes.POST("/register", h.RegisterUser)
		authRoutes.POST("/login", h.Login)
	}

	r.GET("/dentists", h.ListDentists)
	if opts.SeedEndpoint {
		r.POST("/dentists/seed", h.SeedDentists)
	}

	apiRoutes := r.Group("")
	apiRoutes.Use(middleware.AuthMiddleware(h.Tokens))
	{
		apiRoutes.GET("/me", h.GetCurrentUser)

		apiRoutes.POST("/checkups", middleware.RequireRole(models.RolePatient), h.CreateCheckup)
		apiRoutes.GET("/checkups/mine", h.GetMyCheckups)
		apiRoutes.GET("/checkups/mine/stream", h.StreamMyCheckups)
		apiRoutes.GET("/checkups/:id", h.GetCheckup)
		// The ledger checks the assigned dentist after the lookup, so an
		// unknown id is 404 for every role.
		apiRoutes.PATCH("/checkups/:id/status", h.UpdateCheckupStatus)
		apiRoutes.POST("/checkups/:id/complete", h.CompleteCheckup)
		apiRoutes.GET("/checkups/:id/images/:index", h.GetCheckupImage)
		apiRoutes.GET("/checkups/:id/report", h.DownloadReport)
	}
}
