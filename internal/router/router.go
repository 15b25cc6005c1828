// Package router registers the HTTP routes of the occupancy engine.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hostel-occupancy/internal/handler"
	"github.com/iliyamo/hostel-occupancy/internal/middleware"
	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// Handlers bundles the handlers mounted by Register.
type Handlers struct {
	Health       *handler.HealthHandler
	Registration *handler.RegistrationHandler
	Rooms        *handler.RoomHandler
	Jobs         *handler.JobsHandler
}

// Register mounts /healthz without authentication and everything else
// under /v1 behind JWTAuth.  limiter, when non-nil, guards the write
// endpoints.
func Register(e *echo.Echo, h Handlers, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.GET("/healthz", h.Health.Health)

	writes := []echo.MiddlewareFunc{}
	if limiter != nil {
		writes = append(writes, limiter)
	}

	staff := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustodian, model.RoleHostelAdmin, model.RoleSuperAdmin),
	)
	staff.POST("/registrations", h.Registration.Register, writes...)
	staff.GET("/rooms/:id/occupancy", h.Rooms.GetOccupancy)
	staff.POST("/rooms/:id/reconcile", h.Rooms.Reconcile, writes...)
	staff.DELETE("/assignments/:id", h.Rooms.CancelAssignment, writes...)

	// The jobs span every hostel.
	admin := e.Group("/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleSuperAdmin),
	)
	admin.POST("/jobs/booking-sweep", h.Jobs.BookingSweep, writes...)
	admin.POST("/jobs/semester-transition", h.Jobs.SemesterTransition, writes...)
}
