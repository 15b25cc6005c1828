package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hostel-occupancy/internal/service"
)

// Registrar is implemented by *service.RegistrationService.
type Registrar interface {
	Register(ctx context.Context, actor service.Actor, req service.RegistrationRequest) (*service.RegistrationResult, error)
}

// RegistrationHandler serves student registrations made by hostel staff.
type RegistrationHandler struct {
	Svc     Registrar
	Timeout time.Duration
}

func NewRegistrationHandler(svc Registrar) *RegistrationHandler {
	return &RegistrationHandler{Svc: svc, Timeout: 15 * time.Second}
}

// Register handles POST /v1/registrations.  Staff bound to a hostel may
// omit hostel_id; it defaults to their own.  Returns 201 with the ids of
// every row written and the room's new occupancy.
func (h *RegistrationHandler) Register(c echo.Context) error {
	var req service.RegistrationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	a := actor(c)
	if req.HostelID == 0 && a.HostelID != nil {
		req.HostelID = *a.HostelID
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	res, err := h.Svc.Register(ctx, a, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}
