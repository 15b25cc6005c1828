package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/service"
)

// Occupancy is implemented by *service.OccupancyService.
type Occupancy interface {
	GetFor(ctx context.Context, actor service.Actor, roomID uint64) (model.RoomOccupancy, error)
	RecomputeFor(ctx context.Context, actor service.Actor, roomID uint64) (model.RoomOccupancy, error)
	CancelAssignment(ctx context.Context, actor service.Actor, assignmentID uint64) (model.RoomOccupancy, error)
}

// RoomHandler exposes room occupancy and assignment cancellation.
type RoomHandler struct {
	Svc Occupancy
}

func NewRoomHandler(svc Occupancy) *RoomHandler { return &RoomHandler{Svc: svc} }

// GetOccupancy handles GET /v1/rooms/:id/occupancy.
func (h *RoomHandler) GetOccupancy(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	occ, err := h.Svc.GetFor(c.Request().Context(), actor(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, occ)
}

// Reconcile handles POST /v1/rooms/:id/reconcile.  It recounts the room
// from assignments, enrollments and payments and persists the result.
func (h *RoomHandler) Reconcile(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	occ, err := h.Svc.RecomputeFor(c.Request().Context(), actor(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, occ)
}

// CancelAssignment handles DELETE /v1/assignments/:id and returns the
// released room's occupancy.
func (h *RoomHandler) CancelAssignment(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid assignment id")
	}
	occ, err := h.Svc.CancelAssignment(c.Request().Context(), actor(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"assignment_id": id, "room": occ})
}
