package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hostel-occupancy/internal/middleware"
	"github.com/iliyamo/hostel-occupancy/internal/service"
)

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// actor returns the authenticated caller; the zero Actor manages nothing.
func actor(c echo.Context) service.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}
