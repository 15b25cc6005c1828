package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hostel-occupancy/internal/service"
)

var kindStatus = map[service.Kind]int{
	service.KindInvalidInput:        http.StatusBadRequest,
	service.KindInvalidAmount:       http.StatusUnprocessableEntity,
	service.KindGenderMismatch:      http.StatusUnprocessableEntity,
	service.KindCapacityExceeded:    http.StatusConflict,
	service.KindIdentityConflict:    http.StatusConflict,
	service.KindSemesterClosed:      http.StatusConflict,
	service.KindPersistenceConflict: http.StatusConflict,
	service.KindRoomNotFound:        http.StatusNotFound,
	service.KindSemesterNotFound:    http.StatusNotFound,
	service.KindAssignmentNotFound:  http.StatusNotFound,
	service.KindForbidden:           http.StatusForbidden,
	service.KindTransientConnection: http.StatusServiceUnavailable,
	service.KindSchemaMismatch:      http.StatusInternalServerError,
}

// statusFor maps an error kind to its HTTP status; unknown kinds are 500.
func statusFor(kind service.Kind) int {
	if code, ok := kindStatus[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": kind, "message": msg}.  Internal
// errors do not leak their text.
func writeError(c echo.Context, err error) error {
	kind := service.KindOf(err)
	msg := "internal error"
	var e *service.Error
	if errors.As(err, &e) {
		msg = e.Error()
	} else {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(statusFor(kind), echo.Map{"error": string(kind), "message": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": string(service.KindInvalidInput), "message": msg})
}
