package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hostel-occupancy/internal/service"
)

// Sweeper is implemented by *service.BookingSweeper.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// SemesterRunner is implemented by *service.SemesterScheduler.
type SemesterRunner interface {
	Run(ctx context.Context) (service.RunResult, error)
}

// JobsHandler triggers the background jobs on demand.  Both jobs are
// idempotent, so a manual run racing a scheduled one is harmless.
type JobsHandler struct {
	Sweeper   Sweeper
	Semesters SemesterRunner
}

func NewJobsHandler(s Sweeper, r SemesterRunner) *JobsHandler {
	return &JobsHandler{Sweeper: s, Semesters: r}
}

// BookingSweep handles POST /v1/admin/jobs/booking-sweep.
func (h *JobsHandler) BookingSweep(c echo.Context) error {
	res, err := h.Sweeper.Sweep(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// SemesterTransition handles POST /v1/admin/jobs/semester-transition.
func (h *JobsHandler) SemesterTransition(c echo.Context) error {
	res, err := h.Semesters.Run(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
