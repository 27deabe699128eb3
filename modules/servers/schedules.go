package servers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Deepreo/zeit/core"
	"github.com/Deepreo/zeit/errors"
	"github.com/Deepreo/zeit/modules/auth"
	"github.com/gofiber/fiber/v2"
)

const SchedulesPath = "/api/schedules"

type ListSchedulesRequest struct {
	Name string `query:"name"`
}

func (r *ListSchedulesRequest) Validate() error {
	return nil
}

type ScheduleRequest struct {
	ID string `params:"id"`
}

func (r *ScheduleRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.ValidationError(errors.New("schedule id is required"))
	}
	return nil
}

type CancelAllRequest struct{}

func (r *CancelAllRequest) Validate() error {
	return nil
}

type CancelAllResponse struct {
	Cancelled int                           `json:"cancelled"`
	Schedules map[string]core.ScheduleState `json:"schedules"`
}

type listSchedulesHandler struct {
	scheduler core.Scheduler
}

func (h *listSchedulesHandler) Handle(ctx context.Context, req *ListSchedulesRequest) ([]core.ScheduleState, error) {
	states := h.scheduler.ActiveSchedules()
	if req.Name == "" {
		return states, nil
	}
	filtered := make([]core.ScheduleState, 0, len(states))
	for _, state := range states {
		if state.Name == req.Name {
			filtered = append(filtered, state)
		}
	}
	return filtered, nil
}

type getScheduleHandler struct {
	scheduler core.Scheduler
}

func (h *getScheduleHandler) Handle(ctx context.Context, req *ScheduleRequest) (core.ScheduleState, error) {
	state, ok := h.scheduler.ActiveSchedule(req.ID)
	if !ok {
		return core.ScheduleState{}, errors.NotFoundError(fmt.Errorf("schedule not found: %s", req.ID))
	}
	return state, nil
}

type cancelScheduleHandler struct {
	scheduler core.Scheduler
}

func (h *cancelScheduleHandler) Handle(ctx context.Context, req *ScheduleRequest) (core.ScheduleState, error) {
	return h.scheduler.CancelStrict(req.ID)
}

type cancelAllHandler struct {
	scheduler core.Scheduler
}

func (h *cancelAllHandler) Handle(ctx context.Context, req *CancelAllRequest) (CancelAllResponse, error) {
	cancelled := h.scheduler.CancelAll()
	return CancelAllResponse{Cancelled: len(cancelled), Schedules: cancelled}, nil
}

// RegisterScheduleRoutes mounts the schedule admin API.
func RegisterScheduleRoutes(server core.Server, scheduler core.Scheduler) {
	core.RegisterEndpoint[*ListSchedulesRequest, []core.ScheduleState](server, fiber.MethodGet, SchedulesPath, &listSchedulesHandler{scheduler})
	core.RegisterEndpoint[*ScheduleRequest, core.ScheduleState](server, fiber.MethodGet, SchedulesPath+"/:id", &getScheduleHandler{scheduler})
	core.RegisterEndpoint[*ScheduleRequest, core.ScheduleState](server, fiber.MethodDelete, SchedulesPath+"/:id", &cancelScheduleHandler{scheduler})
	core.RegisterEndpoint[*CancelAllRequest, CancelAllResponse](server, fiber.MethodDelete, SchedulesPath, &cancelAllHandler{scheduler})
}

// SchedulePermissions requires read access for reads and cancel access for deletes.
// It runs after auth.Guard.
func SchedulePermissions() fiber.Handler {
	read := auth.RequirePermission(auth.PermissionSchedulesRead)
	cancel := auth.RequirePermission(auth.PermissionSchedulesCancel)
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodDelete {
			return cancel(c)
		}
		return read(c)
	}
}

// LoggingMiddleware logs each admin API call with its outcome.
func LoggingMiddleware(logger *slog.Logger) core.HandlerMiddleware {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			started := time.Now()
			res, err := next(ctx, req)
			if err != nil {
				logger.Warn("admin request failed", "request", fmt.Sprintf("%T", req), "error", err, "duration", time.Since(started))
			} else {
				logger.Debug("admin request handled", "request", fmt.Sprintf("%T", req), "duration", time.Since(started))
			}
			return res, err
		}
	}
}
