package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/middleware"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/service"
)

type ReporterHandler struct {
	svc *service.ReporterService
}

func NewReporterHandler(svc *service.ReporterService) *ReporterHandler {
	return &ReporterHandler{svc: svc}
}

// Lookup handles GET /api/reporters/:reporterId
func (h *ReporterHandler) Lookup(c fiber.Ctx) error {
	reporterID, errMsg := middleware.ValidateReporterID(c.Params("reporterId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	resp, err := h.svc.Lookup(c.Context(), reporterID)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch reporter")
	}

	return c.JSON(resp)
}

type sessionEventsRequest struct {
	Events []service.SessionEvent `json:"events"`
}

// SessionEvents handles POST /api/sessions/events
func (h *ReporterHandler) SessionEvents(c fiber.Ctx) error {
	reporterID, errMsg := middleware.ValidateReporterID(c.Get(middleware.ReporterHeader))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req sessionEventsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	if len(req.Events) == 0 {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "MISSING_FIELDS", "events must not be empty")
	}
	if len(req.Events) > middleware.MaxSessionEvents {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "TOO_MANY_EVENTS", "At most 200 events per batch")
	}
	latest := time.Now().Add(middleware.MaxEventSkew).UnixMilli()
	var prev int64
	for _, ev := range req.Events {
		switch ev.Kind {
		case service.EventClick, service.EventMove, service.EventScroll:
		default:
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", "kind must be one of: click, move, scroll")
		}
		switch {
		case ev.At <= 0:
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", "at must be an epoch timestamp in milliseconds")
		case ev.At < prev:
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", "events must be in time order")
		case ev.At > latest:
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", "at must not be in the future")
		}
		prev = ev.At
	}

	h.svc.Observe(reporterID, req.Events)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": len(req.Events)})
}

// GetStats handles GET /api/stats
func (h *ReporterHandler) GetStats(c fiber.Ctx) error {
	stats, err := h.svc.GetStats(c.Context())
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch statistics")
	}

	return c.JSON(stats)
}
