package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/middleware"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/service"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/signal"
)

type VoteHandler struct {
	svc *service.VoteService
}

func NewVoteHandler(svc *service.VoteService) *VoteHandler {
	return &VoteHandler{svc: svc}
}

// Submit handles POST /api/listings/:listingId/votes
func (h *VoteHandler) Submit(c fiber.Ctx) error {
	listingID, errMsg := middleware.ValidateListingID(c.Params("listingId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	reporterID, errMsg := middleware.ValidateReporterID(c.Get(middleware.ReporterHeader))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req model.VoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	req.ListingID = listingID

	if req.SignalType == "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "MISSING_FIELDS", "signalType and delta are required")
	}

	voteContext, errMsg := middleware.ValidateContext(req.Context)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}
	req.Context = voteContext

	start := time.Now()
	res, err := h.svc.Submit(c.Context(), reporterID, req)
	tab := voteTab(req.SignalType)

	var perr *service.PersistenceError
	switch {
	case errors.Is(err, service.ErrUnknownSignal):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_SIGNAL", "Unknown signalType")
	case errors.Is(err, service.ErrInvalidDelta):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_DELTA", "delta must be 1 or -1")
	case errors.As(err, &perr):
		recordVote(tab, "not_persisted", time.Since(start))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "NOT_PERSISTED",
				"message": "Vote was applied but could not be stored",
			},
			"result": res,
		})
	case err != nil:
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to submit vote")
	}

	recordVote(tab, voteOutcome(req.Delta, res), time.Since(start))
	return c.JSON(res)
}

// ActiveVotes handles GET /api/listings/:listingId/votes
func (h *VoteHandler) ActiveVotes(c fiber.Ctx) error {
	listingID, errMsg := middleware.ValidateListingID(c.Params("listingId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	reporterID, errMsg := middleware.ValidateReporterID(c.Get(middleware.ReporterHeader))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	active, err := h.svc.ActiveVotes(c.Context(), reporterID, listingID)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch votes")
	}

	return c.JSON(fiber.Map{
		"listingId": listingID,
		"active":    active,
	})
}

func voteTab(signalType string) string {
	if d, ok := signal.Lookup(signal.Normalize(signalType)); ok {
		return string(d.Tab)
	}
	return "unknown"
}

func voteOutcome(delta int, res *model.VoteResult) string {
	switch {
	case !res.Allowed:
		return strings.ToLower(res.Code)
	case !res.Changed:
		return "noop"
	case delta > 0:
		return "cast"
	default:
		return "retract"
	}
}
