package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/middleware"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/service"
)

type ListingHandler struct {
	svc *service.ListingService
}

func NewListingHandler(svc *service.ListingService) *ListingHandler {
	return &ListingHandler{svc: svc}
}

type resolveRequest struct {
	Title string `json:"title"`
	Price string `json:"price"`
}

// Resolve handles POST /api/listings/resolve
func (h *ListingHandler) Resolve(c fiber.Ctx) error {
	var req resolveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	title, price, errMsg := middleware.ValidateListingText(req.Title, req.Price)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	return c.JSON(fiber.Map{"listingId": h.svc.Resolve(title, price)})
}

// Get handles GET /api/listings/:listingId
func (h *ListingHandler) Get(c fiber.Ctx) error {
	listingID, errMsg := middleware.ValidateListingID(c.Params("listingId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	rec, err := h.svc.Get(c.Context(), listingID)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch listing")
	}

	return c.JSON(rec)
}

// Explain handles GET /api/listings/:listingId/explain
func (h *ListingHandler) Explain(c fiber.Ctx) error {
	listingID, errMsg := middleware.ValidateListingID(c.Params("listingId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	exp, err := h.svc.Explain(c.Context(), listingID)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to explain listing")
	}

	return c.JSON(exp)
}

// ApplyMetrics handles POST /api/listings/:listingId/metrics
func (h *ListingHandler) ApplyMetrics(c fiber.Ctx) error {
	listingID, errMsg := middleware.ValidateListingID(c.Params("listingId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var update model.MetricsUpdate
	if err := c.Bind().JSON(&update); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	if update.Empty() {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "EMPTY_UPDATE", "At least one metrics section is required")
	}

	rec, err := h.svc.ApplyMetrics(c.Context(), listingID, update)
	return respondRecord(c, rec, err, "Failed to apply metrics")
}

// RecordVisit handles POST /api/listings/:listingId/visits
func (h *ListingHandler) RecordVisit(c fiber.Ctx) error {
	listingID, errMsg := middleware.ValidateListingID(c.Params("listingId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	reporterID, errMsg := middleware.ValidateReporterID(c.Get(middleware.ReporterHeader))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var visit model.Visit
	if err := c.Bind().JSON(&visit); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	if visit.TimeOnPage < 0 {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", "timeOnPage must not be negative")
	}

	rec, err := h.svc.RecordVisit(c.Context(), reporterID, listingID, visit)
	return respondRecord(c, rec, err, "Failed to record visit")
}

// respondRecord writes a mutated record. A record that was rescored but not
// stored is still returned, under 503.
func respondRecord(c fiber.Ctx, rec *model.AdRecord, err error, failMsg string) error {
	var perr *service.PersistenceError
	switch {
	case errors.As(err, &perr):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "NOT_PERSISTED",
				"message": "Listing was rescored but could not be stored",
			},
			"record": rec,
		})
	case err != nil:
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", failMsg)
	}
	return c.JSON(rec)
}
