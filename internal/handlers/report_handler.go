package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/services"
)

type ReportHandler struct {
	ledger    *services.LedgerService
	validator *dto.Validator
}

func NewReportHandler(ledger *services.LedgerService, validator *dto.Validator) *ReportHandler {
	return &ReportHandler{ledger: ledger, validator: validator}
}

func (h *ReportHandler) Submit(c *fiber.Ctx) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.SubmitReportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validator.Validate(&req); err != nil {
		return badRequest(c, dto.ValidationMessage(err))
	}

	id, err := h.ledger.SubmitReport(c.UserContext(), p, &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SubmitReportResponse{ID: uint64(id)})
}

func (h *ReportHandler) Vote(c *fiber.Ctx) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := reportIDParam(c)
	if !ok {
		return badRequest(c, "Invalid report ID")
	}

	var req dto.VoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validator.Validate(&req); err != nil {
		return badRequest(c, dto.ValidationMessage(err))
	}

	report, err := h.ledger.Vote(c.UserContext(), p, id, &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewReportResponse(report))
}

func (h *ReportHandler) Solve(c *fiber.Ctx) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := reportIDParam(c)
	if !ok {
		return badRequest(c, "Invalid report ID")
	}

	report, err := h.ledger.MarkAsSolved(c.UserContext(), p, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewReportResponse(report))
}

func (h *ReportHandler) Reject(c *fiber.Ctx) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := reportIDParam(c)
	if !ok {
		return badRequest(c, "Invalid report ID")
	}

	report, err := h.ledger.RejectIssue(c.UserContext(), p, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewReportResponse(report))
}

// Get returns the authoritative report state from the ledger, not the index.
func (h *ReportHandler) Get(c *fiber.Ctx) error {
	id, ok := reportIDParam(c)
	if !ok {
		return badRequest(c, "Invalid report ID")
	}

	report, err := h.ledger.GetReport(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewReportResponse(report))
}

func (h *ReportHandler) List(c *fiber.Ctx) error {
	status := c.Query("status", "")
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	if limit > 100 {
		limit = 100
	}

	reports, total, err := h.ledger.ListReports(c.UserContext(), status, limit, offset)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.ReportListResponse{
		Reports: reports,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

func (h *ReportHandler) Events(c *fiber.Ctx) error {
	id, ok := reportIDParam(c)
	if !ok {
		return badRequest(c, "Invalid report ID")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "100"))

	events, err := h.ledger.History(c.UserContext(), id, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.ReportHistoryResponse{ReportID: uint64(id), Events: events})
}
