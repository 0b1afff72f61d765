package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
	"github.com/civicledger/civic-ledger/internal/middleware"
	"github.com/civicledger/civic-ledger/internal/sequencer"
	"github.com/civicledger/civic-ledger/internal/services"
)

var statusByCode = map[string]int{
	"ACCESS_DENIED":            fiber.StatusForbidden,
	"REPORT_NOT_FOUND":         fiber.StatusNotFound,
	"DUPLICATE_SUBMISSION":     fiber.StatusConflict,
	"DUPLICATE_VOTE":           fiber.StatusConflict,
	"REPORT_EXPIRED":           fiber.StatusGone,
	"WRONG_PHASE_FOR_STATUS":   fiber.StatusConflict,
	"INVALID_STATE_FOR_ACTION": fiber.StatusConflict,
	"INVALID_PHASE":            fiber.StatusBadRequest,
	"INVALID_CAPABILITY":       fiber.StatusBadRequest,
}

// respondError writes the error body for err. Ledger rejections carry their
// code; anything unexpected becomes a 500 with the cause logged, not returned.
func respondError(c *fiber.Ctx, err error) error {
	code := lifecycle.ErrorCode(err)
	if status, ok := statusByCode[code]; ok {
		return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: err.Error(), Code: code})
	}

	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return badRequest(c, err.Error())
	case errors.Is(err, services.ErrModerationRequired):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(), Code: "MODERATION_REQUIRED",
		})
	case errors.Is(err, sequencer.ErrStopped), errors.Is(err, sequencer.ErrNotStarted),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: true, Message: "Ledger unavailable", Code: "UNAVAILABLE",
		})
	}

	slog.Error("request failed",
		"request_id", requestID(c),
		"path", c.Path(),
		"error", err,
	)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error: true, Message: "Internal server error", Code: "INTERNAL",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Message: message, Code: "INVALID_REQUEST",
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized", Code: "UNAUTHORIZED",
	})
}

func caller(c *fiber.Ctx) (lifecycle.Principal, bool) {
	return middleware.GetPrincipal(c)
}

func reportIDParam(c *fiber.Ctx) (lifecycle.ReportID, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return lifecycle.ReportID(id), true
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
