package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/services"
)

type ModerationHandler struct {
	moderationService *services.ModerationService
	validator         *dto.Validator
}

func NewModerationHandler(moderationService *services.ModerationService, validator *dto.Validator) *ModerationHandler {
	return &ModerationHandler{moderationService: moderationService, validator: validator}
}

// Moderate screens a report description. Rejections are a normal 200
// response; the decision field carries the outcome.
func (h *ModerationHandler) Moderate(c *fiber.Ctx) error {
	var req dto.ModerateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validator.Validate(&req); err != nil {
		return badRequest(c, dto.ValidationMessage(err))
	}

	v := h.moderationService.Moderate(req.Text)
	return c.JSON(dto.ModerateResponse{
		Decision:  v.Decision,
		Reason:    v.Reason,
		Message:   v.Message,
		Score:     v.Score,
		Signature: v.Signature,
		OracleID:  v.OracleID,
	})
}
