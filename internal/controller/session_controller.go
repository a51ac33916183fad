package controller

import (
	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/pkg/serverutils"
	"emergency-dispatch-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ISessionController serves the citizen side of a session. The session id is
// the only capability a citizen holds.
type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	AddMessage(ctx *fiber.Ctx) error
	AddStep(ctx *fiber.Ctx) error
	CompleteStep(ctx *fiber.Ctx) error
	UpdateClassification(ctx *fiber.Ctx) error
	Escalate(ctx *fiber.Ctx) error
	Resolve(ctx *fiber.Ctx) error
}

type sessionController struct {
	sessionService service.ISessionService
}

func NewSessionController(sessionService service.ISessionService) ISessionController {
	return &sessionController{sessionService: sessionService}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/sessions")
	h.Post("", c.Create)
	h.Get(":id", c.Show)
	h.Post(":id/messages", c.AddMessage)
	h.Post(":id/steps", c.AddStep)
	h.Patch(":id/steps/:stepId/complete", c.CompleteStep)
	h.Patch(":id/classification", c.UpdateClassification)
	h.Post(":id/escalate", c.Escalate)
	h.Post(":id/resolve", c.Resolve)
}

func (c *sessionController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.Create(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session started", res))
}

func (c *sessionController) Show(ctx *fiber.Ctx) error {
	res, err := c.sessionService.Show(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show session", res))
}

func (c *sessionController) AddMessage(ctx *fiber.Ctx) error {
	var req dto.AddMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.AddMessage(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Message added", res))
}

func (c *sessionController) AddStep(ctx *fiber.Ctx) error {
	var req dto.AddStepRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.AddStep(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Step added", res))
}

func (c *sessionController) CompleteStep(ctx *fiber.Ctx) error {
	res, err := c.sessionService.CompleteStep(ctx.UserContext(), ctx.Params("id"), ctx.Params("stepId"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Step completed", res))
}

func (c *sessionController) UpdateClassification(ctx *fiber.Ctx) error {
	var req dto.UpdateClassificationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.UpdateClassification(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Classification updated", res))
}

// Escalate returns as soon as the session is escalated; dispatch runs in the background.
func (c *sessionController) Escalate(ctx *fiber.Ctx) error {
	res, err := c.sessionService.Escalate(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Session escalated", res))
}

func (c *sessionController) Resolve(ctx *fiber.Ctx) error {
	res, err := c.sessionService.Resolve(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session resolved", res))
}
