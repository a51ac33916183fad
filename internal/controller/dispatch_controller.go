package controller

import (
	"strings"

	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/pkg/serverutils"
	"emergency-dispatch-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IDispatchController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Queue(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	Assign(ctx *fiber.Ctx) error
	Connect(ctx *fiber.Ctx) error
	Resolve(ctx *fiber.Ctx) error
	UpdateNotes(ctx *fiber.Ctx) error
	Candidates(ctx *fiber.Ctx) error
}

type dispatchController struct {
	sessionService service.ISessionService
}

func NewDispatchController(sessionService service.ISessionService) IDispatchController {
	return &dispatchController{sessionService: sessionService}
}

func (c *dispatchController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/dispatch/sessions")
	h.Use(auth)
	h.Get("", c.Queue)
	h.Get("history", c.History)
	h.Post(":id/messages", c.SendMessage)
	h.Post(":id/assign", c.Assign)
	h.Post(":id/connect", c.Connect)
	h.Post(":id/resolve", c.Resolve)
	h.Patch(":id/notes", c.UpdateNotes)
	h.Get(":id/candidates", c.Candidates)
}

// Queue lists live sessions, optionally filtered with ?status=escalated,assigned.
func (c *dispatchController) Queue(ctx *fiber.Ctx) error {
	var statuses []string
	if raw := ctx.Query("status"); raw != "" {
		statuses = strings.Split(raw, ",")
	}

	res, err := c.sessionService.Queue(ctx.UserContext(), statuses)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list sessions", res))
}

func (c *dispatchController) History(ctx *fiber.Ctx) error {
	res, err := c.sessionService.History(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list resolved sessions", res))
}

func (c *dispatchController) SendMessage(ctx *fiber.Ctx) error {
	var req dto.DispatcherMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.DispatcherMessage(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Message sent", res))
}

func (c *dispatchController) Assign(ctx *fiber.Ctx) error {
	var req dto.ManualAssignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.Assign(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Responder assigned", res))
}

func (c *dispatchController) Connect(ctx *fiber.Ctx) error {
	res, err := c.sessionService.Connect(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Dispatcher connected", res))
}

func (c *dispatchController) Resolve(ctx *fiber.Ctx) error {
	res, err := c.sessionService.Resolve(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session resolved", res))
}

func (c *dispatchController) UpdateNotes(ctx *fiber.Ctx) error {
	var req dto.DispatchNotesRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.SetDispatchNotes(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Notes updated", res))
}

func (c *dispatchController) Candidates(ctx *fiber.Ctx) error {
	res, err := c.sessionService.Candidates(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success rank candidates", res))
}
