package controller

import (
	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/pkg/serverutils"
	"emergency-dispatch-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IResponderController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Register(ctx *fiber.Ctx) error
	UpdateLocation(ctx *fiber.Ctx) error
	SetOffline(ctx *fiber.Ctx) error
	SetOnline(ctx *fiber.Ctx) error
	Assignments(ctx *fiber.Ctx) error
	UpdateAssignmentStatus(ctx *fiber.Ctx) error
}

type responderController struct {
	responderService service.IResponderService
}

func NewResponderController(responderService service.IResponderService) IResponderController {
	return &responderController{responderService: responderService}
}

func (c *responderController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/responders")
	h.Use(auth)
	h.Get("", c.List)
	h.Post("", c.Register)
	h.Get(":id", c.Show)
	h.Put(":id/location", c.UpdateLocation)
	h.Patch(":id/offline", c.SetOffline)
	h.Patch(":id/online", c.SetOnline)
	h.Get(":id/assignments", c.Assignments)
	h.Patch(":id/assignments/:assignmentId/status", c.UpdateAssignmentStatus)
}

func (c *responderController) List(ctx *fiber.Ctx) error {
	var query dto.ResponderListQuery
	if err := ctx.QueryParser(&query); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(query); err != nil {
		return err
	}

	res, err := c.responderService.List(ctx.UserContext(), &query)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list responders", res))
}

func (c *responderController) Show(ctx *fiber.Ctx) error {
	res, err := c.responderService.Show(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show responder", res))
}

func (c *responderController) Register(ctx *fiber.Ctx) error {
	var req dto.RegisterResponderRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.responderService.Register(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Responder registered", res))
}

func (c *responderController) UpdateLocation(ctx *fiber.Ctx) error {
	var req dto.GeoPointRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.responderService.UpdateLocation(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Location updated", res))
}

func (c *responderController) SetOffline(ctx *fiber.Ctx) error {
	res, err := c.responderService.SetOffline(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Responder offline", res))
}

func (c *responderController) SetOnline(ctx *fiber.Ctx) error {
	res, err := c.responderService.SetOnline(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Responder online", res))
}

func (c *responderController) Assignments(ctx *fiber.Ctx) error {
	res, err := c.responderService.Assignments(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list assignments", res))
}

func (c *responderController) UpdateAssignmentStatus(ctx *fiber.Ctx) error {
	assignmentId, err := uuid.Parse(ctx.Params("assignmentId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid assignment id")
	}

	var req dto.AssignmentStatusRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.responderService.UpdateAssignmentStatus(ctx.UserContext(), ctx.Params("id"), assignmentId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Assignment status updated", res))
}
