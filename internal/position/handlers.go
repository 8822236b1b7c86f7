package position

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/", func(c *fiber.Ctx) error {
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		id, err := svc.Record(c.Context(), req)
		if errors.Is(err, ErrInvalid) {
			return fiber.NewError(fiber.StatusBadRequest, "session_id, user_id, latitude, and longitude are required")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":      id,
			"message": "Position updated successfully",
		})
	})

	r.Get("/session/:sessionID/latest", func(c *fiber.Ctx) error {
		positions, err := svc.Latest(c.Context(), c.Params("sessionID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(positions)
	})
}
