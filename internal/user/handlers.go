package user

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/", func(c *fiber.Ctx) error {
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		u, err := svc.Create(c.Context(), req)
		switch {
		case errors.Is(err, ErrInvalid):
			return fiber.NewError(fiber.StatusBadRequest, "Username and email are required")
		case errors.Is(err, ErrDuplicate):
			return fiber.NewError(fiber.StatusBadRequest, "Username or email already exists")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":       u.ID,
			"username": u.Username,
			"email":    u.Email,
			"message":  "User created successfully",
		})
	})

	r.Get("/", func(c *fiber.Ctx) error {
		users, err := svc.List(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(users)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		u, err := svc.Get(c.Context(), c.Params("id"))
		if errors.Is(err, pgx.ErrNoRows) {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(u)
	})
}
