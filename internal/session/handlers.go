package session

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
		sess, err := svc.Create(c.Context(), req)
		if errors.Is(err, ErrInvalid) {
			return fiber.NewError(fiber.StatusBadRequest, "Name and creator_id are required")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":         sess.ID,
			"name":       sess.Name,
			"creator_id": sess.CreatorID,
			"location":   sess.Location,
			"start_time": sess.StartTime,
			"status":     sess.Status,
			"message":    "Session created successfully",
		})
	})

	r.Get("/", func(c *fiber.Ctx) error {
		sessions, err := svc.List(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(sessions)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		sess, err := svc.Get(c.Context(), c.Params("id"))
		if errors.Is(err, pgx.ErrNoRows) {
			return fiber.NewError(fiber.StatusNotFound, "Session not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(sess)
	})

	r.Post("/:id/join", func(c *fiber.Ctx) error {
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := c.BodyParser(&body); err != nil || body.UserID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "user_id is required")
		}
		err := svc.Join(c.Context(), c.Params("id"), body.UserID)
		if errors.Is(err, ErrAlreadyJoined) {
			return fiber.NewError(fiber.StatusBadRequest, "User already in session")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"message": "Joined session successfully"})
	})

	r.Patch("/:id/end", func(c *fiber.Ctx) error {
		err := svc.End(c.Context(), c.Params("id"))
		if errors.Is(err, pgx.ErrNoRows) {
			return fiber.NewError(fiber.StatusNotFound, "Session not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"message": "Session ended successfully"})
	})
}
