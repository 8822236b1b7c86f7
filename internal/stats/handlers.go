package stats

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, reader Reader) {
	r.Get("/session/:sessionID", func(c *fiber.Ctx) error {
		records, err := reader.SessionStats(c.Context(), c.Params("sessionID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(records)
	})

	r.Get("/session/:sessionID/user/:userID", func(c *fiber.Ctx) error {
		rec, err := reader.UserStats(c.Context(), Key{SessionID: c.Params("sessionID"), UserID: c.Params("userID")})
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Stats not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(rec)
	})

	r.Get("/user/:userID/summary", func(c *fiber.Ctx) error {
		sum, err := reader.UserSummary(c.Context(), c.Params("userID"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "No stats found for user")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(sum)
	})
}
