package admin

import (
	"github.com/gofiber/fiber/v2"

	"quizhub/utils"
)

// ManualCleanup purges stale guest accounts now instead of waiting for the next tick.
// POST /api/admin/cleanup
func ManualCleanup(c *fiber.Ctx) error {
	if cleanup == nil {
		return utils.JSONError(c, fiber.StatusServiceUnavailable, "Guest cleanup is disabled")
	}
	removed, err := cleanup.PurgeStaleGuests(c.UserContext())
	if err != nil {
		adminLog.Error("Manual cleanup failed", "error", err)
		return utils.JSONError(c, fiber.StatusInternalServerError, "Cleanup failed")
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"removed": removed})
}
