package controllers

import (
	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

// HealthController exposes the health report.
type HealthController struct {
	service *services.HealthService
}

func NewHealthController(service *services.HealthService) *HealthController {
	return &HealthController{service: service}
}

// GetHealthStatus returns the aggregated health report; 503 when a critical
// dependency is down.
func (hc *HealthController) GetHealthStatus(c *fiber.Ctx) error {
	report := hc.service.Report(c.UserContext())
	return c.Status(services.HTTPStatus(report.Status)).JSON(report)
}
