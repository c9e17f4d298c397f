package middleware

import (
	"PlateVision/pkg/metrics"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// NewMetricsMiddleware records request count and latency labelled by route template.
func (m *middleware) NewMetricsMiddleware(c *fiber.Ctx) error {
	start := time.Now()

	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			status = fiberErr.Code
		}
	}

	path := c.Path()
	if route := c.Route(); route != nil && route.Path != "" {
		path = route.Path
	}

	metrics.RecordRequest(c.Method(), path, strconv.Itoa(status), time.Since(start).Seconds())
	metrics.UpdateSystemUsage()

	return err
}
