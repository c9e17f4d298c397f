package config

import (
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// NewFiber builds the app. bodyLimit caps the whole request; per-file limits are enforced
// when uploads are read.
func NewFiber(logger *logrus.Logger, bodyLimit int) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:               "PlateVision",
			BodyLimit:             bodyLimit,
			DisableKeepalive:      false,
			StrictRouting:         true,
			CaseSensitive:         true,
			DisableStartupMessage: true,
			JSONEncoder:           jsoniter.Marshal,
			JSONDecoder:           jsoniter.Unmarshal,
		})

	logger.Debugf("Fiber body limit set to %d bytes", bodyLimit)

	return app
}
