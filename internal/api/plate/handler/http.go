package plateHandler

import (
	"PlateVision/internal/api/plate"
	plateService "PlateVision/internal/api/plate/service"
	"PlateVision/internal/middleware"
	"PlateVision/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"time"
)

type PlateHandler struct {
	log            *logrus.Logger
	validator      *validator.Validate
	middleware     middleware.Middleware
	plateService   plateService.IPlateService
	utils          utils.IUtils
	requestTimeout time.Duration
	maxBatchFiles  int
	models         plate.ModelSources
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ps plateService.IPlateService,
	utils utils.IUtils,
	requestTimeout time.Duration,
	maxBatchFiles int,
	models plate.ModelSources,
) *PlateHandler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if maxBatchFiles <= 0 {
		maxBatchFiles = 8
	}

	return &PlateHandler{
		plateService:   ps,
		log:            log,
		validator:      validator,
		middleware:     middleware,
		utils:          utils,
		requestTimeout: requestTimeout,
		maxBatchFiles:  maxBatchFiles,
		models:         models,
	}
}

// Start mounts the versioned routes under srv (the /api/v1 group).
func (h *PlateHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	plates := srv.Group("/plates")
	plates.Post("/process", h.middleware.NewRateLimiter, h.Process)
	plates.Post("/batch", h.middleware.NewRateLimiter, h.Batch)
	plates.Use("/ws", wsMiddleware)
	plates.Get("/ws", websocket.New(h.handlePlateWebSocket))
}

// StartRoot mounts the unversioned endpoints kept for existing clients.
func (h *PlateHandler) StartRoot(app fiber.Router) {
	app.Post("/process_image", h.middleware.NewRateLimiter, h.ProcessImage)
	app.Get("/", h.Health)
	app.Get("/health", h.Health)
}
