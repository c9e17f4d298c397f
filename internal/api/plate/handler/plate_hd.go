package plateHandler

import (
	"PlateVision/internal/api/plate"
	contextPkg "PlateVision/pkg/context"
	"PlateVision/pkg/handlerUtil"
	"PlateVision/pkg/log"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

// ProcessImage reads the first uploaded file and answers {"plate": "..."}. Extra files are
// ignored.
func (h *PlateHandler) ProcessImage(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	files := h.uploadedFiles(ctx)
	if len(files) == 0 {
		return errHandler.Handle(ctx, requestID, plate.ErrNoFile, ctx.Path(), "read_upload")
	}
	if len(files) > 1 {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"files":      len(files),
		}).Debug("Ignoring extra uploaded files")
	}

	data, err := h.readUpload(files[0])
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_upload")
	}

	result, err := h.plateService.ProcessImage(c, data)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "process_image")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"plate":      result.Plate,
		"boxes":      len(result.Recognitions),
		"cached":     result.Cached,
	}).Info("Plate processed")

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, plate.ProcessImageResponse{Plate: result.Plate})
}

// Process accepts a multipart upload or a JSON body with a base64 image and answers with
// the per-box details.
func (h *PlateHandler) Process(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var data []byte
	var err error

	if strings.HasPrefix(string(ctx.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		files := h.uploadedFiles(ctx)
		if len(files) == 0 {
			return errHandler.Handle(ctx, requestID, plate.ErrNoFile, ctx.Path(), "read_upload")
		}

		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"file_name":  files[0].Filename,
			"file_size":  files[0].Size,
		}).Debug("Processing file upload")

		data, err = h.readUpload(files[0])
		if err != nil {
			return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_upload")
		}
	} else {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
		}).Debug("Processing JSON request")

		var req plate.ProcessBase64Request
		if err := ctx.BodyParser(&req); err != nil {
			return errHandler.Handle(ctx, requestID, plate.ErrNoFile, ctx.Path(), "parse_request_body")
		}

		if err := h.validator.Struct(req); err != nil {
			return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
		}

		data, err = h.utils.DecodeBase64Image(req.ImageBase64)
		if err != nil {
			return errHandler.Handle(ctx, requestID, err, ctx.Path(), "decode_base64")
		}
	}

	result, err := h.plateService.ProcessImage(c, data)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "process_image")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, plate.ProcessDetailResponse{Data: result})
}

// Batch processes every uploaded file and answers the plates in upload order.
func (h *PlateHandler) Batch(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	files := h.uploadedFiles(ctx)
	if len(files) == 0 {
		return errHandler.Handle(ctx, requestID, plate.ErrNoFile, ctx.Path(), "read_upload")
	}
	if len(files) > h.maxBatchFiles {
		return errHandler.Handle(ctx, requestID, plate.ErrTooManyFiles, ctx.Path(), "read_upload")
	}

	images := make([][]byte, 0, len(files))
	for _, file := range files {
		data, err := h.readUpload(file)
		if err != nil {
			return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_upload")
		}
		images = append(images, data)
	}

	results, err := h.plateService.ProcessImages(c, images)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "process_images")
	}

	plates := make([]string, len(results))
	for i, r := range results {
		plates[i] = r.Plate
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"images":     len(images),
	}).Info("Plate batch processed")

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, plate.BatchResponse{Plates: plates})
}

func (h *PlateHandler) Health(ctx *fiber.Ctx) error {
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.requestTimeout)
	defer cancel()

	components := h.plateService.CheckHealth(c)

	status := "ok"
	for _, s := range components {
		if s != "ok" {
			status = "degraded"
			break
		}
	}

	return ctx.Status(fiber.StatusOK).JSON(plate.HealthResponse{
		Status:     status,
		Components: components,
		Models:     h.models,
	})
}

// uploadedFiles returns the files of the upload field in upload order, or nil when the
// request carries no multipart form.
func (h *PlateHandler) uploadedFiles(ctx *fiber.Ctx) []*multipart.FileHeader {
	form, err := ctx.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	return form.File[plate.UploadField]
}

func (h *PlateHandler) readUpload(file *multipart.FileHeader) ([]byte, error) {
	if err := h.utils.ValidateImageFile(file); err != nil {
		return nil, err
	}
	return h.utils.ReadFile(file)
}
