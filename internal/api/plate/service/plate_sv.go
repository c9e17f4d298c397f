package plateService

import (
	"PlateVision/internal/api/plate"
	"PlateVision/internal/entity"
	contextPkg "PlateVision/pkg/context"
	"PlateVision/pkg/imaging"
	"PlateVision/pkg/metrics"
	"PlateVision/pkg/redis"
	"PlateVision/pkg/response"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func (s *plateService) ProcessImage(ctx context.Context, data []byte) (*entity.PlateResult, error) {
	start := time.Now()
	requestID := contextPkg.GetRequestID(ctx)

	img, format, err := imaging.Decode(data, s.cfg.MaxImagePixels)
	if err != nil {
		return nil, response.Wrap(plate.ErrInvalidImage, err)
	}

	fingerprint := s.utils.Fingerprint(data)
	if cached := s.lookupCache(ctx, requestID, fingerprint); cached != nil {
		return cached, nil
	}

	s.archiveUpload(requestID, data, format)

	boxes, err := s.detect(ctx, img)
	if err != nil {
		return nil, err
	}
	metrics.ObserveBoxes(len(boxes))

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"boxes":      len(boxes),
		"width":      img.Bounds().Dx(),
		"height":     img.Bounds().Dy(),
	}).Debug("Plates detected")

	recognitions, err := s.recognizeBoxes(ctx, img, boxes)
	if err != nil {
		return nil, err
	}

	result := &entity.PlateResult{
		Plate:        FlatText(recognitions),
		Recognitions: recognitions,
		ElapsedMs:    time.Since(start).Milliseconds(),
	}

	s.storeCache(ctx, requestID, fingerprint, result)

	return result, nil
}

func (s *plateService) ProcessImages(ctx context.Context, images [][]byte) ([]entity.PlateResult, error) {
	results := make([]entity.PlateResult, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ImageConcurrency)

	for i, data := range images {
		g.Go(func() error {
			result, err := s.ProcessImage(gctx, data)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			results[i] = *result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (s *plateService) CheckHealth(ctx context.Context) map[string]string {
	components := map[string]string{
		"detector":   componentStatus(s.detector.CheckHealth(ctx)),
		"recognizer": componentStatus(s.recognizer.CheckHealth(ctx)),
	}
	if s.cache != nil {
		components["cache"] = componentStatus(s.cache.Ping(ctx))
	}
	return components
}

func (s *plateService) detect(ctx context.Context, img image.Image) ([]entity.BoundingBox, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.DetectTimeout)
	defer cancel()

	start := time.Now()
	boxes, err := s.detector.Detect(ctx, img)
	metrics.ObserveInference("detect", s.cfg.DetectorBackend, time.Since(start), err)
	if err != nil {
		return nil, inferenceError(plate.ErrDetectionFailed, err)
	}

	return boxes, nil
}

// recognizeBoxes fans out one recognizer call per box, at most WorkerLimit at a time.
// Results land at their box index; the first failure cancels the rest.
func (s *plateService) recognizeBoxes(ctx context.Context, img image.Image, boxes []entity.BoundingBox) ([]entity.PlateRecognition, error) {
	recognitions := make([]entity.PlateRecognition, len(boxes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WorkerLimit)

	for i, box := range boxes {
		g.Go(func() error {
			raw, err := s.recognizeBox(gctx, img, box)
			if err != nil {
				return fmt.Errorf("box %d: %w", i, err)
			}
			recognitions[i] = entity.PlateRecognition{
				Index:   i,
				Box:     box,
				RawText: raw,
				Text:    CleanText(raw),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return recognitions, nil
}

func (s *plateService) recognizeBox(ctx context.Context, img image.Image, box entity.BoundingBox) (string, error) {
	crop, ok := imaging.Crop(img, box.Rect())
	if !ok {
		return "", nil
	}

	ctx, cancel := withTimeout(ctx, s.cfg.RecognizeTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.recognizer.Recognize(ctx, crop)
	metrics.ObserveInference("recognize", s.recognizer.Name(), time.Since(start), err)
	if err != nil {
		return "", inferenceError(plate.ErrRecognitionFailed, err)
	}

	return text, nil
}

func (s *plateService) lookupCache(ctx context.Context, requestID, fingerprint string) *entity.PlateResult {
	if s.cache == nil {
		return nil
	}

	cached, err := s.cache.GetPlate(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Warn("Plate cache lookup failed")
		}
		metrics.RecordCacheLookup(false)
		return nil
	}

	metrics.RecordCacheLookup(true)
	cached.Cached = true
	return cached
}

func (s *plateService) storeCache(ctx context.Context, requestID, fingerprint string, result *entity.PlateResult) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return
	}

	if err := s.cache.SetPlate(ctx, fingerprint, result, s.cfg.CacheTTL); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Failed to cache plate result")
	}
}

// archiveUpload stores the upload in the background; the response never waits for it.
func (s *plateService) archiveUpload(requestID string, data []byte, format string) {
	if s.archive == nil {
		return
	}

	s.uploadsMu.Lock()
	defer s.uploadsMu.Unlock()
	if s.closed {
		s.log.WithField("request_id", requestID).Warn("Service closed, upload not archived")
		return
	}

	s.uploads.Add(1)
	go func() {
		defer s.uploads.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ArchiveTimeout)
		defer cancel()

		location, err := s.archive.UploadImage(ctx, data, format)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Warn("Failed to archive upload")
			return
		}

		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"location":   location,
		}).Debug("Upload archived")
	}()
}

func (s *plateService) Close() error {
	s.uploadsMu.Lock()
	s.closed = true
	s.uploadsMu.Unlock()

	s.uploads.Wait()
	return nil
}

func inferenceError(sentinel error, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return response.Wrap(plate.ErrInferenceTimeout, err)
	}
	return response.Wrap(sentinel, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func componentStatus(err error) string {
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	return "ok"
}
