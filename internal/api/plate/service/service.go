package plateService

import (
	"PlateVision/internal/entity"
	"PlateVision/pkg/detector"
	"PlateVision/pkg/recognizer"
	"PlateVision/pkg/redis"
	"PlateVision/pkg/s3"
	"PlateVision/pkg/utils"
	"context"
	"github.com/sirupsen/logrus"
	"sync"
	"time"
)

type IPlateService interface {
	ProcessImage(ctx context.Context, data []byte) (*entity.PlateResult, error)
	ProcessImages(ctx context.Context, images [][]byte) ([]entity.PlateResult, error)
	CheckHealth(ctx context.Context) map[string]string
	// Close waits for background archive uploads; later uploads are skipped.
	Close() error
}

type Config struct {
	// WorkerLimit bounds concurrent recognizer calls for one image.
	WorkerLimit int
	// ImageConcurrency bounds images processed at once by ProcessImages.
	ImageConcurrency int
	DetectTimeout    time.Duration
	RecognizeTimeout time.Duration
	CacheTTL         time.Duration
	ArchiveTimeout   time.Duration
	// MaxImagePixels rejects larger images before decoding; 0 means no limit.
	MaxImagePixels int64
	// DetectorBackend labels detector metrics.
	DetectorBackend string
}

// All methods of plateService may be called concurrently.
type plateService struct {
	log        *logrus.Logger
	detector   detector.IDetector
	recognizer recognizer.IRecognizer
	cache      redis.IRedis
	archive    s3.ItfS3
	utils      utils.IUtils
	cfg        Config

	uploadsMu sync.Mutex
	closed    bool
	uploads   sync.WaitGroup
}

// NewPlateService wires the pipeline. cache and archive are optional and may be nil.
func NewPlateService(
	log *logrus.Logger,
	detector detector.IDetector,
	recognizer recognizer.IRecognizer,
	cache redis.IRedis,
	archive s3.ItfS3,
	utils utils.IUtils,
	cfg Config,
) IPlateService {
	if cfg.WorkerLimit < 1 {
		cfg.WorkerLimit = 1
	}
	if cfg.ImageConcurrency < 1 {
		cfg.ImageConcurrency = 1
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 30 * time.Second
	}

	return &plateService{
		log:        log,
		detector:   detector,
		recognizer: recognizer,
		cache:      cache,
		archive:    archive,
		utils:      utils,
		cfg:        cfg,
	}
}
