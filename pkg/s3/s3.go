package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
)

// ItfS3 archives processed uploads.
type ItfS3 interface {
	UploadImage(ctx context.Context, data []byte, format string) (string, error)
}

type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

type s3Client struct {
	uploader   *s3manager.Uploader
	bucketName string
	prefix     string
}

func New(cfg Config) (ItfS3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	sess, err := newSession(cfg)
	if err != nil {
		return nil, err
	}

	return &s3Client{
		uploader:   s3manager.NewUploader(sess),
		bucketName: cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *s3Client) UploadImage(ctx context.Context, data []byte, format string) (string, error) {
	key := objectKey(s.prefix, time.Now(), uuid.NewString(), format)

	uploadOutput, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(format)),
	})
	if err != nil {
		return "", err
	}

	return uploadOutput.Location, nil
}

// objectKey lays uploads out by day: <prefix>/2006/01/02/<id>.<ext>.
func objectKey(prefix string, t time.Time, id string, format string) string {
	ext := format
	if ext == "" {
		ext = "bin"
	}
	return path.Join(prefix, t.UTC().Format("2006/01/02"), id+"."+ext)
}

func contentType(format string) string {
	if format == "" {
		return "application/octet-stream"
	}
	return "image/" + format
}

func newSession(cfg Config) (*session.Session, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}

	return sess, nil
}
