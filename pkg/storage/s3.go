package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FolderSummaries is the S3 prefix for archived stream summaries.
const FolderSummaries = "summaries"

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	SummariesBucket      string
	PresignExpireMinutes int
}

// S3 archives final stream summaries as JSON objects.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client. Static credentials from config are preferred;
// with none set the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	} else if logger != nil {
		logger.Warn("S3 client using default credential chain")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// SummaryKey returns the object key for a stream's final summary.
func SummaryKey(streamID uuid.UUID) string {
	return fmt.Sprintf("%s/%s.json", FolderSummaries, streamID.String())
}

// ArchiveSummary uploads a final summary JSON for a stream and returns the
// object key.
func (s *S3) ArchiveSummary(ctx context.Context, streamID uuid.UUID, body []byte) (string, error) {
	key := SummaryKey(streamID)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.SummariesBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload summary: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("stream summary archived", zap.String("stream_id", streamID.String()), zap.String("key", key))
	}
	return key, nil
}

// PresignSummaryURL returns a time-limited download URL for a stream's
// archived summary.
func (s *S3) PresignSummaryURL(ctx context.Context, streamID uuid.UUID) (string, error) {
	expire := time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
	if expire <= 0 {
		expire = 15 * time.Minute
	}
	out, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.SummariesBucket),
		Key:    aws.String(SummaryKey(streamID)),
	}, s3.WithPresignExpires(expire))
	if err != nil {
		return "", fmt.Errorf("presign summary: %w", err)
	}
	return out.URL, nil
}
