package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	appconfig "game-battle-service/config"
	"game-battle-service/logging"
	"game-battle-service/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ObjectPutter is the subset of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Archiver writes finished battles to an S3-compatible bucket as one JSON document each.
type R2Archiver struct {
	Client  ObjectPutter
	Bucket  string
	Timeout time.Duration
}

// NewR2Client builds an S3 client for Cloudflare R2 (or any S3 endpoint).
func NewR2Client(ctx context.Context, cfg appconfig.R2Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.EndpointURL())
		o.UsePathStyle = true
	}), nil
}

func NewR2Archiver(client ObjectPutter, bucket string) *R2Archiver {
	return &R2Archiver{Client: client, Bucket: bucket, Timeout: 10 * time.Second}
}

type battleArchive struct {
	Battle     *models.Battle `json:"battle"`
	Turns      []models.Turn  `json:"turns"`
	ArchivedAt time.Time      `json:"archivedAt"`
}

// ArchiveKey is the object key for a battle: battles/<game>/<yyyy>/<mm>/<id>.json.
func ArchiveKey(b *models.Battle) string {
	return fmt.Sprintf("battles/%s/%s/%s.json", b.GameSlug, b.CreatedAt.UTC().Format("2006/01"), b.ID)
}

func (a *R2Archiver) ArchiveBattle(ctx context.Context, b *models.Battle, turns []models.Turn) error {
	body, err := json.Marshal(battleArchive{Battle: b, Turns: turns, ArchivedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	key := ArchiveKey(b)
	_, err = a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to R2: %w", err)
	}
	logging.L().Info("battle_archived", zap.String("battle_id", b.ID), zap.String("key", key))
	return nil
}
