package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/previsit/internal/clipboard"
	appconfig "github.com/wolfman30/previsit/internal/config"
	"github.com/wolfman30/previsit/internal/observability/metrics"
	"github.com/wolfman30/previsit/internal/scheduling"
	"github.com/wolfman30/previsit/pkg/logging"
)

// Clipboard backends selectable with CLIPBOARD_BACKEND.
const (
	ClipboardMemory = "memory"
	ClipboardRedis  = "redis"
	ClipboardS3     = "s3"
)

// AWSConfigLoader resolves AWS settings for the S3 clipboard.
type AWSConfigLoader func(ctx context.Context, cfg *appconfig.Config) (aws.Config, error)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSchedulingClient builds the backend client from config.
func BuildSchedulingClient(cfg *appconfig.Config, logger *logging.Logger, m *metrics.Metrics) (*scheduling.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	return scheduling.New(scheduling.Config{
		BaseURL: cfg.BackendBaseURL,
		Timeout: cfg.BackendTimeout,
		Logger:  logger,
		Metrics: m,
	})
}

// BuildClipboard picks the note export sink. The redis backend needs a
// reachable Redis; the s3 backend needs a bucket and AWS config. A
// misconfigured backend is an error rather than a silent fallback, so the
// operator never believes a note was shared when it was not.
func BuildClipboard(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, loadAWS AWSConfigLoader, logger *logging.Logger) (clipboard.Clipboard, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.ClipboardBackend {
	case "", ClipboardMemory:
		logger.Info("clipboard: using in-memory sink")
		return clipboard.NewMemory(), nil
	case ClipboardRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: clipboard backend redis requires REDIS_ADDR")
		}
		logger.Info("clipboard: using redis sink", "ttl", cfg.ClipboardTTL.String())
		return clipboard.NewRedis(redisClient, cfg.ClipboardTTL), nil
	case ClipboardS3:
		if strings.TrimSpace(cfg.ClipboardS3Bucket) == "" {
			return nil, fmt.Errorf("bootstrap: clipboard backend s3 requires CLIPBOARD_S3_BUCKET")
		}
		if loadAWS == nil {
			return nil, fmt.Errorf("bootstrap: clipboard backend s3 requires an AWS config loader")
		}
		awsCfg, err := loadAWS(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			// LocalStack and MinIO only serve path-style buckets.
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		sink, err := clipboard.NewS3(client, cfg.ClipboardS3Bucket)
		if err != nil {
			return nil, err
		}
		logger.Info("clipboard: using s3 sink", "bucket", cfg.ClipboardS3Bucket)
		return sink, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown clipboard backend %q", cfg.ClipboardBackend)
	}
}
