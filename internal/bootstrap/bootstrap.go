// Package bootstrap builds the infrastructure shared by the API server and
// the outbox worker from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jwalitptl/carebook-api/internal/config"
	"github.com/jwalitptl/carebook-api/internal/email"
	"github.com/jwalitptl/carebook-api/pkg/logger"
	"github.com/jwalitptl/carebook-api/pkg/messaging"
	"github.com/jwalitptl/carebook-api/pkg/messaging/kafka"
	"github.com/jwalitptl/carebook-api/pkg/messaging/redis"
	"github.com/jwalitptl/carebook-api/pkg/storage"
	"github.com/jwalitptl/carebook-api/pkg/worker"
)

func Logger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
	})
}

// Broker connects to the configured message broker. It returns nil for
// the "none" broker.
func Broker(cfg *config.Config, log *logger.Logger) (messaging.Broker, error) {
	switch cfg.Messaging.Broker {
	case "redis":
		return redis.NewRedisBroker(redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, log.Zerolog())
	case "kafka":
		return kafka.NewKafkaBroker(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			GroupID:      cfg.Kafka.GroupID,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, log.Zerolog())
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported message broker %q", cfg.Messaging.Broker)
	}
}

// BlobStore opens the attachment store, sealing blobs when an encryption
// key is configured.
func BlobStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, error) {
	var (
		store storage.BlobStore
		err   error
	)
	switch cfg.Driver {
	case "s3":
		store, err = storage.NewS3Store(ctx, storage.S3Config{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Endpoint: cfg.Endpoint,
		})
	case "local", "":
		store, err = storage.NewLocalStore(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.EncryptionKey == "" {
		return store, nil
	}
	key, err := storage.KeyFromBase64(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ATTACHMENT_KEY: %w", err)
	}
	encrypted, err := storage.NewEncryptedStore(store, key)
	if err != nil {
		return nil, err
	}
	return encrypted, nil
}

// Mailer returns nil when SMTP delivery is disabled.
func Mailer(cfg config.SMTPConfig) email.Service {
	if !cfg.Enabled {
		return nil
	}
	return email.NewSMTPService(email.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}

func OutboxConfig(cfg *config.Config) worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		Topic:         cfg.Messaging.Topic,
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
	}
}
