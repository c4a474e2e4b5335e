package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/behflow/behflow/internal/storage"
)

// AuditRetention 周期性清理审计记录，只保留最新的 KeepLatest 条
type AuditRetention struct {
	cfg    RetentionConfig
	store  *storage.Storage
	logger *zap.Logger
}

func NewAuditRetention(cfg RetentionConfig, store *storage.Storage, logger *zap.Logger) (*AuditRetention, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRetention{cfg: cfg.withDefaults(), store: store, logger: logger}, nil
}

func (c *AuditRetention) Run(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("audit retention not initialized")
	}

	if err := c.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

func (c *AuditRetention) runOnce(ctx context.Context) error {
	deleted, err := c.store.DeleteAuditRecordsKeepLatest(ctx, c.cfg.KeepLatest)
	if err != nil {
		return err
	}
	if deleted > 0 {
		c.logger.Info("pruned audit records", zap.Int64("deleted", deleted))
	}
	return nil
}
