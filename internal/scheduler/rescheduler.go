package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/behflow/behflow/internal/dates"
	"github.com/behflow/behflow/internal/storage"
)

// Rescheduler 是每日改期作业：把所有逾期未完成的任务顺延到当天结束。
// 一个放了一晚的待办第二天打开时截止时间仍然是“今天”，而不是一串过期红字。
type Rescheduler struct {
	cfg    RescheduleConfig
	store  *storage.Storage
	logger *zap.Logger
	loc    *time.Location
}

func NewRescheduler(cfg RescheduleConfig, store *storage.Storage, logger *zap.Logger) (*Rescheduler, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	loc, err := dates.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return &Rescheduler{cfg: cfg, store: store, logger: logger, loc: loc}, nil
}

// Run 阻塞运行，直到 ctx 取消。
// 启动时先补跑一次，然后按配置的本地时间每天触发。
func (r *Rescheduler) Run(ctx context.Context) error {
	if r == nil || r.store == nil {
		return errors.New("rescheduler not initialized")
	}

	if err := r.RunOnce(ctx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	for {
		next := r.nextRun(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if err := r.RunOnce(ctx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

// nextRun 计算 now 之后最近的一个触发时刻（本地 RunAtHour:RunAtMinute）
func (r *Rescheduler) nextRun(now time.Time) time.Time {
	local := now.In(r.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(),
		r.cfg.RunAtHour, r.cfg.RunAtMinute, 0, 0, r.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunOnce 执行一轮改期：逐用户把逾期未完成任务的截止时间改到当天 23:59:59。
func (r *Rescheduler) RunOnce(ctx context.Context, now time.Time) error {
	nowUTC := now.UTC()
	userIDs, err := r.store.ListUserIDsWithOverdueTasks(ctx, nowUTC)
	if err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}

	newDue := dates.EndOfDay(now, r.loc).UTC()
	newDueJalali := dates.ToJalali(newDue, r.loc)

	var total int64
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := r.store.RescheduleOverdueTasks(ctx, userID, nowUTC, newDue, newDueJalali)
		if err != nil {
			r.logger.Warn("reschedule overdue tasks failed",
				zap.String("user_id", userID), zap.Error(err))
			continue
		}
		total += n
	}

	r.logger.Info("rescheduled overdue tasks",
		zap.Int("users", len(userIDs)),
		zap.Int64("tasks", total),
		zap.String("new_due", newDue.Format(time.RFC3339)))
	return nil
}
