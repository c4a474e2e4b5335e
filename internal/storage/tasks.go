package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/behflow/behflow/internal/dates"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// jalaliLoc 为创建时间的波斯历冗余文本使用的时区
var jalaliLoc = func() *time.Location {
	loc, err := time.LoadLocation(dates.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}()

// TaskQuery 用于查询某个用户任务的过滤条件。
//
// 设计原则：
//   - UserID 必填，所有查询都以用户为边界（任务隔离）。
//   - 其余字段均为“可选过滤条件”，零值表示不参与过滤。
type TaskQuery struct {
	UserID string
	// Status/Priority 精确匹配。
	Status   Status
	Priority Priority
	// Limit/Offset 分页；Limit<=0 使用默认值。
	Limit  int
	Offset int
}

func (s *Storage) CreateTask(ctx context.Context, task *Task) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if task == nil {
		return errors.New("task is nil")
	}
	if task.UserID == "" {
		return errors.New("task user id is empty")
	}
	if strings.TrimSpace(task.Name) == "" {
		return errors.New("task name is empty")
	}
	if task.TaskID == "" {
		task.TaskID = uuid.New().String()
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.CreatedAtJalali == "" {
		task.CreatedAtJalali = dates.ToJalali(task.CreatedAt, jalaliLoc)
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTaskByID 按主键查询任务；不存在时返回 (nil, nil)。
func (s *Storage) GetTaskByID(ctx context.Context, taskID string) (*Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var task Task
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// ListUserTasks 按创建时间倒序返回某个用户的任务。
func (s *Storage) ListUserTasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	if q.UserID == "" {
		return nil, errors.New("user id is required")
	}

	limit := normalizeLimit(q.Limit)
	db := s.db.WithContext(ctx).Model(&Task{}).Where("user_id = ?", q.UserID)
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.Priority != "" {
		db = db.Where("priority = ?", q.Priority)
	}
	db = db.Order("created_at DESC").Offset(q.Offset).Limit(limit)

	var out []Task
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list user tasks: %w", err)
	}
	return out, nil
}

// TaskUpdate 描述一次局部更新；nil 字段不参与更新。
type TaskUpdate struct {
	Name          *string
	Description   *string
	Priority      *Priority
	Status        *Status
	Tags          *StringSlice
	DueDate       *time.Time
	DueDateJalali *string
	ClearDueDate  bool
}

// UpdateTask 局部更新任务；状态切到 completed 时填充 CompletedAt。
// 任务不存在时返回 (nil, nil)。
func (s *Storage) UpdateTask(ctx context.Context, taskID string, up TaskUpdate) (*Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	task, err := s.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	updates := make(map[string]interface{})
	if up.Name != nil {
		updates["name"] = *up.Name
	}
	if up.Description != nil {
		updates["description"] = *up.Description
	}
	if up.Priority != nil {
		updates["priority"] = *up.Priority
	}
	if up.Status != nil {
		updates["status"] = *up.Status
		if *up.Status == StatusCompleted && task.CompletedAt == nil {
			updates["completed_at"] = time.Now().UTC()
		}
	}
	if up.Tags != nil {
		updates["tags"] = *up.Tags
	}
	if up.ClearDueDate {
		updates["due_date"] = nil
		updates["due_date_jalali"] = ""
	} else if up.DueDate != nil {
		updates["due_date"] = *up.DueDate
		if up.DueDateJalali != nil {
			updates["due_date_jalali"] = *up.DueDateJalali
		}
	}

	if len(updates) == 0 {
		return task, nil
	}

	res := s.db.WithContext(ctx).Model(&Task{}).Where("task_id = ?", taskID).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update task: %w", res.Error)
	}
	return s.GetTaskByID(ctx, taskID)
}

// DeleteTask 删除任务，返回是否确实删除了一行。
func (s *Storage) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("storage not initialized")
	}
	res := s.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&Task{})
	if res.Error != nil {
		return false, fmt.Errorf("delete task: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SearchTasks 对名称与描述做大小写不敏感的子串匹配，限定在某个用户内。
func (s *Storage) SearchTasks(ctx context.Context, userID, term string, limit int) ([]Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	// SQLite 的 LIKE 对 ASCII 默认不区分大小写；显式 lower 两侧保证语义。
	pattern := "%" + strings.ToLower(term) + "%"
	db := s.db.WithContext(ctx).Model(&Task{}).
		Where("user_id = ?", userID).
		Where("lower(name) LIKE ? OR lower(description) LIKE ?", pattern, pattern).
		Order("created_at DESC").
		Limit(normalizeLimit(limit))

	var out []Task
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	return out, nil
}

// ListTasksByTag 返回带某个标签的任务（标签以 JSON 文本存储，用子串匹配后再精确过滤）。
func (s *Storage) ListTasksByTag(ctx context.Context, userID, tag string, limit int) ([]Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	db := s.db.WithContext(ctx).Model(&Task{}).
		Where("user_id = ?", userID).
		Where("tags LIKE ?", "%"+tag+"%").
		Order("created_at DESC").
		Limit(normalizeLimit(limit))

	var rough []Task
	if err := db.Find(&rough).Error; err != nil {
		return nil, fmt.Errorf("list tasks by tag: %w", err)
	}

	out := make([]Task, 0, len(rough))
	for _, t := range rough {
		for _, have := range t.Tags {
			if have == tag {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

// ListOverdueTasks 返回截止时间已过且仍未完成（pending/in_progress）的任务，按截止时间升序。
func (s *Storage) ListOverdueTasks(ctx context.Context, userID string, now time.Time) ([]Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	var out []Task
	err := s.db.WithContext(ctx).Model(&Task{}).
		Where("user_id = ?", userID).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("status IN ?", []Status{StatusPending, StatusInProgress}).
		Order("due_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	return out, nil
}

// TaskStatistics 为每个状态的任务计数。
type TaskStatistics struct {
	Total      int64
	Pending    int64
	InProgress int64
	Completed  int64
	Cancelled  int64
}

func (s *Storage) GetTaskStatistics(ctx context.Context, userID string) (TaskStatistics, error) {
	var stats TaskStatistics
	if s == nil || s.db == nil {
		return stats, errors.New("storage not initialized")
	}
	if userID == "" {
		return stats, errors.New("user id is required")
	}

	type row struct {
		Status Status
		N      int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&Task{}).
		Select("status, count(*) as n").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, fmt.Errorf("task statistics: %w", err)
	}

	for _, r := range rows {
		stats.Total += r.N
		switch r.Status {
		case StatusPending:
			stats.Pending = r.N
		case StatusInProgress:
			stats.InProgress = r.N
		case StatusCompleted:
			stats.Completed = r.N
		case StatusCancelled:
			stats.Cancelled = r.N
		}
	}
	return stats, nil
}

// RescheduleOverdueTasks 将某个用户所有逾期未完成任务的截止时间改到 newDue，
// 返回受影响行数。由每日改期作业调用。
func (s *Storage) RescheduleOverdueTasks(ctx context.Context, userID string, now, newDue time.Time, newDueJalali string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	if userID == "" {
		return 0, errors.New("user id is required")
	}

	res := s.db.WithContext(ctx).Model(&Task{}).
		Where("user_id = ?", userID).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("status IN ?", []Status{StatusPending, StatusInProgress}).
		Updates(map[string]interface{}{
			"due_date":        newDue,
			"due_date_jalali": newDueJalali,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reschedule overdue tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListUserIDsWithOverdueTasks 返回存在逾期未完成任务的用户 ID 列表（去重）。
func (s *Storage) ListUserIDsWithOverdueTasks(ctx context.Context, now time.Time) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var ids []string
	err := s.db.WithContext(ctx).Model(&Task{}).
		Distinct("user_id").
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("status IN ?", []Status{StatusPending, StatusInProgress}).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list users with overdue tasks: %w", err)
	}
	return ids, nil
}

func (s *Storage) CountTasks(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&Task{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func normalizeLimit(v int) int {
	if v <= 0 {
		return defaultLimit
	}
	if v > maxLimit {
		return maxLimit
	}
	return v
}
