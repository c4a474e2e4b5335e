package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/behflow/behflow/internal/dates"
	"github.com/behflow/behflow/internal/storage"
)

const maxTasksPerTool = 200

// formatTaskLine 将任务格式化为单行摘要，用于工具返回给模型的文本
func formatTaskLine(t *storage.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s] %s (id=%s, priority=%s", t.Status, t.Name, t.TaskID, t.Priority)
	if t.DueDate != nil {
		fmt.Fprintf(&b, ", due=%s", t.DueDate.UTC().Format("2006-01-02 15:04"))
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(&b, ", tags=%s", strings.Join(t.Tags, ","))
	}
	b.WriteString(")")
	return b.String()
}

func formatTaskList(tasks []storage.Task) string {
	lines := make([]string, 0, len(tasks))
	for i := range tasks {
		lines = append(lines, formatTaskLine(&tasks[i]))
	}
	return strings.Join(lines, "\n")
}

// resolveOwnedTask 根据任务 ID 查找任务并校验归属
// 任务不存在或不属于当前用户时，返回给模型可读的提示字符串
func resolveOwnedTask(ctx context.Context, store *storage.Storage, taskID string) (*storage.Task, string, error) {
	userID, err := RequireActingUser(ctx)
	if err != nil {
		return nil, "", err
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, "", fmt.Errorf("task_id is required")
	}
	task, err := store.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, "", err
	}
	if task == nil {
		return nil, fmt.Sprintf("Task %s not found.", taskID), nil
	}
	if task.UserID != userID {
		return nil, fmt.Sprintf("Task %s does not belong to the current user.", taskID), nil
	}
	return task, "", nil
}

// AddTaskTool 创建任务
type AddTaskTool struct {
	store *storage.Storage
	loc   *time.Location
}

func (t *AddTaskTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "add_task",
		Desc: "Add a new task for the current user.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"name": {
				Desc:     "Short name of the task",
				Type:     schema.String,
				Required: true,
			},
			"description": {
				Desc:     "Optional longer description",
				Type:     schema.String,
				Required: false,
			},
			"priority": {
				Desc:     "Priority: high, medium or low (default medium)",
				Type:     schema.String,
				Required: false,
			},
			"due_date": {
				Desc:     "Optional due date, e.g. 2026-09-01 or 2026-09-01 18:00",
				Type:     schema.String,
				Required: false,
			},
			"tags": {
				Desc:     "Optional list of tags",
				Type:     schema.Array,
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Required: false,
			},
		}),
	}, nil
}

func (t *AddTaskTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	userID, err := RequireActingUser(ctx)
	if err != nil {
		return "", err
	}
	var args struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Priority    string   `json:"priority"`
		DueDate     string   `json:"due_date"`
		Tags        []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(args.Name) == "" {
		return "", fmt.Errorf("name is required")
	}

	task := &storage.Task{
		UserID:      userID,
		Name:        strings.TrimSpace(args.Name),
		Description: strings.TrimSpace(args.Description),
		Tags:        args.Tags,
	}
	if s := strings.TrimSpace(args.Priority); s != "" {
		p, err := storage.ParsePriority(s)
		if err != nil {
			return err.Error(), nil
		}
		task.Priority = p
	}
	if s := strings.TrimSpace(args.DueDate); s != "" {
		due, err := dates.ParseDueDate(s, t.loc)
		if err != nil {
			return err.Error(), nil
		}
		task.DueDate = &due
		task.DueDateJalali = dates.ToJalali(due, t.loc)
	}

	if err := t.store.CreateTask(ctx, task); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task '%s' added with priority %s (id=%s)", task.Name, task.Priority, task.TaskID)
	if task.DueDate != nil {
		fmt.Fprintf(&b, ", due %s", task.DueDate.UTC().Format("2006-01-02 15:04"))
	}
	b.WriteString(".")
	return b.String(), nil
}

// RemoveTaskTool 删除任务
type RemoveTaskTool struct {
	store *storage.Storage
}

func (t *RemoveTaskTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "remove_task",
		Desc: "Remove a task owned by the current user.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"task_id": {
				Desc:     "The ID of the task to remove",
				Type:     schema.String,
				Required: true,
			},
		}),
	}, nil
}

func (t *RemoveTaskTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	task, msg, err := resolveOwnedTask(ctx, t.store, args.TaskID)
	if err != nil {
		return "", err
	}
	if msg != "" {
		return msg, nil
	}
	deleted, err := t.store.DeleteTask(ctx, task.TaskID)
	if err != nil {
		return "", err
	}
	if !deleted {
		return fmt.Sprintf("Task %s not found.", task.TaskID), nil
	}
	return fmt.Sprintf("Task '%s' removed.", task.Name), nil
}

// CompleteTaskTool 完成任务
type CompleteTaskTool struct {
	store *storage.Storage
}

func (t *CompleteTaskTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "complete_task",
		Desc: "Mark a task owned by the current user as completed.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"task_id": {
				Desc:     "The ID of the task to complete",
				Type:     schema.String,
				Required: true,
			},
		}),
	}, nil
}

func (t *CompleteTaskTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	task, msg, err := resolveOwnedTask(ctx, t.store, args.TaskID)
	if err != nil {
		return "", err
	}
	if msg != "" {
		return msg, nil
	}
	if task.Status == storage.StatusCompleted {
		return fmt.Sprintf("Task '%s' is already completed.", task.Name), nil
	}
	status := storage.StatusCompleted
	updated, err := t.store.UpdateTask(ctx, task.TaskID, storage.TaskUpdate{Status: &status})
	if err != nil {
		return "", err
	}
	if updated == nil {
		return fmt.Sprintf("Task %s not found.", task.TaskID), nil
	}
	return fmt.Sprintf("Task '%s' marked as completed.", updated.Name), nil
}

// UpdateTaskTool 更新任务字段
type UpdateTaskTool struct {
	store *storage.Storage
	loc   *time.Location
}

func (t *UpdateTaskTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "update_task",
		Desc: "Update fields of a task owned by the current user. Only the provided fields are changed.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"task_id": {
				Desc:     "The ID of the task to update",
				Type:     schema.String,
				Required: true,
			},
			"name": {
				Desc:     "New task name",
				Type:     schema.String,
				Required: false,
			},
			"description": {
				Desc:     "New description",
				Type:     schema.String,
				Required: false,
			},
			"priority": {
				Desc:     "New priority: high, medium or low",
				Type:     schema.String,
				Required: false,
			},
			"status": {
				Desc:     "New status: pending, in_progress, completed or cancelled",
				Type:     schema.String,
				Required: false,
			},
			"due_date": {
				Desc:     "New due date, e.g. 2026-09-01 or 2026-09-01 18:00. Use 'none' to clear it.",
				Type:     schema.String,
				Required: false,
			},
			"tags": {
				Desc:     "New list of tags (replaces existing tags)",
				Type:     schema.Array,
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Required: false,
			},
		}),
	}, nil
}

func (t *UpdateTaskTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		TaskID      string    `json:"task_id"`
		Name        *string   `json:"name"`
		Description *string   `json:"description"`
		Priority    *string   `json:"priority"`
		Status      *string   `json:"status"`
		DueDate     *string   `json:"due_date"`
		Tags        *[]string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	task, msg, err := resolveOwnedTask(ctx, t.store, args.TaskID)
	if err != nil {
		return "", err
	}
	if msg != "" {
		return msg, nil
	}

	var upd storage.TaskUpdate
	changed := make([]string, 0, 4)
	if args.Name != nil {
		name := strings.TrimSpace(*args.Name)
		if name == "" {
			return "", fmt.Errorf("name must not be empty")
		}
		upd.Name = &name
		changed = append(changed, "name")
	}
	if args.Description != nil {
		upd.Description = args.Description
		changed = append(changed, "description")
	}
	if args.Priority != nil {
		p, err := storage.ParsePriority(*args.Priority)
		if err != nil {
			return err.Error(), nil
		}
		upd.Priority = &p
		changed = append(changed, "priority")
	}
	if args.Status != nil {
		s, err := storage.ParseStatus(*args.Status)
		if err != nil {
			return err.Error(), nil
		}
		upd.Status = &s
		changed = append(changed, "status")
	}
	if args.DueDate != nil {
		raw := strings.TrimSpace(*args.DueDate)
		if raw == "" || strings.EqualFold(raw, "none") {
			upd.ClearDueDate = true
		} else {
			due, err := dates.ParseDueDate(raw, t.loc)
			if err != nil {
				return err.Error(), nil
			}
			jalali := dates.ToJalali(due, t.loc)
			upd.DueDate = &due
			upd.DueDateJalali = &jalali
		}
		changed = append(changed, "due_date")
	}
	if args.Tags != nil {
		tags := storage.StringSlice(*args.Tags)
		upd.Tags = &tags
		changed = append(changed, "tags")
	}
	if len(changed) == 0 {
		return "Nothing to update: no fields were provided.", nil
	}

	updated, err := t.store.UpdateTask(ctx, task.TaskID, upd)
	if err != nil {
		return "", err
	}
	if updated == nil {
		return fmt.Sprintf("Task %s not found.", task.TaskID), nil
	}
	return fmt.Sprintf("Task '%s' updated (%s).", updated.Name, strings.Join(changed, ", ")), nil
}

// SearchTasksTool 按关键词搜索任务
type SearchTasksTool struct {
	store *storage.Storage
}

func (t *SearchTasksTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "search_tasks",
		Desc: "Search the current user's tasks by keyword in name or description (case-insensitive).",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "The keyword to search for",
				Type:     schema.String,
				Required: true,
			},
			"limit": {
				Desc:     "Limit the number of tasks returned (default 200)",
				Type:     schema.Integer,
				Required: false,
			},
		}),
	}, nil
}

func (t *SearchTasksTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	userID, err := RequireActingUser(ctx)
	if err != nil {
		return "", err
	}
	var args struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	limit := args.Limit
	if limit <= 0 || limit > maxTasksPerTool {
		limit = maxTasksPerTool
	}

	tasks, err := t.store.SearchTasks(ctx, userID, query, limit)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return fmt.Sprintf("No tasks found matching %q.", query), nil
	}
	return fmt.Sprintf("Found %d task(s) matching %q:\n%s", len(tasks), query, formatTaskList(tasks)), nil
}

// ListTasksTool 列出任务，可按状态/优先级过滤
type ListTasksTool struct {
	store *storage.Storage
}

func (t *ListTasksTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "list_tasks",
		Desc: "List the current user's tasks, optionally filtered by status or priority.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"status": {
				Desc:     "Optional status filter: pending, in_progress, completed or cancelled",
				Type:     schema.String,
				Required: false,
			},
			"priority": {
				Desc:     "Optional priority filter: high, medium or low",
				Type:     schema.String,
				Required: false,
			},
			"limit": {
				Desc:     "Limit the number of tasks returned (default 200)",
				Type:     schema.Integer,
				Required: false,
			},
		}),
	}, nil
}

func (t *ListTasksTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	userID, err := RequireActingUser(ctx)
	if err != nil {
		return "", err
	}
	var args struct {
		Status   string `json:"status"`
		Priority string `json:"priority"`
		Limit    int    `json:"limit"`
	}
	if argumentsInJSON != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}
	q := storage.TaskQuery{UserID: userID}
	if s := strings.TrimSpace(args.Status); s != "" {
		st, err := storage.ParseStatus(s)
		if err != nil {
			return err.Error(), nil
		}
		q.Status = st
	}
	if s := strings.TrimSpace(args.Priority); s != "" {
		p, err := storage.ParsePriority(s)
		if err != nil {
			return err.Error(), nil
		}
		q.Priority = p
	}
	q.Limit = args.Limit
	if q.Limit <= 0 || q.Limit > maxTasksPerTool {
		q.Limit = maxTasksPerTool
	}

	tasks, err := t.store.ListUserTasks(ctx, q)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No tasks found.", nil
	}
	return fmt.Sprintf("Found %d task(s):\n%s", len(tasks), formatTaskList(tasks)), nil
}

// TaskStatisticsTool 任务统计
type TaskStatisticsTool struct {
	store *storage.Storage
}

func (t *TaskStatisticsTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        "task_statistics",
		Desc:        "Get task counts per status and completion percentages for the current user.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}, nil
}

func (t *TaskStatisticsTool) InvokableRun(ctx context.Context, _ string, _ ...tool.Option) (string, error) {
	userID, err := RequireActingUser(ctx)
	if err != nil {
		return "", err
	}
	stats, err := t.store.GetTaskStatistics(ctx, userID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Total tasks: %d\n", stats.Total)
	if stats.Total == 0 {
		return strings.TrimRight(b.String(), "\n"), nil
	}

	counts := map[storage.Status]int64{
		storage.StatusPending:    stats.Pending,
		storage.StatusInProgress: stats.InProgress,
		storage.StatusCompleted:  stats.Completed,
		storage.StatusCancelled:  stats.Cancelled,
	}

	for _, status := range storage.StatusOrder {
		count := counts[status]
		if count == 0 {
			continue
		}
		pct := math.Round(float64(count)/float64(stats.Total)*1000) / 10
		fmt.Fprintf(&b, "- %s: %d (%.1f%%)\n", status, count, pct)
	}
	// 完成率单独一行，任务数非零时总是给出，哪怕是 0.0%
	completion := math.Round(float64(stats.Completed)/float64(stats.Total)*1000) / 10
	fmt.Fprintf(&b, "Completion: %.1f%%\n", completion)
	return strings.TrimRight(b.String(), "\n"), nil
}

// GroupTasksByPriorityTool 按优先级分组列出任务
type GroupTasksByPriorityTool struct {
	store *storage.Storage
}

func (t *GroupTasksByPriorityTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        "group_tasks_by_priority",
		Desc:        "List the current user's tasks grouped by priority (high first).",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}, nil
}

func (t *GroupTasksByPriorityTool) InvokableRun(ctx context.Context, _ string, _ ...tool.Option) (string, error) {
	userID, err := RequireActingUser(ctx)
	if err != nil {
		return "", err
	}
	tasks, err := t.store.ListUserTasks(ctx, storage.TaskQuery{UserID: userID, Limit: maxTasksPerTool})
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No tasks found.", nil
	}

	buckets := make(map[storage.Priority][]storage.Task, len(storage.PriorityOrder))
	for _, task := range tasks {
		buckets[task.Priority] = append(buckets[task.Priority], task)
	}

	var b strings.Builder
	for _, p := range storage.PriorityOrder {
		group := buckets[p]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s (%d):\n%s\n", p, len(group), formatTaskList(group))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// GroupTasksByStatusTool 按状态分组列出任务
type GroupTasksByStatusTool struct {
	store *storage.Storage
}

func (t *GroupTasksByStatusTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        "group_tasks_by_status",
		Desc:        "List the current user's tasks grouped by status (pending first).",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}, nil
}

func (t *GroupTasksByStatusTool) InvokableRun(ctx context.Context, _ string, _ ...tool.Option) (string, error) {
	userID, err := RequireActingUser(ctx)
	if err != nil {
		return "", err
	}
	tasks, err := t.store.ListUserTasks(ctx, storage.TaskQuery{UserID: userID, Limit: maxTasksPerTool})
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No tasks found.", nil
	}

	buckets := make(map[storage.Status][]storage.Task, len(storage.StatusOrder))
	for _, task := range tasks {
		buckets[task.Status] = append(buckets[task.Status], task)
	}

	var b strings.Builder
	for _, s := range storage.StatusOrder {
		group := buckets[s]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s (%d):\n%s\n", s, len(group), formatTaskList(group))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// GetTools 返回所有可用的工具列表
func GetTools(store *storage.Storage, loc *time.Location) []tool.BaseTool {
	if loc == nil {
		loc = time.UTC
	}
	return []tool.BaseTool{
		&AddTaskTool{store: store, loc: loc},
		&RemoveTaskTool{store: store},
		&CompleteTaskTool{store: store},
		&UpdateTaskTool{store: store, loc: loc},
		&SearchTasksTool{store: store},
		&ListTasksTool{store: store},
		&TaskStatisticsTool{store: store},
		&GroupTasksByPriorityTool{store: store},
		&GroupTasksByStatusTool{store: store},
	}
}

func GetToolsInfo(ctx context.Context, store *storage.Storage, loc *time.Location) ([]*schema.ToolInfo, error) {
	tools := GetTools(store, loc)
	toolInfos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get tool info: %w", err)
		}
		toolInfos = append(toolInfos, info)
	}
	return toolInfos, nil
}
