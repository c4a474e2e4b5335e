package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/behflow/behflow/internal/dates"
	"github.com/behflow/behflow/internal/storage"
)

// taskCmd 提供不经过对话助手的任务直查/直写命令，便于脚本和调试
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "直接管理任务（不经过对话助手）",
}

var (
	taskUser     string
	taskPriority string
	taskStatus   string
	taskDue      string
	taskTags     []string
	taskDesc     string
	taskLimit    int
	taskTag      string
	taskOverdue  bool
)

var taskAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "创建一个任务",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		defer store.Close()

		user, err := store.GetOrCreateUserByExternalID(ctx, taskUser)
		if err != nil {
			return fmt.Errorf("解析用户失败: %w", err)
		}

		loc, err := dates.LoadLocation(cfg.Agent.Timezone)
		if err != nil {
			loc = nil
		}

		task := &storage.Task{
			UserID:      user.UserID,
			Name:        args[0],
			Description: taskDesc,
			Tags:        taskTags,
		}
		if taskPriority != "" {
			p, err := storage.ParsePriority(taskPriority)
			if err != nil {
				return err
			}
			task.Priority = p
		}
		if taskDue != "" {
			due, err := dates.ParseDueDate(taskDue, loc)
			if err != nil {
				return err
			}
			task.DueDate = &due
			task.DueDateJalali = dates.ToJalali(due, loc)
		}

		if err := store.CreateTask(ctx, task); err != nil {
			return err
		}
		fmt.Printf("Created task %s (%s)\n", task.TaskID, task.Name)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出任务",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		defer store.Close()

		user, err := store.GetOrCreateUserByExternalID(ctx, taskUser)
		if err != nil {
			return fmt.Errorf("解析用户失败: %w", err)
		}

		var tasks []storage.Task
		switch {
		case taskOverdue:
			tasks, err = store.ListOverdueTasks(ctx, user.UserID, time.Now().UTC())
		case taskTag != "":
			tasks, err = store.ListTasksByTag(ctx, user.UserID, taskTag, taskLimit)
		default:
			q := storage.TaskQuery{UserID: user.UserID, Limit: taskLimit}
			if taskStatus != "" {
				q.Status, err = storage.ParseStatus(taskStatus)
				if err != nil {
					return err
				}
			}
			if taskPriority != "" {
				q.Priority, err = storage.ParsePriority(taskPriority)
				if err != nil {
					return err
				}
			}
			tasks, err = store.ListUserTasks(ctx, q)
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tName\tPriority\tStatus\tDue\tTags")
		for i := range tasks {
			t := &tasks[i]
			due := "-"
			if t.DueDate != nil {
				due = t.DueDate.UTC().Format("2006-01-02 15:04")
			}
			tags := "-"
			if len(t.Tags) > 0 {
				tags = strings.Join(t.Tags, ",")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.TaskID, t.Name, t.Priority, t.Status, due, tags)
		}
		w.Flush()
		return nil
	},
}

var taskStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "显示任务统计",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		defer store.Close()

		user, err := store.GetOrCreateUserByExternalID(ctx, taskUser)
		if err != nil {
			return fmt.Errorf("解析用户失败: %w", err)
		}

		stats, err := store.GetTaskStatistics(ctx, user.UserID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Status\tCount")
		fmt.Fprintln(w, "------\t-----")
		fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
		fmt.Fprintf(w, "in_progress\t%d\n", stats.InProgress)
		fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
		fmt.Fprintf(w, "cancelled\t%d\n", stats.Cancelled)
		fmt.Fprintf(w, "total\t%d\n", stats.Total)
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.PersistentFlags().StringVar(&taskUser, "user", "local", "外部用户标识")

	taskAddCmd.Flags().StringVar(&taskPriority, "priority", "", "优先级: high/medium/low")
	taskAddCmd.Flags().StringVar(&taskDue, "due", "", "截止时间，例如 2026-09-01 或 2026-09-01 18:00")
	taskAddCmd.Flags().StringVar(&taskDesc, "desc", "", "任务描述")
	taskAddCmd.Flags().StringSliceVar(&taskTags, "tag", nil, "标签（可重复）")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "状态过滤: pending/in_progress/completed/cancelled")
	taskListCmd.Flags().StringVar(&taskPriority, "priority", "", "优先级过滤: high/medium/low")
	taskListCmd.Flags().IntVar(&taskLimit, "limit", 50, "最多显示条数")
	taskListCmd.Flags().StringVar(&taskTag, "tag", "", "只显示带该标签的任务")
	taskListCmd.Flags().BoolVar(&taskOverdue, "overdue", false, "只显示已逾期的未完成任务")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskStatsCmd)
}
