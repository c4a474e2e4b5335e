package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStorage(t *testing.T, ctx context.Context) *Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "behflow-test.db")
	store, err := Open(ctx, Config{Path: dbPath, EnableWAL: true})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestUser(t *testing.T, ctx context.Context, store *Storage, externalID string) *User {
	t.Helper()

	user, err := store.GetOrCreateUserByExternalID(ctx, externalID)
	if err != nil {
		t.Fatalf("get or create user: %v", err)
	}
	return user
}

func TestGetOrCreateUserByExternalID_Stable(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)

	first := createTestUser(t, ctx, store, "alice")
	second := createTestUser(t, ctx, store, "alice")

	if first.UserID != second.UserID {
		t.Errorf("same external id resolved to different users: %s vs %s", first.UserID, second.UserID)
	}

	other := createTestUser(t, ctx, store, "bob")
	if other.UserID == first.UserID {
		t.Error("different external ids resolved to the same user")
	}

	count, err := store.CountUsers(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 users, got %d", count)
	}
}

func TestTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	user := createTestUser(t, ctx, store, "alice")

	task := &Task{
		UserID:      user.UserID,
		Name:        "Write report",
		Description: "Quarterly report",
		Priority:    PriorityHigh,
		Tags:        StringSlice{"work", "urgent"},
	}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.TaskID == "" {
		t.Fatal("expected task id to be generated")
	}
	if task.Status != StatusPending {
		t.Errorf("expected default status pending, got %s", task.Status)
	}
	if task.CreatedAtJalali == "" {
		t.Error("expected created-at jalali text to be filled on create")
	}

	// 读回并校验标签序列化
	got, err := store.GetTaskByID(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got == nil {
		t.Fatal("task not found after create")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "work" {
		t.Errorf("tags roundtrip failed: %v", got.Tags)
	}

	// 更新状态到 completed 应填充 CompletedAt
	status := StatusCompleted
	updated, err := store.UpdateTask(ctx, task.TaskID, TaskUpdate{Status: &status})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated == nil {
		t.Fatal("update returned nil task")
	}
	if updated.Status != StatusCompleted {
		t.Errorf("expected status completed, got %s", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	// 删除
	deleted, err := store.DeleteTask(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if !deleted {
		t.Error("expected delete to report affected row")
	}

	// 不存在的任务：查询返回 (nil, nil)，删除返回 false
	got, err = store.GetTaskByID(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("get deleted task: %v", err)
	}
	if got != nil {
		t.Error("expected nil for deleted task")
	}
	deleted, err = store.DeleteTask(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("delete missing task: %v", err)
	}
	if deleted {
		t.Error("expected delete of missing task to report false")
	}
}

func TestListUserTasks_Filters(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	alice := createTestUser(t, ctx, store, "alice")
	bob := createTestUser(t, ctx, store, "bob")

	mk := func(userID, name string, p Priority, s Status) {
		t.Helper()
		task := &Task{UserID: userID, Name: name, Priority: p, Status: s}
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", name, err)
		}
	}

	mk(alice.UserID, "a1", PriorityHigh, StatusPending)
	mk(alice.UserID, "a2", PriorityLow, StatusCompleted)
	mk(alice.UserID, "a3", PriorityHigh, StatusInProgress)
	mk(bob.UserID, "b1", PriorityHigh, StatusPending)

	// 用户隔离
	tasks, err := store.ListUserTasks(ctx, TaskQuery{UserID: alice.UserID})
	if err != nil {
		t.Fatalf("list alice tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("expected 3 tasks for alice, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.UserID != alice.UserID {
			t.Errorf("task %s leaked from another user", task.Name)
		}
	}

	// 优先级过滤
	tasks, err = store.ListUserTasks(ctx, TaskQuery{UserID: alice.UserID, Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("list by priority: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("expected 2 high tasks, got %d", len(tasks))
	}

	// 状态过滤
	tasks, err = store.ListUserTasks(ctx, TaskQuery{UserID: alice.UserID, Status: StatusCompleted})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "a2" {
		t.Errorf("status filter failed: %+v", tasks)
	}
}

func TestSearchTasks_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	user := createTestUser(t, ctx, store, "alice")

	mk := func(name, desc string) {
		t.Helper()
		if err := store.CreateTask(ctx, &Task{UserID: user.UserID, Name: name, Description: desc}); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}
	mk("Buy Groceries", "")
	mk("review code", "code review for the GROCERY service")
	mk("unrelated", "nothing here")

	tasks, err := store.SearchTasks(ctx, user.UserID, "grocer", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("expected 2 matches for 'grocer', got %d", len(tasks))
	}

	tasks, err = store.SearchTasks(ctx, user.UserID, "zzz", 10)
	if err != nil {
		t.Fatalf("search no match: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no matches, got %d", len(tasks))
	}
}

func TestGetTaskStatistics(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	user := createTestUser(t, ctx, store, "alice")

	// 空库统计
	stats, err := store.GetTaskStatistics(ctx, user.UserID)
	if err != nil {
		t.Fatalf("stats on empty store: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("expected zero total, got %d", stats.Total)
	}

	for i, s := range []Status{StatusPending, StatusPending, StatusCompleted, StatusInProgress} {
		task := &Task{UserID: user.UserID, Name: "t", Status: s}
		task.Name = task.Name + string(rune('0'+i))
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}

	stats, err = store.GetTaskStatistics(ctx, user.UserID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Pending != 2 || stats.Completed != 1 || stats.InProgress != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRescheduleOverdueTasks(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	user := createTestUser(t, ctx, store, "alice")

	now := time.Now().UTC()
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	mk := func(name string, due *time.Time, s Status) {
		t.Helper()
		if err := store.CreateTask(ctx, &Task{UserID: user.UserID, Name: name, DueDate: due, Status: s}); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}
	mk("overdue-pending", &past, StatusPending)
	mk("overdue-done", &past, StatusCompleted)
	mk("future", &future, StatusPending)
	mk("no-due", nil, StatusPending)

	users, err := store.ListUserIDsWithOverdueTasks(ctx, now)
	if err != nil {
		t.Fatalf("list overdue users: %v", err)
	}
	if len(users) != 1 || users[0] != user.UserID {
		t.Errorf("expected only alice to have overdue tasks, got %v", users)
	}

	newDue := now.Add(12 * time.Hour)
	n, err := store.RescheduleOverdueTasks(ctx, user.UserID, now, newDue, "1405-06-08T23:59:59")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly 1 rescheduled task, got %d", n)
	}

	// 已完成和未逾期的任务不受影响
	tasks, err := store.ListUserTasks(ctx, TaskQuery{UserID: user.UserID})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	for _, task := range tasks {
		switch task.Name {
		case "overdue-pending":
			if task.DueDate == nil || !task.DueDate.After(now) {
				t.Errorf("overdue-pending was not rescheduled: %v", task.DueDate)
			}
		case "overdue-done":
			if task.DueDate == nil || !task.DueDate.Before(now) {
				t.Errorf("completed task should not be rescheduled: %v", task.DueDate)
			}
		}
	}
}

func TestChatSessionRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	user := createTestUser(t, ctx, store, "alice")

	session, err := store.CreateChatSession(ctx, user.UserID, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.SessionID == "" {
		t.Fatal("expected session id")
	}
	if session.Title == "" {
		t.Error("expected default title")
	}

	if err := store.AppendChatMessage(ctx, session.SessionID, "user", "买牛奶"); err != nil {
		t.Fatalf("append user message: %v", err)
	}
	if err := store.AppendChatMessage(ctx, session.SessionID, "assistant", "好的，已创建任务。"); err != nil {
		t.Fatalf("append assistant message: %v", err)
	}

	msgs, err := store.ListSessionMessages(ctx, session.SessionID, 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("message order wrong: %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestAuditRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)

	rec := &AuditRecord{
		TraceID:    "trace-1",
		UserID:     "user-1",
		Action:     "add_task",
		ParamsJSON: `{"name":"x"}`,
		Status:     "running",
		StartedAt:  time.Now().UTC(),
	}
	if err := store.InsertAuditRecord(ctx, rec); err != nil {
		t.Fatalf("insert audit record: %v", err)
	}
	if rec.ID == 0 {
		t.Fatal("expected audit record id")
	}

	status := "success"
	result := `"ok"`
	finished := time.Now().UTC()
	err := store.UpdateAuditRecord(ctx, rec.ID, AuditUpdate{
		Status:     &status,
		ResultJSON: &result,
		FinishedAt: &finished,
	})
	if err != nil {
		t.Fatalf("update audit record: %v", err)
	}

	records, err := store.QueryAuditRecords(ctx, AuditQuery{TraceID: "trace-1"})
	if err != nil {
		t.Fatalf("query audit records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Status != "success" {
		t.Errorf("expected success status, got %s", records[0].Status)
	}
}

func TestDeleteAuditRecordsKeepLatest(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)

	for i := 0; i < 10; i++ {
		rec := &AuditRecord{
			TraceID:   "t",
			Action:    "list_tasks",
			Status:    "success",
			StartedAt: time.Now().UTC(),
		}
		if err := store.InsertAuditRecord(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	deleted, err := store.DeleteAuditRecordsKeepLatest(ctx, 3)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 7 {
		t.Errorf("expected 7 deleted, got %d", deleted)
	}

	count, err := store.CountAuditRecords(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 remaining, got %d", count)
	}
}

func TestParsePriorityAndStatus(t *testing.T) {
	if p, err := ParsePriority("HIGH"); err != nil || p != PriorityHigh {
		t.Errorf("ParsePriority(HIGH) = %v, %v", p, err)
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("expected error for unknown priority")
	}
	if s, err := ParseStatus("in-progress"); err != nil || s != StatusInProgress {
		t.Errorf("ParseStatus(in-progress) = %v, %v", s, err)
	}
	if _, err := ParseStatus("done"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestGetUserByID(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	user := createTestUser(t, ctx, store, "alice")

	got, err := store.GetUserByID(ctx, user.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got == nil || got.ExternalID != "alice" {
		t.Errorf("unexpected user: %+v", got)
	}

	got, err = store.GetUserByID(ctx, "no-such-user")
	if err != nil {
		t.Fatalf("get missing user: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing user, got %+v", got)
	}
}

func TestListTasksByTag(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	user := createTestUser(t, ctx, store, "alice")

	mk := func(name string, tags []string) {
		t.Helper()
		if err := store.CreateTask(ctx, &Task{UserID: user.UserID, Name: name, Tags: tags}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	mk("work-1", []string{"work", "urgent"})
	mk("work-2", []string{"work"})
	mk("home-1", []string{"home"})
	mk("untagged", nil)

	tasks, err := store.ListTasksByTag(ctx, user.UserID, "work", 10)
	if err != nil {
		t.Fatalf("list by tag: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 work tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if !strings.HasPrefix(task.Name, "work-") {
			t.Errorf("unexpected task in work bucket: %s", task.Name)
		}
	}

	tasks, err = store.ListTasksByTag(ctx, user.UserID, "nothing", 10)
	if err != nil {
		t.Fatalf("list by missing tag: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks))
	}
}

func TestListOverdueTasks(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	user := createTestUser(t, ctx, store, "alice")

	now := time.Now().UTC().Truncate(time.Second)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	mk := func(name string, due *time.Time, status Status) {
		t.Helper()
		if err := store.CreateTask(ctx, &Task{UserID: user.UserID, Name: name, DueDate: due, Status: status}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	mk("overdue-pending", &past, StatusPending)
	mk("overdue-in-progress", &past, StatusInProgress)
	mk("overdue-done", &past, StatusCompleted)
	mk("future", &future, StatusPending)
	mk("no-due", nil, StatusPending)

	tasks, err := store.ListOverdueTasks(ctx, user.UserID, now)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 overdue tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if !strings.HasPrefix(task.Name, "overdue-") || task.Status == StatusCompleted {
			t.Errorf("unexpected overdue task: %s (%s)", task.Name, task.Status)
		}
	}
}

func TestListUserSessions(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	user := createTestUser(t, ctx, store, "alice")
	other := createTestUser(t, ctx, store, "bob")

	if _, err := store.CreateChatSession(ctx, user.UserID, "第一段对话"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := store.CreateChatSession(ctx, user.UserID, "第二段对话"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := store.CreateChatSession(ctx, other.UserID, "别人的对话"); err != nil {
		t.Fatalf("create session: %v", err)
	}

	sessions, err := store.ListUserSessions(ctx, user.UserID, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	for _, s := range sessions {
		if s.UserID != user.UserID {
			t.Errorf("session leaked from another user: %+v", s)
		}
	}
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)

	if err := store.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}
