package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/behflow/behflow/internal/storage"
)

// stubChatModel 按脚本逐轮返回预设回复，脚本耗尽后重复最后一条。
type stubChatModel struct {
	mu     sync.Mutex
	script []stubTurn
	calls  int
	tools  []*schema.ToolInfo
}

type stubTurn struct {
	msg *schema.Message
	err error
}

func (m *stubChatModel) next() stubTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.script) == 0 {
		return stubTurn{err: errors.New("stub script empty")}
	}
	i := m.calls
	if i >= len(m.script) {
		i = len(m.script) - 1
	}
	m.calls++
	return m.script[i]
}

func (m *stubChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	turn := m.next()
	return turn.msg, turn.err
}

func (m *stubChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	turn := m.next()
	if turn.err != nil {
		return nil, turn.err
	}
	return schema.StreamReaderFromArray([]*schema.Message{turn.msg}), nil
}

func (m *stubChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return m, nil
}

func toolCallMessage(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func buildTestGraph(t *testing.T, ctx context.Context, store *storage.Storage, cm model.ToolCallingChatModel, maxRounds int) compose.Runnable[AgentState, AgentState] {
	t.Helper()

	runnable, err := BuildGraph(ctx, cm, GetTools(store, time.UTC), Config{MaxRounds: maxRounds, Timezone: "UTC"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return runnable
}

func lastMessage(t *testing.T, state AgentState) *schema.Message {
	t.Helper()
	if len(state.Messages) == 0 {
		t.Fatal("state has no messages")
	}
	return state.Messages[len(state.Messages)-1]
}

func TestGraphDirectAnswer(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)

	cm := &stubChatModel{script: []stubTurn{
		{msg: schema.AssistantMessage("你好，有什么可以帮你？", nil)},
	}}
	runnable := buildTestGraph(t, ctx, store, cm, 10)

	out, err := runnable.Invoke(ctx, AgentState{UserID: "u-1", UserQuery: "你好"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	final := lastMessage(t, out)
	if final.Role != schema.Assistant || final.Content != "你好，有什么可以帮你？" {
		t.Errorf("unexpected final message: %+v", final)
	}
	if out.Rounds != 1 {
		t.Errorf("expected 1 round, got %d", out.Rounds)
	}
	if len(out.NextStepToolCalls) != 0 {
		t.Errorf("tool calls should be cleared: %v", out.NextStepToolCalls)
	}
	if len(cm.tools) != 9 {
		t.Errorf("expected 9 tools bound to model, got %d", len(cm.tools))
	}
}

func TestGraphToolLoop(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	_, userID := testUserCtx(t, ctx, store, "alice")

	cm := &stubChatModel{script: []stubTurn{
		{msg: toolCallMessage("call-1", "add_task", `{"name":"Write report","priority":"high"}`)},
		{msg: schema.AssistantMessage("已为你添加任务「Write report」。", nil)},
	}}
	runnable := buildTestGraph(t, ctx, store, cm, 10)

	out, err := runnable.Invoke(ctx, AgentState{UserID: userID, UserQuery: "帮我加个任务"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	final := lastMessage(t, out)
	if final.Content != "已为你添加任务「Write report」。" {
		t.Errorf("unexpected final message: %s", final.Content)
	}
	if out.Rounds != 2 {
		t.Errorf("expected 2 rounds, got %d", out.Rounds)
	}

	// 工具结果消息应携带原始调用 ID
	var toolMsg *schema.Message
	for _, m := range out.Messages {
		if m.Role == schema.Tool {
			toolMsg = m
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool message in transcript")
	}
	if toolMsg.ToolCallID != "call-1" {
		t.Errorf("tool call id mismatch: %s", toolMsg.ToolCallID)
	}
	if !strings.Contains(toolMsg.Content, "Write report") {
		t.Errorf("unexpected tool result: %s", toolMsg.Content)
	}

	// 任务确实落库
	tasks, err := store.ListUserTasks(ctx, storage.TaskQuery{UserID: userID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "Write report" || tasks[0].Priority != storage.PriorityHigh {
		t.Errorf("task not persisted as expected: %+v", tasks)
	}
}

func TestGraphRoundLimit(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	_, userID := testUserCtx(t, ctx, store, "alice")

	// 模型永远要求继续调用工具，靠轮数上限保证终止
	cm := &stubChatModel{script: []stubTurn{
		{msg: toolCallMessage("call-loop", "list_tasks", "{}")},
	}}
	runnable := buildTestGraph(t, ctx, store, cm, 3)

	out, err := runnable.Invoke(ctx, AgentState{UserID: userID, UserQuery: "列出所有任务"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	final := lastMessage(t, out)
	if final.Role != schema.Assistant || !strings.Contains(final.Content, "限定轮数") {
		t.Errorf("expected round limit message, got: %+v", final)
	}
	if out.Rounds != 3 {
		t.Errorf("expected to stop at 3 rounds, got %d", out.Rounds)
	}
	if len(out.NextStepToolCalls) != 0 {
		t.Errorf("tool calls should be cleared at the limit")
	}
}

func TestGraphModelFailure(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)

	cm := &stubChatModel{script: []stubTurn{
		{err: errors.New("upstream unavailable")},
	}}
	runnable := buildTestGraph(t, ctx, store, cm, 10)

	// 模型失败不应导致图执行失败，而是合成一条可展示的回复
	out, err := runnable.Invoke(ctx, AgentState{UserID: "u-1", UserQuery: "你好"})
	if err != nil {
		t.Fatalf("invoke should not fail on model error: %v", err)
	}
	final := lastMessage(t, out)
	if final.Role != schema.Assistant || !strings.Contains(final.Content, "模型服务") {
		t.Errorf("expected synthesized failure message, got: %+v", final)
	}
}

func TestExecuteToolCalls_OrderAndIsolation(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)
	_, userID := testUserCtx(t, ctx, store, "alice")

	index, err := buildToolIndex(ctx, GetTools(store, time.UTC))
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	state := AgentState{
		UserID: userID,
		NextStepToolCalls: []schema.ToolCall{
			{ID: "c-1", Function: schema.FunctionCall{Name: "add_task", Arguments: `{"name":"first"}`}},
			{ID: "c-2", Function: schema.FunctionCall{Name: "no_such_tool", Arguments: "{}"}},
			{ID: "c-3", Function: schema.FunctionCall{Name: "list_tasks", Arguments: "{}"}},
		},
	}

	out, err := ExecuteToolCalls(ctx, state, index)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Messages) != 3 {
		t.Fatalf("expected 3 tool messages, got %d", len(out.Messages))
	}
	if len(out.NextStepToolCalls) != 0 {
		t.Errorf("pending tool calls should be cleared")
	}

	// 结果顺序与调用顺序一致
	for i, wantID := range []string{"c-1", "c-2", "c-3"} {
		msg := out.Messages[i]
		if msg.Role != schema.Tool || msg.ToolCallID != wantID {
			t.Errorf("message %d: role=%s id=%s", i, msg.Role, msg.ToolCallID)
		}
	}

	// 未知工具折叠为错误文本，不影响其他调用
	if !strings.Contains(out.Messages[1].Content, "not available") {
		t.Errorf("unexpected unknown tool result: %s", out.Messages[1].Content)
	}
	if !strings.Contains(out.Messages[0].Content, "first") {
		t.Errorf("unexpected add_task result: %s", out.Messages[0].Content)
	}
	if out.Messages[2].Content == "" {
		t.Error("list_tasks produced no result")
	}
}

func TestExecuteToolCalls_NoActingUser(t *testing.T) {
	ctx := context.Background()
	store := openTestStorage(t, ctx)

	index, err := buildToolIndex(ctx, GetTools(store, time.UTC))
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	// 状态里没有行动用户：这是编排层的 bug，整批执行必须失败，
	// 而不是把 ErrNoActingUser 折叠成工具结果让模型重试
	state := AgentState{
		NextStepToolCalls: []schema.ToolCall{
			{ID: "c-1", Function: schema.FunctionCall{Name: "list_tasks", Arguments: "{}"}},
		},
	}

	out, err := ExecuteToolCalls(ctx, state, index)
	if !errors.Is(err, ErrNoActingUser) {
		t.Fatalf("expected ErrNoActingUser, got %v", err)
	}
	if len(out.Messages) != 0 {
		t.Errorf("no tool messages should be appended on context failure, got %d", len(out.Messages))
	}
}
