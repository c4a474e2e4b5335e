package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/behflow/behflow/internal/storage"
)

// Agent 是对话式任务助手的外观层。
// 持有编译好的 Graph，一个实例可被并发复用；每次 Invoke/Stream
// 构造独立的 AgentState，调用之间互不干扰。
type Agent struct {
	runnable compose.Runnable[AgentState, AgentState]
	store    *storage.Storage
	cfg      Config
	logger   *zap.Logger
	loc      *time.Location
}

// New 创建 Agent，使用 Ark 在线模型服务
func New(ctx context.Context, cfg Config, store *storage.Storage, logger *zap.Logger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cm, err := NewChatModel(ctx, cfg.Ark)
	if err != nil {
		return nil, err
	}
	return NewWithModel(ctx, cfg, store, logger, cm)
}

// NewWithModel 使用给定的 ChatModel 创建 Agent，便于测试时注入桩模型
func NewWithModel(ctx context.Context, cfg Config, store *storage.Storage, logger *zap.Logger, cm model.ToolCallingChatModel) (*Agent, error) {
	if store == nil {
		return nil, fmt.Errorf("agent: storage is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		loc = time.UTC
	}

	// 工具经过审计包装后进入 Graph
	tools := GetTools(store, loc)
	wrapped := make([]tool.BaseTool, 0, len(tools))
	for _, t := range tools {
		wrapped = append(wrapped, WrapWithAudit(t, store, logger))
	}

	runnable, err := BuildGraph(ctx, cm, wrapped, cfg)
	if err != nil {
		return nil, fmt.Errorf("build agent graph: %w", err)
	}

	return &Agent{
		runnable: runnable,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		loc:      loc,
	}, nil
}

// Invoke 处理一轮用户输入，返回最终的助手文本。
// 返回的字符串总是可直接展示给用户的内容：基础设施失败时返回
// 致歉文本，同时附带 error 供调用方记录。
func (a *Agent) Invoke(ctx context.Context, message, externalUserID string) (string, error) {
	return a.invoke(ctx, message, externalUserID, nil)
}

// InvokeWithHistory 与 Invoke 相同，但携带既有的会话历史
func (a *Agent) InvokeWithHistory(ctx context.Context, message, externalUserID string, history []*schema.Message) (string, error) {
	return a.invoke(ctx, message, externalUserID, history)
}

func (a *Agent) invoke(ctx context.Context, message, externalUserID string, history []*schema.Message, opts ...compose.Option) (string, error) {
	state, ctx, err := a.prepare(ctx, message, externalUserID, history)
	if err != nil {
		return "抱歉，服务暂时不可用，请稍后再试。", err
	}

	final, err := a.runnable.Invoke(ctx, state, opts...)
	if err != nil {
		a.logger.Error("agent graph invoke failed", zap.Error(err))
		return "抱歉，处理你的请求时出了问题，请稍后再试。", err
	}

	return lastAssistantText(final.Messages), nil
}

// prepare 解析行动用户并构造初始状态与调用 context
func (a *Agent) prepare(ctx context.Context, message, externalUserID string, history []*schema.Message) (AgentState, context.Context, error) {
	user, err := a.store.GetOrCreateUserByExternalID(ctx, externalUserID)
	if err != nil {
		a.logger.Error("resolve acting user failed",
			zap.String("external_user_id", externalUserID), zap.Error(err))
		return AgentState{}, ctx, fmt.Errorf("resolve acting user: %w", err)
	}

	state := AgentState{
		Messages:  history,
		UserID:    user.UserID,
		UserQuery: message,
	}

	ctx = WithActingUser(ctx, user.UserID)
	ctx = WithTraceID(ctx, uuid.NewString())
	return state, ctx, nil
}

// StreamEvent 是 Stream 过程中推送的一次状态快照
type StreamEvent struct {
	// Node 为产生该快照的节点名（NodeInput/NodeChatModel/NodeTools/NodeRoundLimit）
	Node string
	// State 为该节点执行后的状态副本
	State AgentState
	// Err 非空表示整个调用失败，此时它是最后一个事件
	Err error
}

// Stream 处理一轮用户输入，按节点粒度推送状态快照。
// 返回的通道在调用结束后关闭；最后一个事件要么是 END 前的最终状态，
// 要么携带 Err。推送对 ctx 取消敏感：消费方提前退出时取消 ctx 即可，
// 图的 goroutine 不会卡在发送上。
func (a *Agent) Stream(ctx context.Context, message, externalUserID string, history []*schema.Message) (<-chan StreamEvent, error) {
	state, ctx, err := a.prepare(ctx, message, externalUserID, history)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 8)
	send := func(ctx context.Context, ev StreamEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	// 通过 Graph 回调捕获每个节点输出的状态快照
	handler := callbacks.NewHandlerBuilder().
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			if info == nil {
				return ctx
			}
			if state, ok := output.(AgentState); ok {
				send(ctx, StreamEvent{Node: info.Name, State: state})
			}
			return ctx
		}).
		Build()

	go func() {
		defer close(events)
		if _, err := a.runnable.Invoke(ctx, state, compose.WithCallbacks(handler)); err != nil {
			a.logger.Error("agent graph stream failed", zap.Error(err))
			send(ctx, StreamEvent{Err: err})
		}
	}()
	return events, nil
}

// lastAssistantText 从消息历史中提取最后一条有内容的助手消息
func lastAssistantText(messages []*schema.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m != nil && m.Role == schema.Assistant && m.Content != "" {
			return m.Content
		}
	}
	return "（没有生成回复）"
}
