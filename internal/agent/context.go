package agent

import (
	"context"
	"errors"
)

// ErrNoActingUser 表示工具在没有行动用户上下文的情况下被执行。
// 这是上下文管理的 bug 信号，不是用户错误；绝不允许退化为某个默认用户。
var ErrNoActingUser = errors.New("no acting user in context")

type actingUserKey struct{}

// WithActingUser 将行动用户 ID 注入 context。
// 行动用户显式随 context 传递而不是放在进程级全局槽里，
// 并发调用之间天然隔离，取消/失败时也无需额外的清理步骤。
func WithActingUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actingUserKey{}, userID)
}

// ActingUserFromContext 从 context 获取行动用户 ID。
func ActingUserFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actingUserKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// RequireActingUser 与 ActingUserFromContext 相同，但缺失时返回 ErrNoActingUser。
// 所有工具在访问存储前都必须先通过这里拿到用户。
func RequireActingUser(ctx context.Context) (string, error) {
	v, ok := ActingUserFromContext(ctx)
	if !ok {
		return "", ErrNoActingUser
	}
	return v, nil
}

type traceIDKey struct{}

// WithTraceID 将 TraceID 注入 context。
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID 从 context 获取 TraceID。
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}
