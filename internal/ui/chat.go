package ui

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ChatBackend 是对话后端，由 agent.Agent 实现
type ChatBackend interface {
	InvokeWithHistory(ctx context.Context, message, externalUserID string, history []*schema.Message) (string, error)
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error
}

type ChatOptions struct {
	// ExternalUserID 为本次会话的外部用户标识（必填）
	ExternalUserID string

	// OnExchange 在每轮问答结束后回调，用于把对话落库等
	OnExchange func(userMessage, assistantReply string)
}
