package agent

import (
	"github.com/cloudwego/eino/schema"
)

// AgentState 定义了在 Graph 中流转的状态。
// 每次调用（Invoke/Stream）都会构造一份全新的状态，调用结束即丢弃，从不持久化。
type AgentState struct {
	// 历史对话消息 (包含 User, System, AI, Tool 消息)，只追加不回改。
	Messages []*schema.Message `json:"messages"`

	// UserID 为本次调用的行动用户（内部 UUID），在调用开始时设置一次，之后只读。
	UserID string `json:"user_id"`

	// 用户最后的指令。
	UserQuery string `json:"user_query"`

	// 显式信号字段，用于 Graph 分支判断：本轮 LLM 生成的工具调用。
	NextStepToolCalls []schema.ToolCall `json:"tool_calls"`

	// Rounds 为已经完成的推理轮数（单调递增），用于给 reasoning↔tools
	// 循环兜底设上限，防止模型无休止地请求工具。
	Rounds int `json:"rounds"`
}
