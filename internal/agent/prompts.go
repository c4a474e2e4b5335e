package agent

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// SystemPromptTemplate 定义系统提示词模板
// 包含动态变量: {date}, {jalali_date}, {time}
const SystemPromptTemplate = `你是 Behflow，一名专业的任务管理智能助手。
你的目标是帮助用户高效地创建、整理和跟踪他们的任务。

当前环境:
- 今天日期（公历）: {date}
- 今天日期（波斯历）: {jalali_date}
- 当前时间: {time}

你需要遵循以下原则:
1. 创建任务时，尽量从用户的描述中提取优先级、标签、截止时间等细节。
2. 在执行删除、取消等不可逆操作前，先和用户确认目标任务。
3. 回答要简洁明了，任务列表过长时请做摘要。
4. 用户询问进度时，优先使用统计和分组工具给出结构化的概览。

你可以使用的工具覆盖任务的创建、修改、查询、统计与分组。
请根据用户的输入，选择合适的工具或直接回答。`

// NewChatTemplate 创建一个 ChatTemplate 实例
// 该模板用于将 AgentState 中的数据转换为 ChatModel 可接受的消息列表
func NewChatTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		// 1. 系统消息 (包含当天的双历法日期等动态信息)
		schema.SystemMessage(SystemPromptTemplate),

		// 2. 历史消息占位符 (用于注入对话历史)
		schema.MessagesPlaceholder("history", true),
	)
}
