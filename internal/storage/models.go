package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Priority 表示任务优先级。全仓库唯一的权威枚举定义：
// 工具参数、存储层、展示层都引用这里，避免多处定义导致静默漂移。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// PriorityOrder 为固定展示顺序（分组输出时使用）。
var PriorityOrder = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority 解析优先级字符串（大小写不敏感），未知值返回错误。
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("unknown priority %q (expected low/medium/high)", s)
	}
}

// Status 表示任务状态。与 Priority 一样是唯一权威定义。
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// StatusOrder 为固定展示顺序（分组输出时使用）。
var StatusOrder = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

// ParseStatus 解析状态字符串（大小写不敏感，容忍 "in-progress" 写法），未知值返回错误。
func ParseStatus(s string) (Status, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch Status(norm) {
	case StatusPending:
		return StatusPending, nil
	case StatusInProgress:
		return StatusInProgress, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown status %q (expected pending/in_progress/completed/cancelled)", s)
	}
}

// StringSlice 以 JSON 文本形式持久化字符串切片（SQLite 没有数组类型）。
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringSlice) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for StringSlice: %T", src)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(s))
}

// User 表示一个 Behflow 用户。
//
// ExternalID 是外部系统给出的稳定标识（例如网关透传的用户名/subject），
// Agent 门面通过它解析出内部 UserID；同一个 ExternalID 永远映射到同一个 UserID。
// 认证与会话安全不在本仓库范围内，因此没有口令相关字段。
type User struct {
	// UserID 为内部 UUID 主键。
	UserID string `gorm:"size:36;primaryKey"`
	// ExternalID 为外部标识，唯一索引。
	ExternalID string `gorm:"size:128;not null;uniqueIndex"`
	// DisplayName 为展示名称（可选）。
	DisplayName string `gorm:"size:128"`
	// CreatedAt 为写入数据库时间，默认自动填充。
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// Task 表示一条任务记录。
//
// 不变量：每条任务恰好属于一个用户；所有读写都必须以 UserID 为界，
// 其他用户的工具调用既不可见也不可改（所有权校验在工具层完成，
// 存储层通过 user_id 条件兜底）。
type Task struct {
	// TaskID 为 UUID 主键（创建时生成）。
	TaskID string `gorm:"size:36;primaryKey"`
	// UserID 为所属用户 UUID，带索引；任务隔离的关键列。
	UserID string `gorm:"size:36;not null;index"`
	// Name 为任务名称（必填）。
	Name string `gorm:"size:255;not null"`
	// Description 为任务描述（可选）。
	Description string `gorm:"type:text"`
	// Priority/Status 引用上方的权威枚举，带默认值。
	Priority Priority `gorm:"size:16;not null;default:medium"`
	Status   Status   `gorm:"size:16;not null;default:pending;index"`
	// Tags 为可选标签集合，JSON 文本存储。
	Tags StringSlice `gorm:"type:text"`
	// DueDate 为可选截止时间（UTC）；DueDateJalali 为对应的波斯历文本，
	// 仅作展示冗余，换算以 DueDate 为准。
	DueDate       *time.Time `gorm:"index"`
	DueDateJalali string     `gorm:"size:50"`
	// CreatedAt/CreatedAtJalali 为创建时间的双历法表示。
	CreatedAt       time.Time `gorm:"not null;index"`
	CreatedAtJalali string    `gorm:"size:50"`
	// CompletedAt 在状态切到 completed 时填充一次。
	CompletedAt *time.Time
	// UpdatedAt 默认自动维护。
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// ChatSession 表示一次用户与助手的会话。
type ChatSession struct {
	// SessionID 为 UUID 主键。
	SessionID string `gorm:"size:36;primaryKey"`
	// UserID 为所属用户 UUID，带索引。
	UserID string `gorm:"size:36;not null;index"`
	// Title 为会话标题（可选，默认按创建时间生成）。
	Title string `gorm:"size:255"`
	// CreatedAt/UpdatedAt 默认自动维护。
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// ChatMessage 表示会话内的一条消息（user 或 assistant）。
type ChatMessage struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// SessionID 为所属会话 UUID；与 CreatedAt 组成联合索引用于按序回放。
	SessionID string `gorm:"size:36;not null;index:idx_chat_messages_session_time,priority:1"`
	// Role 为消息角色（user/assistant）。
	Role string `gorm:"size:20;not null"`
	// Content 为消息正文。
	Content string `gorm:"type:text;not null"`
	// CreatedAt 为写入时间；与 SessionID 组成联合索引。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index:idx_chat_messages_session_time,priority:2"`
}

// AuditRecord 记录一次工具调用及其结果，用于审计、追溯与后续分析。
//
// 一条审计记录对应 Agent 的一次工具执行（例如 add_task / remove_task）。
// 复杂入参/输出统一以截断后的 JSON 字符串存放，便于快速落地与版本演进。
type AuditRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 用于串联一次对话/编排链路（可选），便于按链路聚合审计。
	TraceID string `gorm:"size:64;index"`
	// UserID 为执行工具时的行动用户（可选，缺上下文的失败调用会为空）。
	UserID string `gorm:"size:36;index"`
	// Action 为稳定的工具名（例如 add_task / task_statistics）。
	Action string `gorm:"size:128;not null;index"`
	// ParamsJSON/ResultJSON 存放入参与输出（截断后的 JSON/文本）。
	ParamsJSON string `gorm:"type:text"`
	ResultJSON string `gorm:"type:text"`
	// Status 表示执行状态（running/success/failed）。
	Status string `gorm:"size:32;not null;index"`
	// ErrorMessage 存放失败时的错误信息（可选）。
	ErrorMessage string `gorm:"type:text"`
	// StartedAt/FinishedAt 表示起止时间。
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time `gorm:"index"`
	// CreatedAt 为记录写入数据库的时间，默认自动填充。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}
