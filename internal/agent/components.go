package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// ArkConfig 定义火山方舟模型服务的连接配置
type ArkConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	ModelID string `mapstructure:"model_id" yaml:"model_id"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// Config 定义 Agent 的运行配置
type Config struct {
	Ark ArkConfig `mapstructure:"ark" yaml:"ark"`

	// MaxRounds 是一次调用中允许的最大推理轮数
	// 达到上限后强制结束，避免工具调用死循环
	MaxRounds int `mapstructure:"max_rounds" yaml:"max_rounds"`

	// ModelTimeout 是单次模型调用的超时时间
	ModelTimeout time.Duration `mapstructure:"model_timeout" yaml:"model_timeout"`

	// Timezone 用于解析截止时间和生成波斯历日期
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

const (
	defaultMaxRounds    = 10
	defaultModelTimeout = 60 * time.Second
)

// withDefaults 填充未设置的配置项
func (c Config) withDefaults() Config {
	if c.MaxRounds <= 0 {
		c.MaxRounds = defaultMaxRounds
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = defaultModelTimeout
	}
	return c
}

// Validate 校验配置是否完整
func (c Config) Validate() error {
	if c.Ark.APIKey == "" {
		return fmt.Errorf("agent: ark api_key is required")
	}
	if c.Ark.ModelID == "" {
		return fmt.Errorf("agent: ark model_id is required")
	}
	return nil
}

// NewChatModel 创建 Ark ChatModel 实例
func NewChatModel(ctx context.Context, cfg ArkConfig) (model.ToolCallingChatModel, error) {
	arkCfg := &ark.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.ModelID,
	}
	if cfg.BaseURL != "" {
		arkCfg.BaseURL = cfg.BaseURL
	}

	cm, err := ark.NewChatModel(ctx, arkCfg)
	if err != nil {
		return nil, fmt.Errorf("create ark chat model: %w", err)
	}
	return cm, nil
}
