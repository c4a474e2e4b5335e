package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/behflow/behflow/internal/agent"
	"github.com/behflow/behflow/internal/dates"
	"github.com/behflow/behflow/internal/scheduler"
	"github.com/behflow/behflow/internal/storage"
)

type Config struct {
	Storage   storage.Config   `mapstructure:"storage"`
	Agent     agent.Config     `mapstructure:"agent"`
	Scheduler scheduler.Config `mapstructure:"scheduler"`
	LogLevel  string           `mapstructure:"log_level"`
}

func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// 默认搜索路径
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.behflow")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("BEHFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 注意：Viper 的 Unmarshal 只反序列化它“知道”的 key
	// （来自配置文件、Defaults 或显式 Bind），所以所有 key 都要在
	// setDefaults 里注册一遍，否则只存在于环境变量中的 key 会被忽略。
	setDefaults(v)

	// 读取配置文件；未找到时使用默认值
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// Ark 配置验证：必须存在
	if c.Agent.Ark.APIKey == "" {
		return fmt.Errorf("agent.ark.api_key is required (or set ARK_API_KEY env var)")
	}
	if c.Agent.Ark.ModelID == "" {
		return fmt.Errorf("agent.ark.model_id is required (or set ARK_MODEL_ID env var)")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// -------------------------------------------------------------------------
	// Global Defaults (全局默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("log_level", "info")

	// -------------------------------------------------------------------------
	// Storage Defaults (存储默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("storage.path", "behflow.db")
	v.SetDefault("storage.busy_timeout", 5*time.Second)

	// -------------------------------------------------------------------------
	// Agent Defaults (对话助手默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("agent.max_rounds", 10)
	v.SetDefault("agent.model_timeout", 60*time.Second)
	v.SetDefault("agent.timezone", dates.DefaultTimezone)

	v.SetDefault("agent.ark.api_key", "")
	v.SetDefault("agent.ark.model_id", "")
	v.SetDefault("agent.ark.base_url", "https://ark.cn-beijing.volces.com/api/v3")

	v.BindEnv("agent.ark.api_key", "ARK_API_KEY")
	v.BindEnv("agent.ark.model_id", "ARK_MODEL_ID")
	v.BindEnv("agent.ark.base_url", "ARK_BASE_URL")

	// -------------------------------------------------------------------------
	// Scheduler Defaults (后台作业默认值)
	// -------------------------------------------------------------------------
	schedulerDefaults := scheduler.DefaultConfig()
	v.SetDefault("scheduler.reschedule.enabled", schedulerDefaults.Reschedule.Enabled)
	v.SetDefault("scheduler.reschedule.run_at_hour", schedulerDefaults.Reschedule.RunAtHour)
	v.SetDefault("scheduler.reschedule.run_at_minute", schedulerDefaults.Reschedule.RunAtMinute)
	v.SetDefault("scheduler.reschedule.timezone", schedulerDefaults.Reschedule.Timezone)

	v.SetDefault("scheduler.retention.enabled", schedulerDefaults.Retention.Enabled)
	v.SetDefault("scheduler.retention.interval", schedulerDefaults.Retention.Interval)
	v.SetDefault("scheduler.retention.keep_latest", schedulerDefaults.Retention.KeepLatest)
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Storage: storage.Config{
			Path:        "behflow.db",
			BusyTimeout: 5 * time.Second,
		},
		Agent: agent.Config{
			MaxRounds:    10,
			ModelTimeout: 60 * time.Second,
			Timezone:     dates.DefaultTimezone,
		},
		Scheduler: scheduler.DefaultConfig(),
	}
}
