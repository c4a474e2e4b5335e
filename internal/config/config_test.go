package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/behflow/behflow/internal/scheduler"
	"github.com/behflow/behflow/internal/storage"
)

func TestLoad_Defaults(t *testing.T) {
	// 设置必填环境变量，绕过 Validate 检查
	t.Setenv("ARK_API_KEY", "dummy-key")
	t.Setenv("ARK_MODEL_ID", "dummy-model")

	// 测试加载默认值（不提供配置文件）
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "behflow.db", cfg.Storage.Path)
	assert.Equal(t, 10, cfg.Agent.MaxRounds)
	assert.Equal(t, 60*time.Second, cfg.Agent.ModelTimeout)
	assert.True(t, cfg.Scheduler.Reschedule.Enabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := []byte(`
log_level: "debug"
agent:
  max_rounds: 5
  timezone: "UTC"
  ark:
    api_key: "file-key"
    model_id: "file-model"
storage:
  path: "test.db"
  busy_timeout: "10s"
scheduler:
  reschedule:
    enabled: false
    run_at_hour: 3
`)
	err := os.WriteFile(configFile, content, 0644)
	assert.NoError(t, err)

	// 从文件加载
	cfg, err := Load(configFile)
	assert.NoError(t, err)

	// 验证覆盖值
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "test.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, 5, cfg.Agent.MaxRounds)
	assert.Equal(t, "UTC", cfg.Agent.Timezone)
	assert.False(t, cfg.Scheduler.Reschedule.Enabled)
	assert.Equal(t, 3, cfg.Scheduler.Reschedule.RunAtHour)

	// 验证未覆盖的字段保持默认值
	assert.Equal(t, scheduler.DefaultConfig().Retention.KeepLatest, cfg.Scheduler.Retention.KeepLatest)
}

func TestLoad_EnvOverride(t *testing.T) {
	// 设置环境变量
	t.Setenv("BEHFLOW_LOG_LEVEL", "warn")
	t.Setenv("BEHFLOW_STORAGE_PATH", "env.db")
	t.Setenv("BEHFLOW_AGENT_MAX_ROUNDS", "3")
	// 必须设置必填项，否则 Validate 会失败
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL_ID", "test-model")

	// 加载配置（无文件）
	cfg, err := Load("")
	assert.NoError(t, err)

	// 验证环境变量覆盖
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "env.db", cfg.Storage.Path)
	assert.Equal(t, 3, cfg.Agent.MaxRounds)
	assert.Equal(t, "test-key", cfg.Agent.Ark.APIKey)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证几个关键默认值
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, storage.Config{Path: "behflow.db", BusyTimeout: 5 * time.Second}, cfg.Storage)
	assert.Equal(t, 10, cfg.Agent.MaxRounds)
}

func TestLoad_ValidateArk(t *testing.T) {
	// 确保没有环境变量干扰
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL_ID", "")

	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "agent.ark.api_key is required")
}
