package scheduler

import (
	"time"

	"github.com/behflow/behflow/internal/dates"
)

type RescheduleConfig struct {
	// Enabled 控制每日改期作业是否启用。
	Enabled bool `mapstructure:"enabled"`

	// RunAtHour/RunAtMinute 为每天触发改期的本地时间（按 Timezone）。
	RunAtHour   int `mapstructure:"run_at_hour"`
	RunAtMinute int `mapstructure:"run_at_minute"`

	// Timezone 为计算“每天几点”和新截止时间使用的时区。
	Timezone string `mapstructure:"timezone"`
}

type RetentionConfig struct {
	// Enabled 控制审计记录清理作业是否启用。
	Enabled bool `mapstructure:"enabled"`

	// Interval 为清理周期。
	Interval time.Duration `mapstructure:"interval"`

	// KeepLatest 为保留的最新审计记录条数；更早的会被批量删除。
	KeepLatest int `mapstructure:"keep_latest"`
}

type Config struct {
	Reschedule RescheduleConfig `mapstructure:"reschedule"`
	Retention  RetentionConfig  `mapstructure:"retention"`
}

func DefaultConfig() Config {
	return Config{
		Reschedule: RescheduleConfig{
			Enabled:     true,
			RunAtHour:   0,
			RunAtMinute: 5,
			Timezone:    dates.DefaultTimezone,
		},
		Retention: RetentionConfig{
			Enabled:    true,
			Interval:   6 * time.Hour,
			KeepLatest: 10000,
		},
	}
}

func (c RescheduleConfig) withDefaults() RescheduleConfig {
	if c.RunAtHour < 0 || c.RunAtHour > 23 {
		c.RunAtHour = 0
	}
	if c.RunAtMinute < 0 || c.RunAtMinute > 59 {
		c.RunAtMinute = 5
	}
	if c.Timezone == "" {
		c.Timezone = dates.DefaultTimezone
	}
	return c
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.Interval <= 0 {
		c.Interval = 6 * time.Hour
	}
	if c.KeepLatest <= 0 {
		c.KeepLatest = 10000
	}
	return c
}
