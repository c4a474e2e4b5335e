// Package dates 提供公历与波斯历（Jalali）之间的换算，以及对用户输入
// 截止时间的宽松解析。换算永远以公历时间为准，波斯历文本只是展示冗余。
package dates

import (
	"fmt"
	"strings"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"
)

// DefaultTimezone 为任务时间展示/换算使用的默认时区。
const DefaultTimezone = "Asia/Tehran"

// LoadLocation 加载展示时区，空串使用默认值。
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// ToJalali 将公历时间转换为波斯历 ISO 风格文本（yyyy-MM-ddTHH:mm:ss）。
func ToJalali(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return ptime.New(t).Format("yyyy-MM-ddTHH:mm:ss")
}

// dueDateLayouts 为可接受的截止时间写法，从严到宽依次尝试。
var dueDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDueDate 解析用户/模型给出的截止时间文本。
// 纯日期写法落在当天 23:59:59（loc 时区），返回 UTC 时间。
func ParseDueDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty due date")
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range dueDateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			t = EndOfDay(t, loc)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable due date %q (use e.g. 2026-09-01 or 2026-09-01 18:00)", s)
}

// EndOfDay 返回 t 所在日（loc 时区）的最后一秒。
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, loc)
}
