package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetOrCreateUserByExternalID 按外部标识解析用户，不存在则创建。
// 同一个外部标识永远解析到同一个内部 UUID（唯一索引保证）。
func (s *Storage) GetOrCreateUserByExternalID(ctx context.Context, externalID string) (*User, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, errors.New("external id is empty")
	}

	user := User{
		UserID:     uuid.New().String(),
		ExternalID: externalID,
	}
	// 并发安全：冲突时不写入，随后统一按 external_id 读回。
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	var out User
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&out).Error; err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &out, nil
}

// GetUserByID 按内部 UUID 查询用户；不存在时返回 (nil, nil)。
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*User, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var out User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &out, nil
}

func (s *Storage) CountUsers(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
