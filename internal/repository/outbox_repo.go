package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"retailbank/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue 在业务事务内写入一条待投递事件
func (r *OutboxRepository) Enqueue(ctx context.Context, tx *gorm.DB, topic, key, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	if tx == nil {
		tx = r.db
	}

	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		EventType:  eventType,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	}
	return tx.WithContext(ctx).Create(msg).Error
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkAsSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure 重试次数 +1，达到上限时标记为 FAILED
func (r *OutboxRepository) RecordFailure(ctx context.Context, msg *model.OutboxMessage, maxRetry int) (bool, error) {
	updates := map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
	}

	exhausted := msg.RetryCount+1 >= maxRetry
	if exhausted {
		updates["status"] = model.OutboxStatusFailed
	}

	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", msg.ID).
		Updates(updates).Error
	return exhausted, err
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("status = ?", status).
		Count(&total).Error
	return total, err
}
