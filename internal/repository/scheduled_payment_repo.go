package repository

import (
	"context"
	"errors"
	"time"

	"retailbank/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrScheduledPaymentNotFound = errors.New("预约还款不存在")

type ScheduledPaymentRepository struct {
	db *gorm.DB
}

func NewScheduledPaymentRepository(db *gorm.DB) *ScheduledPaymentRepository {
	return &ScheduledPaymentRepository{db: db}
}

func (r *ScheduledPaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.ScheduledPayment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *ScheduledPaymentRepository) GetByID(ctx context.Context, id int64) (*model.ScheduledPayment, error) {
	var payment model.ScheduledPayment
	err := r.db.WithContext(ctx).First(&payment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduledPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *ScheduledPaymentRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.ScheduledPayment, error) {
	var payment model.ScheduledPayment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduledPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *ScheduledPaymentRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if !model.CanScheduledPaymentTransitionTo(fromStatus, toStatus) {
		return ErrStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}

	if toStatus == model.ScheduledPaymentStatusCompleted || toStatus == model.ScheduledPaymentStatusFailed {
		now := time.Now()
		updates["executed_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.ScheduledPayment{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusInvalid
	}

	return nil
}

func (r *ScheduledPaymentRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.ScheduledPayment, error) {
	var payments []*model.ScheduledPayment
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("scheduled_date ASC").
		Order("id ASC").
		Find(&payments).Error
	return payments, err
}
