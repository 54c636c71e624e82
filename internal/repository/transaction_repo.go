package repository

import (
	"context"
	"errors"
	"time"

	"retailbank/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTransactionNotFound = errors.New("流水不存在")
	ErrStatusInvalid       = errors.New("状态不合法")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).First(&trans, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Transaction, error) {
	var trans model.Transaction
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// ListByTransferRef 同一笔转账的所有腿，tx 非空时加行锁
func (r *TransactionRepository) ListByTransferRef(ctx context.Context, tx *gorm.DB, ref string) ([]*model.Transaction, error) {
	query := r.db
	if tx != nil {
		query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var legs []*model.Transaction
	err := query.WithContext(ctx).
		Where("transfer_ref = ?", ref).
		Order("id ASC").
		Find(&legs).Error
	return legs, err
}

// FindPendingCounterpart 历史数据没有 TransferRef 时，按 账户 + 类型 + 金额 + 描述片段 查找另一条腿
//
// 金额在内存中比较，不依赖各数据库对 decimal 的比较语义
func (r *TransactionRepository) FindPendingCounterpart(ctx context.Context, tx *gorm.DB, accountID int64, txType string, amount decimal.Decimal, fragment string) (*model.Transaction, bool, error) {
	var candidates []*model.Transaction
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND type = ? AND status = ? AND description LIKE ?",
			accountID, txType, model.TransactionStatusPending, "%"+fragment+"%").
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, false, err
	}

	for _, c := range candidates {
		if c.Amount.Equal(amount) {
			return c, true, nil
		}
	}
	return nil, false, nil
}

// UpdateStatus 条件更新：WHERE id = ? AND status = ?
// 影响行数为 0 说明状态已被其他请求修改
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if !model.CanTransactionTransitionTo(fromStatus, toStatus) {
		return ErrStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusInvalid
	}

	return nil
}

func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID int64, txType string, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("account_id = ?", accountID)
	if txType != "" {
		query = query.Where("type = ?", txType)
	}
	query = query.Session(&gorm.Session{})

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// GetStalePendingInternal 创建时间早于 beforeTime 且仍为 PENDING 的行内转账腿
func (r *TransactionRepository) GetStalePendingInternal(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Transaction, error) {
	var legs []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND scope = ? AND created_at < ?",
			model.TransactionStatusPending, model.TransferScopeInternal, beforeTime).
		Order("id ASC").
		Limit(limit).
		Find(&legs).Error
	return legs, err
}
