package repository

import (
	"context"
	"errors"

	"retailbank/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCardNotFound = errors.New("信用卡不存在")
	ErrCardOverpay  = errors.New("还款金额超过当前欠款")
)

type CardRepository struct {
	db *gorm.DB
}

func NewCardRepository(db *gorm.DB) *CardRepository {
	return &CardRepository{db: db}
}

func (r *CardRepository) GetByID(ctx context.Context, id int64) (*model.CreditCard, error) {
	var card model.CreditCard
	err := r.db.WithContext(ctx).First(&card, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

func (r *CardRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.CreditCard, error) {
	var card model.CreditCard
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

// Save 整行保存，BeforeSave 钩子会重新计算可用额度
func (r *CardRepository) Save(ctx context.Context, tx *gorm.DB, card *model.CreditCard) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Save(card).Error
}

// ReduceBalance 还款：减少欠款，调用方需先对卡加锁
func (r *CardRepository) ReduceBalance(ctx context.Context, tx *gorm.DB, card *model.CreditCard, amount decimal.Decimal) error {
	if amount.GreaterThan(card.CurrentBalance) {
		return ErrCardOverpay
	}
	card.CurrentBalance = card.CurrentBalance.Sub(amount)
	return r.Save(ctx, tx, card)
}
