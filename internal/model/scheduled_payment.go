package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ScheduledPaymentStatusPending   = "PENDING"
	ScheduledPaymentStatusCompleted = "COMPLETED"
	ScheduledPaymentStatusCancelled = "CANCELLED"
	ScheduledPaymentStatusFailed    = "FAILED"
)

var ValidScheduledPaymentTransitions = map[string][]string{
	ScheduledPaymentStatusPending: {
		ScheduledPaymentStatusCompleted,
		ScheduledPaymentStatusCancelled,
		ScheduledPaymentStatusFailed,
	},
}

func CanScheduledPaymentTransitionTo(currentStatus, targetStatus string) bool {
	for _, s := range ValidScheduledPaymentTransitions[currentStatus] {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// ScheduledPayment 信用卡预约还款
// 只在显式触发时执行，没有后台定时器
type ScheduledPayment struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"`
	OwnerID         int64           `gorm:"index;not null" json:"owner_id"`
	CreditCardID    int64           `gorm:"index;not null" json:"credit_card_id"`
	SourceAccountID int64           `gorm:"index;not null" json:"source_account_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	ScheduledDate   time.Time       `gorm:"not null;index" json:"scheduled_date"`
	Status          string          `gorm:"type:varchar(20);index;not null" json:"status"`
	ExecutedAt      *time.Time      `json:"executed_at"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	CreditCard    *CreditCard `gorm:"foreignKey:CreditCardID;constraint:OnDelete:CASCADE" json:"-"`
	SourceAccount *Account    `gorm:"foreignKey:SourceAccountID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ScheduledPayment) TableName() string {
	return "scheduled_payment"
}
