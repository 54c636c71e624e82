package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	AccountKindChecking = "CHECKING"
	AccountKindSavings  = "SAVINGS"
)

// ValidAccountKind 是否为存款账户类型
func ValidAccountKind(kind string) bool {
	return kind == AccountKindChecking || kind == AccountKindSavings
}

// Account 存款账户（支票 / 储蓄）
// 每个用户每种类型最多一个账户，余额不允许为负
type Account struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID       int64           `gorm:"uniqueIndex:idx_owner_kind;not null" json:"owner_id"`
	Kind          string          `gorm:"type:varchar(10);uniqueIndex:idx_owner_kind;not null" json:"kind"`
	AccountNumber string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"account_number"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	InterestRate  decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"interest_rate"`
	IsPrimary     bool            `gorm:"not null;default:false" json:"is_primary"`
	Version       int             `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

const (
	CardStatusActive   = "ACTIVE"
	CardStatusInactive = "INACTIVE"
	CardStatusBlocked  = "BLOCKED"
)

// CreditCard 信用卡
// CurrentBalance 为欠款金额，AvailableCredit 每次保存时重新计算
type CreditCard struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID         int64           `gorm:"index;not null" json:"owner_id"`
	CardNumber      string          `gorm:"type:varchar(16);uniqueIndex;not null" json:"card_number"`
	ExpirationDate  time.Time       `gorm:"not null" json:"expiration_date"`
	CreditLimit     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"credit_limit"`
	CurrentBalance  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"current_balance"`
	AvailableCredit decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"available_credit"`
	APR             decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"apr"`
	Status          string          `gorm:"type:varchar(10);not null;default:ACTIVE" json:"status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CreditCard) TableName() string {
	return "credit_card"
}

// RecomputeAvailableCredit 可用额度 = 授信额度 - 当前欠款
func (c *CreditCard) RecomputeAvailableCredit() {
	c.AvailableCredit = c.CreditLimit.Sub(c.CurrentBalance)
}

func (c *CreditCard) BeforeSave(tx *gorm.DB) error {
	c.RecomputeAvailableCredit()
	return nil
}

func (c *CreditCard) LastFour() string {
	if len(c.CardNumber) <= 4 {
		return c.CardNumber
	}
	return c.CardNumber[len(c.CardNumber)-4:]
}
