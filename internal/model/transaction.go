package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型 / 状态常量
// ============================================================================

const (
	TransactionTypeDeposit    = "DEPOSIT"
	TransactionTypeWithdrawal = "WITHDRAWAL"
	TransactionTypeTransfer   = "TRANSFER"
	TransactionTypeInterest   = "INTEREST"
	TransactionTypePayment    = "PAYMENT"
)

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
	TransactionStatusCancelled = "CANCELLED"
	TransactionStatusRejected  = "REJECTED"
)

// 转账范围：同一用户名下 / 行内 / 跨行
const (
	TransferScopeOwn      = "OWN"
	TransferScopeInternal = "INTERNAL"
	TransferScopeExternal = "EXTERNAL"
)

// 只有 PENDING 可以流转，其余均为终态
var ValidTransactionTransitions = map[string][]string{
	TransactionStatusPending: {
		TransactionStatusCompleted,
		TransactionStatusFailed,
		TransactionStatusCancelled,
		TransactionStatusRejected,
	},
}

func CanTransactionTransitionTo(currentStatus, targetStatus string) bool {
	for _, s := range ValidTransactionTransitions[currentStatus] {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsClosedWithoutSettlement 拒绝与取消是同一种结局：未入账，终态
func IsClosedWithoutSettlement(status string) bool {
	return status == TransactionStatusCancelled || status == TransactionStatusRejected
}

// ============================================================================
// 账户流水实体
// ============================================================================

// Transaction 账户流水
//
// 1. COMPLETED 的流水金额已经计入账户余额，且只计入一次
// 2. PENDING 的流水尚未影响余额，等待审批
// 3. 同一笔转账的两条腿共享 TransferRef；历史数据没有 TransferRef，只能解析 Description
type Transaction struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	AccountID          int64           `gorm:"index;not null" json:"account_id"`
	CreditCardID       *int64          `gorm:"index" json:"credit_card_id,omitempty"`
	Type               string          `gorm:"type:varchar(20);not null" json:"type"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status             string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Description        string          `gorm:"type:varchar(512);size:512" json:"description"`
	TransferRef        string          `gorm:"type:varchar(64);index" json:"transfer_ref,omitempty"`
	Scope              string          `gorm:"type:varchar(10)" json:"scope,omitempty"`
	CounterpartyNumber string          `gorm:"type:varchar(20);size:20" json:"counterparty_number,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;<-:create;index" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// 只用于建表时生成外键，业务代码不加载
	Account    *Account    `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
	CreditCard *CreditCard `gorm:"foreignKey:CreditCardID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Transaction) TableName() string {
	return "account_transaction"
}

// Structured 是否带有结构化的转账信息
func (t *Transaction) Structured() bool {
	return t.TransferRef != "" && t.Scope != ""
}
