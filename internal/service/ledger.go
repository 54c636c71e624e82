package service

import (
	"context"
	"errors"
	"time"

	"retailbank/internal/model"
	"retailbank/internal/repository"
	"retailbank/pkg/idgen"
	"retailbank/pkg/logger"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// applyDelta 所有余额变动都经过这里
func applyDelta(ctx context.Context, repo *repository.AccountRepository, tx *gorm.DB, accountID int64, delta decimal.Decimal) (*model.Account, error) {
	account, err := repo.ApplyDelta(ctx, tx, accountID, delta)
	if err != nil {
		if errors.Is(err, repository.ErrNegativeBalance) {
			logger.Errorf("[Ledger] 余额将变为负数，拒绝变更: accountID=%d, delta=%s", accountID, delta.StringFixed(2))
		}
		return nil, translate(err)
	}
	return account, nil
}

// newLeg 构造一条流水
func newLeg(accountID int64, txType, status string, amount decimal.Decimal, description string) *model.Transaction {
	return &model.Transaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		AccountID:     accountID,
		Type:          txType,
		Amount:        amount,
		Status:        status,
		Description:   description,
	}
}

func linkLegs(ref, scope string, legs ...*model.Transaction) {
	for _, leg := range legs {
		leg.TransferRef = ref
		leg.Scope = scope
	}
}

func eventTime() string {
	return time.Now().Format(time.RFC3339)
}
