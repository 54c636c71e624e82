package service

import (
	"errors"

	"retailbank/internal/infrastructure/lock"
	"retailbank/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount              = errors.New("金额不合法")
	ErrInsufficientFunds          = errors.New("余额不足")
	ErrNoSuchAccount              = errors.New("账户不存在")
	ErrSameAccount                = errors.New("不能转账到同一账户")
	ErrNotPending                 = errors.New("交易不是待处理状态")
	ErrCorrespondingEntryNotFound = errors.New("未找到对应的另一条流水")
	ErrUnsupportedLegType         = errors.New("该流水类型不支持此操作")
	ErrUnrecognizedTransferFormat = errors.New("无法识别的转账描述")
	ErrForbidden                  = errors.New("无权执行该操作")
	ErrBusy                       = errors.New("系统繁忙，请重试")
	ErrInvalidOutcome             = errors.New("不支持的审批结果")

	// 以下与仓储层共用同一个哨兵错误
	ErrNegativeBalance          = repository.ErrNegativeBalance
	ErrTransactionNotFound      = repository.ErrTransactionNotFound
	ErrScheduledPaymentNotFound = repository.ErrScheduledPaymentNotFound
	ErrCreditCardNotFound       = repository.ErrCardNotFound
)

// validateAmount 金额必须为正，且最多两位小数
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// translate 把仓储 / 基础设施错误转换为业务错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrNoSuchAccount
	case errors.Is(err, repository.ErrOptimisticLock), errors.Is(err, lock.ErrLockFailed):
		return ErrBusy
	case errors.Is(err, repository.ErrCardOverpay):
		return ErrInvalidAmount
	}
	return err
}
