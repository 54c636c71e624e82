package service

import (
	"context"
	"strings"

	"retailbank/internal/config"
	"retailbank/internal/model"
	"retailbank/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultPageSize = 20

type AccountService struct {
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	cfg             *config.Config
}

func NewAccountService(db *gorm.DB, cfg *config.Config) *AccountService {
	return &AccountService{
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		cfg:             cfg,
	}
}

func (s *AccountService) owned(ctx context.Context, p Principal, number string) (*model.Account, error) {
	account, found, err := s.accountRepo.FindByAccountNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !found || !p.Owns(account.OwnerID) {
		return nil, ErrNoSuchAccount
	}
	return account, nil
}

func (s *AccountService) GetBalance(ctx context.Context, p Principal, number string) (decimal.Decimal, error) {
	account, err := s.owned(ctx, p, number)
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := s.accountRepo.GetBalance(ctx, account.ID)
	return balance, translate(err)
}

func (s *AccountService) ListAccounts(ctx context.Context, p Principal) ([]*model.Account, error) {
	return s.accountRepo.ListByOwner(ctx, p.UserID)
}

type TransactionPage struct {
	List     []*model.Transaction `json:"list"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// ListTransactions 账户流水，按时间倒序；txType 为空时不过滤
func (s *AccountService) ListTransactions(ctx context.Context, p Principal, number, txType string, page, pageSize int) (*TransactionPage, error) {
	account, err := s.owned(ctx, p, number)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if max := s.cfg.Business.TransactionPageSizeMax; max > 0 && pageSize > max {
		pageSize = max
	}

	list, total, err := s.transactionRepo.ListByAccountID(ctx, account.ID, strings.ToUpper(txType), page, pageSize)
	if err != nil {
		return nil, err
	}

	return &TransactionPage{List: list, Total: total, Page: page, PageSize: pageSize}, nil
}
