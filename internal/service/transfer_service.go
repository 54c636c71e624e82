package service

import (
	"context"
	"fmt"
	"strings"

	"retailbank/internal/config"
	"retailbank/internal/model"
	"retailbank/internal/repository"
	"retailbank/pkg/idgen"
	"retailbank/pkg/logger"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransferService 资金划转
//
// 同一用户名下的账户互转立即入账；跨用户 / 跨行转账只写 PENDING 流水，等待审批后才变动余额
type TransferService struct {
	db              *gorm.DB
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	cardRepo        *repository.CardRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewTransferService(db *gorm.DB, cfg *config.Config) *TransferService {
	return &TransferService{
		db:              db,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		cardRepo:        repository.NewCardRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type SendMoneyRequest struct {
	FromAccountNumber      string          `json:"from_account_number" binding:"required,max=20"`
	RecipientAccountNumber string          `json:"recipient_account_number" binding:"required,numeric,max=20"`
	Amount                 decimal.Decimal `json:"amount" binding:"money"`
	Description            string          `json:"description" binding:"max=200"`
}

type OwnTransferRequest struct {
	FromAccountNumber string          `json:"from_account_number" binding:"required,max=20"`
	ToAccountNumber   string          `json:"to_account_number" binding:"required,max=20"`
	Amount            decimal.Decimal `json:"amount" binding:"money"`
}

type TransferResult struct {
	TransferRef string               `json:"transfer_ref"`
	Scope       string               `json:"scope"`
	Status      string               `json:"status"`
	Legs        []*model.Transaction `json:"legs"`
}

type BalanceChange struct {
	Transaction *model.Transaction `json:"transaction"`
	Balance     decimal.Decimal    `json:"balance"`
}

func kindLabel(kind string) string {
	if kind == model.AccountKindSavings {
		return "Savings"
	}
	return "Checking"
}

// ownedAccount 按账号查找并校验归属，不属于调用方的账户一律视为不存在
func (s *TransferService) ownedAccount(ctx context.Context, p Principal, number string) (*model.Account, error) {
	account, found, err := s.accountRepo.FindByAccountNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !found || !p.Owns(account.OwnerID) {
		return nil, ErrNoSuchAccount
	}
	return account, nil
}

func (s *TransferService) ownedAccountByKind(ctx context.Context, p Principal, kind string) (*model.Account, error) {
	if !model.ValidAccountKind(kind) {
		return nil, ErrNoSuchAccount
	}
	account, found, err := s.accountRepo.FindByOwnerAndKind(ctx, p.UserID, kind)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoSuchAccount
	}
	return account, nil
}

// SendMoney 向任意账号转账，只生成待审批流水，不变动余额
//
// 收款账号在本行存在：生成 取款 + 存款 两条 PENDING 流水，共享 TransferRef
// 收款账号不存在：视为跨行，只生成一条 PENDING 取款流水
func (s *TransferService) SendMoney(ctx context.Context, p Principal, req *SendMoneyRequest) (*TransferResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	sender, err := s.ownedAccount(ctx, p, req.FromAccountNumber)
	if err != nil {
		return nil, err
	}

	if req.RecipientAccountNumber == sender.AccountNumber {
		return nil, ErrSameAccount
	}

	// 这里只做提示性校验，审批时会在行锁下再次校验
	if sender.Balance.LessThan(req.Amount) {
		return nil, ErrInsufficientFunds
	}

	recipient, internal, err := s.accountRepo.FindByAccountNumber(ctx, req.RecipientAccountNumber)
	if err != nil {
		return nil, fmt.Errorf("查询收款账户失败: %w", err)
	}

	ref := idgen.GenerateTransferRef()
	var legs []*model.Transaction
	scope := model.TransferScopeExternal

	if internal {
		scope = model.TransferScopeInternal
		withdrawal := newLeg(sender.ID, model.TransactionTypeWithdrawal, model.TransactionStatusPending, req.Amount,
			fmt.Sprintf("Pending internal transfer from %s to %s: %s", sender.AccountNumber, recipient.AccountNumber, req.Description))
		withdrawal.CounterpartyNumber = recipient.AccountNumber

		deposit := newLeg(recipient.ID, model.TransactionTypeDeposit, model.TransactionStatusPending, req.Amount,
			fmt.Sprintf("Pending internal transfer to %s from %s: %s", recipient.AccountNumber, sender.AccountNumber, req.Description))
		deposit.CounterpartyNumber = sender.AccountNumber

		legs = append(legs, withdrawal, deposit)
	} else {
		withdrawal := newLeg(sender.ID, model.TransactionTypeWithdrawal, model.TransactionStatusPending, req.Amount,
			fmt.Sprintf("Pending external transfer from %s to %s: %s", sender.AccountNumber, req.RecipientAccountNumber, req.Description))
		withdrawal.CounterpartyNumber = req.RecipientAccountNumber

		legs = append(legs, withdrawal)
	}
	linkLegs(ref, scope, legs...)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, leg := range legs {
			if err := s.transactionRepo.Create(ctx, tx, leg); err != nil {
				return fmt.Errorf("记录流水失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("转账已提交待审批: ref=%s, scope=%s, from=%s, to=%s, amount=%s",
		ref, scope, sender.AccountNumber, req.RecipientAccountNumber, req.Amount.StringFixed(2))

	return &TransferResult{
		TransferRef: ref,
		Scope:       scope,
		Status:      model.TransactionStatusPending,
		Legs:        legs,
	}, nil
}

// TransferBetweenOwnAccounts 本人账户互转，立即入账
func (s *TransferService) TransferBetweenOwnAccounts(ctx context.Context, p Principal, req *OwnTransferRequest) (*TransferResult, error) {
	if req.FromAccountNumber == req.ToAccountNumber {
		return nil, ErrSameAccount
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	from, err := s.ownedAccount(ctx, p, req.FromAccountNumber)
	if err != nil {
		return nil, err
	}
	to, err := s.ownedAccount(ctx, p, req.ToAccountNumber)
	if err != nil {
		return nil, err
	}

	out := newLeg(from.ID, model.TransactionTypeTransfer, model.TransactionStatusCompleted, req.Amount,
		"Transfer to "+kindLabel(to.Kind))
	in := newLeg(to.ID, model.TransactionTypeTransfer, model.TransactionStatusCompleted, req.Amount,
		"Transfer from "+kindLabel(from.Kind))

	return s.settleOwn(ctx, from, to, req.Amount, out, in)
}

// TransferToSavings 支票账户 -> 储蓄账户
func (s *TransferService) TransferToSavings(ctx context.Context, p Principal, amount decimal.Decimal) (*TransferResult, error) {
	return s.transferByKind(ctx, p, model.AccountKindChecking, model.AccountKindSavings, amount)
}

// TransferFromSavings 储蓄账户 -> 支票账户
func (s *TransferService) TransferFromSavings(ctx context.Context, p Principal, amount decimal.Decimal) (*TransferResult, error) {
	return s.transferByKind(ctx, p, model.AccountKindSavings, model.AccountKindChecking, amount)
}

func (s *TransferService) transferByKind(ctx context.Context, p Principal, fromKind, toKind string, amount decimal.Decimal) (*TransferResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	from, err := s.ownedAccountByKind(ctx, p, fromKind)
	if err != nil {
		return nil, err
	}
	to, err := s.ownedAccountByKind(ctx, p, toKind)
	if err != nil {
		return nil, err
	}

	out := newLeg(from.ID, model.TransactionTypeWithdrawal, model.TransactionStatusCompleted, amount,
		fmt.Sprintf("Transfer to %s account", strings.ToLower(kindLabel(toKind))))
	in := newLeg(to.ID, model.TransactionTypeDeposit, model.TransactionStatusCompleted, amount,
		fmt.Sprintf("Transfer from %s account", strings.ToLower(kindLabel(fromKind))))

	return s.settleOwn(ctx, from, to, amount, out, in)
}

// settleOwn 在一个事务内：行锁 -> 校验余额 -> 双边变动余额 -> 写两条 COMPLETED 流水
func (s *TransferService) settleOwn(ctx context.Context, from, to *model.Account, amount decimal.Decimal, out, in *model.Transaction) (*TransferResult, error) {
	ref := idgen.GenerateTransferRef()
	linkLegs(ref, model.TransferScopeOwn, out, in)
	out.CounterpartyNumber = to.AccountNumber
	in.CounterpartyNumber = from.AccountNumber

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.accountRepo.LockByIDs(ctx, tx, from.ID, to.ID)
		if err != nil {
			return translate(err)
		}

		if locked[from.ID].Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		if _, err := applyDelta(ctx, s.accountRepo, tx, from.ID, amount.Neg()); err != nil {
			return err
		}
		if _, err := applyDelta(ctx, s.accountRepo, tx, to.ID, amount); err != nil {
			return err
		}

		for _, leg := range []*model.Transaction{out, in} {
			if err := s.transactionRepo.Create(ctx, tx, leg); err != nil {
				return fmt.Errorf("记录流水失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("本人账户互转成功: ref=%s, from=%s, to=%s, amount=%s",
		ref, from.AccountNumber, to.AccountNumber, amount.StringFixed(2))

	return &TransferResult{
		TransferRef: ref,
		Scope:       model.TransferScopeOwn,
		Status:      model.TransactionStatusCompleted,
		Legs:        []*model.Transaction{out, in},
	}, nil
}

// Deposit 存款，立即入账
func (s *TransferService) Deposit(ctx context.Context, p Principal, kind string, amount decimal.Decimal) (*BalanceChange, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	account, err := s.ownedAccountByKind(ctx, p, kind)
	if err != nil {
		return nil, err
	}

	leg := newLeg(account.ID, model.TransactionTypeDeposit, model.TransactionStatusCompleted, amount,
		fmt.Sprintf("Deposit to %s account", strings.ToLower(kindLabel(kind))))

	var updated *model.Account
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if updated, err = applyDelta(ctx, s.accountRepo, tx, account.ID, amount); err != nil {
			return err
		}
		if err := s.transactionRepo.Create(ctx, tx, leg); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("存款成功: account=%s, amount=%s", account.AccountNumber, amount.StringFixed(2))
	return &BalanceChange{Transaction: leg, Balance: updated.Balance}, nil
}

type CardPaymentRequest struct {
	SourceKind string          `json:"source_kind" binding:"required,oneof=CHECKING SAVINGS"`
	Amount     decimal.Decimal `json:"amount" binding:"money"`
}

// PayCardNow 立即还款：扣减存款账户余额、减少信用卡欠款、写 PAYMENT 流水
func (s *TransferService) PayCardNow(ctx context.Context, p Principal, cardID int64, req *CardPaymentRequest) (*BalanceChange, error) {
	card, err := s.cardRepo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !p.Owns(card.OwnerID) {
		return nil, ErrCreditCardNotFound
	}

	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Amount.GreaterThan(card.CurrentBalance) {
		return nil, ErrInvalidAmount
	}

	source, err := s.ownedAccountByKind(ctx, p, req.SourceKind)
	if err != nil {
		return nil, err
	}

	var leg *model.Transaction
	var updated *model.Account
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先锁账户再锁卡，与预约还款执行的顺序一致
		locked, err := s.accountRepo.LockByIDs(ctx, tx, source.ID)
		if err != nil {
			return translate(err)
		}
		lockedCard, err := s.cardRepo.GetByIDForUpdate(ctx, tx, card.ID)
		if err != nil {
			return err
		}

		if req.Amount.GreaterThan(lockedCard.CurrentBalance) {
			return ErrInvalidAmount
		}
		if locked[source.ID].Balance.LessThan(req.Amount) {
			return ErrInsufficientFunds
		}

		if updated, err = applyDelta(ctx, s.accountRepo, tx, source.ID, req.Amount.Neg()); err != nil {
			return err
		}
		if err := s.cardRepo.ReduceBalance(ctx, tx, lockedCard, req.Amount); err != nil {
			return translate(err)
		}

		leg = newLeg(source.ID, model.TransactionTypePayment, model.TransactionStatusCompleted, req.Amount,
			fmt.Sprintf("Credit card payment for card ending in %s", lockedCard.LastFour()))
		leg.CreditCardID = &lockedCard.ID
		if err := s.transactionRepo.Create(ctx, tx, leg); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		return s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Settlement, leg.TransactionNo,
			model.EventCardPaymentCompleted, map[string]interface{}{
				"event":          model.EventCardPaymentCompleted,
				"transaction_no": leg.TransactionNo,
				"credit_card_id": lockedCard.ID,
				"account_id":     source.ID,
				"amount":         req.Amount.StringFixed(2),
				"occurred_at":    eventTime(),
			})
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("信用卡还款成功: card=%d, account=%s, amount=%s", card.ID, source.AccountNumber, req.Amount.StringFixed(2))
	return &BalanceChange{Transaction: leg, Balance: updated.Balance}, nil
}
