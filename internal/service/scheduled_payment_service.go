package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retailbank/internal/config"
	"retailbank/internal/infrastructure/lock"
	"retailbank/internal/infrastructure/mail"
	"retailbank/internal/model"
	"retailbank/internal/repository"
	"retailbank/pkg/idgen"
	"retailbank/pkg/logger"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ScheduledPaymentService 信用卡预约还款
// 只有调用 Execute 才会执行，到期不会自动触发
type ScheduledPaymentService struct {
	db              *gorm.DB
	cfg             *config.Config
	locker          lock.Locker
	notifier        mail.Notifier
	accountRepo     *repository.AccountRepository
	cardRepo        *repository.CardRepository
	paymentRepo     *repository.ScheduledPaymentRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewScheduledPaymentService(db *gorm.DB, locker lock.Locker, notifier mail.Notifier, cfg *config.Config) *ScheduledPaymentService {
	return &ScheduledPaymentService{
		db:              db,
		cfg:             cfg,
		locker:          locker,
		notifier:        notifier,
		accountRepo:     repository.NewAccountRepository(db),
		cardRepo:        repository.NewCardRepository(db),
		paymentRepo:     repository.NewScheduledPaymentRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type ScheduleRequest struct {
	CreditCardID  int64           `json:"credit_card_id" binding:"required"`
	SourceKind    string          `json:"source_kind" binding:"required,oneof=CHECKING SAVINGS"`
	Amount        decimal.Decimal `json:"amount" binding:"money"`
	ScheduledDate time.Time       `json:"scheduled_date" binding:"required"`
}

func (s *ScheduledPaymentService) ownedCard(ctx context.Context, p Principal, cardID int64) (*model.CreditCard, error) {
	card, err := s.cardRepo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !p.Owns(card.OwnerID) {
		return nil, ErrCreditCardNotFound
	}
	return card, nil
}

func (s *ScheduledPaymentService) ownedPayment(ctx context.Context, p Principal, id int64) (*model.ScheduledPayment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Owns(payment.OwnerID) {
		return nil, ErrScheduledPaymentNotFound
	}
	return payment, nil
}

// Schedule 创建预约还款，此时不校验余额
func (s *ScheduledPaymentService) Schedule(ctx context.Context, p Principal, req *ScheduleRequest) (*model.ScheduledPayment, error) {
	card, err := s.ownedCard(ctx, p, req.CreditCardID)
	if err != nil {
		return nil, err
	}

	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Amount.GreaterThan(card.CurrentBalance) {
		return nil, ErrInvalidAmount
	}

	if !model.ValidAccountKind(req.SourceKind) {
		return nil, ErrNoSuchAccount
	}
	source, found, err := s.accountRepo.FindByOwnerAndKind(ctx, p.UserID, req.SourceKind)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoSuchAccount
	}

	payment := &model.ScheduledPayment{
		PaymentNo:       idgen.GeneratePaymentNo(),
		OwnerID:         p.UserID,
		CreditCardID:    card.ID,
		SourceAccountID: source.ID,
		Amount:          req.Amount,
		ScheduledDate:   req.ScheduledDate,
		Status:          model.ScheduledPaymentStatusPending,
	}
	if err := s.paymentRepo.Create(ctx, nil, payment); err != nil {
		return nil, fmt.Errorf("创建预约还款失败: %w", err)
	}

	logger.Infof("预约还款已创建: paymentNo=%s, card=%d, amount=%s, date=%s",
		payment.PaymentNo, card.ID, req.Amount.StringFixed(2), req.ScheduledDate.Format("2006-01-02"))
	return payment, nil
}

func (s *ScheduledPaymentService) Cancel(ctx context.Context, p Principal, id int64) (*model.ScheduledPayment, error) {
	if _, err := s.ownedPayment(ctx, p, id); err != nil {
		return nil, err
	}

	var payment *model.ScheduledPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.paymentRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		return s.transition(ctx, tx, payment, model.ScheduledPaymentStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("预约还款已取消: paymentNo=%s", payment.PaymentNo)
	return payment, nil
}

func (s *ScheduledPaymentService) transition(ctx context.Context, tx *gorm.DB, payment *model.ScheduledPayment, to string) error {
	if payment.Status != model.ScheduledPaymentStatusPending {
		return ErrNotPending
	}
	err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, model.ScheduledPaymentStatusPending, to)
	if errors.Is(err, repository.ErrStatusInvalid) {
		return ErrNotPending
	}
	if err != nil {
		return err
	}
	payment.Status = to
	return nil
}

// Execute 执行预约还款
//
// 余额不足：状态置为 FAILED 并提交，之后返回 ErrInsufficientFunds，余额不变
// 余额充足：扣款、减少信用卡欠款、写 PAYMENT 流水、状态置为 COMPLETED，在同一事务内完成
func (s *ScheduledPaymentService) Execute(ctx context.Context, p Principal, id int64) (*model.ScheduledPayment, error) {
	payment, err := s.ownedPayment(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.ScheduledPaymentStatusPending {
		return nil, ErrNotPending
	}

	release, err := s.locker.Acquire(ctx, lock.ScheduledPaymentKey(id))
	if err != nil {
		return nil, translate(err)
	}
	defer release()

	var (
		failed   bool
		lastFour string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.paymentRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != model.ScheduledPaymentStatusPending {
			return ErrNotPending
		}
		payment = current

		locked, err := s.accountRepo.LockByIDs(ctx, tx, current.SourceAccountID)
		if err != nil {
			return translate(err)
		}
		card, err := s.cardRepo.GetByIDForUpdate(ctx, tx, current.CreditCardID)
		if err != nil {
			return err
		}
		lastFour = card.LastFour()

		// 欠款可能在预约之后已被还清，此时保持 PENDING，由用户取消
		if current.Amount.GreaterThan(card.CurrentBalance) {
			return ErrInvalidAmount
		}

		if locked[current.SourceAccountID].Balance.LessThan(current.Amount) {
			if err := s.transition(ctx, tx, current, model.ScheduledPaymentStatusFailed); err != nil {
				return err
			}
			failed = true
			return s.enqueue(ctx, tx, model.EventScheduledPaymentFailed, current, "")
		}

		if _, err := applyDelta(ctx, s.accountRepo, tx, current.SourceAccountID, current.Amount.Neg()); err != nil {
			return err
		}
		if err := s.cardRepo.ReduceBalance(ctx, tx, card, current.Amount); err != nil {
			return translate(err)
		}

		leg := newLeg(current.SourceAccountID, model.TransactionTypePayment, model.TransactionStatusCompleted, current.Amount,
			fmt.Sprintf("Scheduled credit card payment for card ending in %s", lastFour))
		leg.CreditCardID = &card.ID
		if err := s.transactionRepo.Create(ctx, tx, leg); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		if err := s.transition(ctx, tx, current, model.ScheduledPaymentStatusCompleted); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, model.EventScheduledPaymentCompleted, current, leg.TransactionNo)
	})
	if err != nil {
		return nil, err
	}

	if failed {
		logger.Warnf("预约还款余额不足，已标记失败: paymentNo=%s, amount=%s", payment.PaymentNo, payment.Amount.StringFixed(2))
		s.notifyFailure(p, payment, lastFour)
		return payment, ErrInsufficientFunds
	}

	logger.Infof("预约还款执行成功: paymentNo=%s, amount=%s", payment.PaymentNo, payment.Amount.StringFixed(2))
	return s.paymentRepo.GetByID(ctx, id)
}

func (s *ScheduledPaymentService) notifyFailure(p Principal, payment *model.ScheduledPayment, lastFour string) {
	if p.Email == "" {
		return
	}
	body := mail.ScheduledPaymentFailedBody(payment.PaymentNo, lastFour, payment.Amount.StringFixed(2))
	if err := s.notifier.Send(p.Email, "预约还款失败", body); err != nil {
		logger.Warnf("预约还款失败通知发送失败: paymentNo=%s, err=%v", payment.PaymentNo, err)
	}
}

func (s *ScheduledPaymentService) enqueue(ctx context.Context, tx *gorm.DB, event string, payment *model.ScheduledPayment, transactionNo string) error {
	return s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.ScheduledPayment, payment.PaymentNo, event, map[string]interface{}{
		"event":             event,
		"payment_no":        payment.PaymentNo,
		"credit_card_id":    payment.CreditCardID,
		"source_account_id": payment.SourceAccountID,
		"amount":            payment.Amount.StringFixed(2),
		"transaction_no":    transactionNo,
		"status":            payment.Status,
		"occurred_at":       eventTime(),
	})
}

// List 按预约日期升序
func (s *ScheduledPaymentService) List(ctx context.Context, p Principal) ([]*model.ScheduledPayment, error) {
	return s.paymentRepo.ListByOwner(ctx, p.UserID)
}
