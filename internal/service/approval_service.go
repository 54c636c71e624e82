package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"retailbank/internal/config"
	"retailbank/internal/infrastructure/lock"
	"retailbank/internal/model"
	"retailbank/internal/repository"
	"retailbank/pkg/logger"

	"gorm.io/gorm"
)

// ============================================================================
// 审批流程
// ============================================================================
//
// PENDING -> COMPLETED | REJECTED | CANCELLED，均为终态，仅员工可操作
//
// 并发控制分三层：
//   1. Redis 分布式锁（按 TransferRef），同一笔转账的审批请求排队
//   2. 事务内对流水和账户加行锁，账户按 id 升序加锁
//   3. 状态条件更新 WHERE status = 'PENDING'，影响 0 行即 ErrNotPending
// ============================================================================

// 历史流水没有 TransferRef，只能从描述中解析：
//   Pending internal transfer from A to B: ...   （取款腿）
//   Pending internal transfer to B from A: ...   （存款腿）
//   Pending external transfer from A to B: ...
var transferDescPattern = regexp.MustCompile(`Pending (internal|external) transfer (from|to) (\d+) (from|to) (\d+):`)

type transferIntent struct {
	scope           string
	senderNumber    string
	recipientNumber string
}

func parseTransferDescription(description string) (transferIntent, error) {
	m := transferDescPattern.FindStringSubmatch(description)
	if m == nil || m[2] == m[4] {
		return transferIntent{}, ErrUnrecognizedTransferFormat
	}

	intent := transferIntent{scope: strings.ToUpper(m[1])}
	if m[2] == "from" {
		intent.senderNumber, intent.recipientNumber = m[3], m[5]
	} else {
		intent.recipientNumber, intent.senderNumber = m[3], m[5]
	}
	return intent, nil
}

// resolveIntent 优先使用结构化字段，历史数据回退到描述解析
func resolveIntent(entry *model.Transaction) (transferIntent, error) {
	if entry.Structured() {
		return transferIntent{scope: entry.Scope}, nil
	}
	return parseTransferDescription(entry.Description)
}

// legacyPair 历史行内转账两端的账户，事务开始前解析
type legacyPair struct {
	sender    *model.Account
	recipient *model.Account
}

type ApprovalService struct {
	db              *gorm.DB
	cfg             *config.Config
	locker          lock.Locker
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewApprovalService(db *gorm.DB, locker lock.Locker, cfg *config.Config) *ApprovalService {
	return &ApprovalService{
		db:              db,
		cfg:             cfg,
		locker:          locker,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type ApprovalResult struct {
	TransactionID int64                `json:"transaction_id"`
	TransferRef   string               `json:"transfer_ref,omitempty"`
	Status        string               `json:"status"`
	Legs          []*model.Transaction `json:"legs"`
}

func lockKey(entry *model.Transaction) string {
	if entry.TransferRef != "" {
		return lock.TransferKey(entry.TransferRef)
	}
	return lock.TransferKey(fmt.Sprintf("txn-%d", entry.ID))
}

// loadPending 读取流水并做一次快速状态检查，事务内会在行锁下再次检查
func (s *ApprovalService) loadPending(ctx context.Context, p Principal, id int64) (*model.Transaction, error) {
	if !p.IsStaff {
		return nil, ErrForbidden
	}
	entry, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.TransactionStatusPending {
		return nil, ErrNotPending
	}
	return entry, nil
}

func (s *ApprovalService) resolveLegacyPair(ctx context.Context, intent transferIntent) (*legacyPair, error) {
	sender, found, err := s.accountRepo.FindByAccountNumber(ctx, intent.senderNumber)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoSuchAccount
	}
	recipient, found, err := s.accountRepo.FindByAccountNumber(ctx, intent.recipientNumber)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoSuchAccount
	}
	return &legacyPair{sender: sender, recipient: recipient}, nil
}

// Approve 审批通过，变动余额并把相关流水置为 COMPLETED
func (s *ApprovalService) Approve(ctx context.Context, p Principal, id int64) (*ApprovalResult, error) {
	entry, err := s.loadPending(ctx, p, id)
	if err != nil {
		return nil, err
	}

	intent, err := resolveIntent(entry)
	if err != nil {
		logger.Warnf("[Approval] 无法解析转账描述: id=%d, description=%q", entry.ID, entry.Description)
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lockKey(entry))
	if err != nil {
		return nil, translate(err)
	}
	defer release()

	var legacy *legacyPair
	if !entry.Structured() && intent.scope == model.TransferScopeInternal {
		if legacy, err = s.resolveLegacyPair(ctx, intent); err != nil {
			return nil, err
		}
	}

	var settled []*model.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.transactionRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != model.TransactionStatusPending {
			return ErrNotPending
		}

		switch intent.scope {
		case model.TransferScopeInternal:
			settled, err = s.settleInternal(ctx, tx, current, legacy)
		case model.TransferScopeExternal:
			settled, err = s.settleExternal(ctx, tx, current)
		default:
			err = ErrUnsupportedLegType
		}
		if err != nil {
			return err
		}

		return s.enqueue(ctx, tx, model.EventTransferSettled, current, intent.scope, model.TransactionStatusCompleted, settled, p)
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("[Approval] 转账审批通过: id=%d, ref=%s, scope=%s, approver=%d",
		entry.ID, entry.TransferRef, intent.scope, p.UserID)

	return &ApprovalResult{
		TransactionID: id,
		TransferRef:   entry.TransferRef,
		Status:        model.TransactionStatusCompleted,
		Legs:          settled,
	}, nil
}

func (s *ApprovalService) settleInternal(ctx context.Context, tx *gorm.DB, current *model.Transaction, legacy *legacyPair) ([]*model.Transaction, error) {
	var wantType string
	switch current.Type {
	case model.TransactionTypeWithdrawal:
		wantType = model.TransactionTypeDeposit
	case model.TransactionTypeDeposit:
		wantType = model.TransactionTypeWithdrawal
	default:
		return nil, ErrUnsupportedLegType
	}

	counterpart, err := s.findCounterpart(ctx, tx, current, wantType, legacy)
	if err != nil {
		return nil, err
	}
	if counterpart == nil {
		logger.Errorf("[Approval] 行内转账缺少对应流水: id=%d, ref=%s, type=%s, amount=%s",
			current.ID, current.TransferRef, current.Type, current.Amount.StringFixed(2))
		return nil, ErrCorrespondingEntryNotFound
	}

	withdrawal, deposit := current, counterpart
	if current.Type == model.TransactionTypeDeposit {
		withdrawal, deposit = counterpart, current
	}

	if _, err := s.accountRepo.LockByIDs(ctx, tx, withdrawal.AccountID, deposit.AccountID); err != nil {
		return nil, translate(err)
	}

	amount := withdrawal.Amount
	if _, err := applyDelta(ctx, s.accountRepo, tx, withdrawal.AccountID, amount.Neg()); err != nil {
		return nil, err
	}
	if _, err := applyDelta(ctx, s.accountRepo, tx, deposit.AccountID, amount); err != nil {
		return nil, err
	}

	legs := []*model.Transaction{withdrawal, deposit}
	for _, leg := range legs {
		if err := s.transition(ctx, tx, leg, model.TransactionStatusCompleted); err != nil {
			return nil, err
		}
	}
	return legs, nil
}

func (s *ApprovalService) settleExternal(ctx context.Context, tx *gorm.DB, current *model.Transaction) ([]*model.Transaction, error) {
	if current.Type != model.TransactionTypeWithdrawal {
		return nil, ErrUnsupportedLegType
	}

	if _, err := applyDelta(ctx, s.accountRepo, tx, current.AccountID, current.Amount.Neg()); err != nil {
		return nil, err
	}
	if err := s.transition(ctx, tx, current, model.TransactionStatusCompleted); err != nil {
		return nil, err
	}
	return []*model.Transaction{current}, nil
}

// findCounterpart 找不到时返回 nil, nil
func (s *ApprovalService) findCounterpart(ctx context.Context, tx *gorm.DB, current *model.Transaction, wantType string, legacy *legacyPair) (*model.Transaction, error) {
	if current.Structured() {
		legs, err := s.transactionRepo.ListByTransferRef(ctx, tx, current.TransferRef)
		if err != nil {
			return nil, err
		}
		for _, leg := range legs {
			if leg.ID != current.ID && leg.Type == wantType &&
				leg.Status == model.TransactionStatusPending && leg.Amount.Equal(current.Amount) {
				return leg, nil
			}
		}
		return nil, nil
	}

	if legacy == nil {
		return nil, nil
	}

	var (
		accountID int64
		fragment  string
	)
	if current.Type == model.TransactionTypeWithdrawal {
		accountID = legacy.recipient.ID
		fragment = fmt.Sprintf("from %s:", legacy.sender.AccountNumber)
	} else {
		accountID = legacy.sender.ID
		fragment = fmt.Sprintf("to %s:", legacy.recipient.AccountNumber)
	}

	counterpart, found, err := s.transactionRepo.FindPendingCounterpart(ctx, tx, accountID, wantType, current.Amount, fragment)
	if err != nil || !found {
		return nil, err
	}
	return counterpart, nil
}

// transition 条件更新状态；并发下被抢先修改时返回 ErrNotPending
func (s *ApprovalService) transition(ctx context.Context, tx *gorm.DB, leg *model.Transaction, to string) error {
	err := s.transactionRepo.UpdateStatus(ctx, tx, leg.ID, model.TransactionStatusPending, to)
	if errors.Is(err, repository.ErrStatusInvalid) {
		return ErrNotPending
	}
	if err != nil {
		return err
	}
	leg.Status = to
	return nil
}

func (s *ApprovalService) enqueue(ctx context.Context, tx *gorm.DB, event string, current *model.Transaction, scope, status string, legs []*model.Transaction, p Principal) error {
	ids := make([]int64, 0, len(legs))
	for _, leg := range legs {
		ids = append(ids, leg.ID)
	}

	key := current.TransferRef
	if key == "" {
		key = current.TransactionNo
	}

	return s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Settlement, key, event, map[string]interface{}{
		"event":           event,
		"transfer_ref":    current.TransferRef,
		"scope":           scope,
		"status":          status,
		"transaction_ids": ids,
		"amount":          current.Amount.StringFixed(2),
		"decided_by":      p.UserID,
		"occurred_at":     eventTime(),
	})
}

// Reject 拒绝 / 取消待审批流水，不变动余额；行内转账的另一条腿一并关闭
//
// outcome 只能是 CANCELLED 或 REJECTED，两者含义相同，只是入口不同
func (s *ApprovalService) Reject(ctx context.Context, p Principal, id int64, outcome string) (*ApprovalResult, error) {
	if !model.IsClosedWithoutSettlement(outcome) {
		return nil, ErrInvalidOutcome
	}

	entry, err := s.loadPending(ctx, p, id)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lockKey(entry))
	if err != nil {
		return nil, translate(err)
	}
	defer release()

	// 描述无法解析时只关闭当前这一条
	scope := entry.Scope
	var legacy *legacyPair
	if !entry.Structured() {
		if intent, err := parseTransferDescription(entry.Description); err == nil {
			scope = intent.scope
			if intent.scope == model.TransferScopeInternal {
				if legacy, err = s.resolveLegacyPair(ctx, intent); err != nil {
					logger.Warnf("[Approval] 拒绝时无法定位对应账户，仅关闭当前流水: id=%d, err=%v", entry.ID, err)
					legacy = nil
				}
			}
		}
	}

	var closed []*model.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.transactionRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != model.TransactionStatusPending {
			return ErrNotPending
		}
		if err := s.transition(ctx, tx, current, outcome); err != nil {
			return err
		}
		closed = append(closed, current)

		if scope == model.TransferScopeInternal {
			paired, err := s.pairedPending(ctx, tx, current, legacy)
			if err != nil {
				return err
			}
			for _, leg := range paired {
				if err := s.transition(ctx, tx, leg, outcome); err != nil {
					return err
				}
				closed = append(closed, leg)
			}
		}

		return s.enqueue(ctx, tx, model.EventTransferRejected, current, scope, outcome, closed, p)
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("[Approval] 转账已关闭: id=%d, ref=%s, outcome=%s, legs=%d, approver=%d",
		entry.ID, entry.TransferRef, outcome, len(closed), p.UserID)

	return &ApprovalResult{
		TransactionID: id,
		TransferRef:   entry.TransferRef,
		Status:        outcome,
		Legs:          closed,
	}, nil
}

// pairedPending 当前流水之外仍为 PENDING 的同一笔转账的其它腿
func (s *ApprovalService) pairedPending(ctx context.Context, tx *gorm.DB, current *model.Transaction, legacy *legacyPair) ([]*model.Transaction, error) {
	if current.Structured() {
		legs, err := s.transactionRepo.ListByTransferRef(ctx, tx, current.TransferRef)
		if err != nil {
			return nil, err
		}
		var paired []*model.Transaction
		for _, leg := range legs {
			if leg.ID != current.ID && leg.Status == model.TransactionStatusPending {
				paired = append(paired, leg)
			}
		}
		return paired, nil
	}

	wantType := model.TransactionTypeDeposit
	if current.Type == model.TransactionTypeDeposit {
		wantType = model.TransactionTypeWithdrawal
	}
	counterpart, err := s.findCounterpart(ctx, tx, current, wantType, legacy)
	if err != nil || counterpart == nil {
		return nil, err
	}
	return []*model.Transaction{counterpart}, nil
}
