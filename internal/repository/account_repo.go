package repository

import (
	"context"
	"errors"
	"sort"

	"retailbank/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrNegativeBalance  = errors.New("余额不能为负")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
	ErrDuplicateAccount = errors.New("该用户已存在同类型账户")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	if _, found, err := r.FindByOwnerAndKind(ctx, account.OwnerID, account.Kind); err != nil {
		return err
	} else if found {
		return ErrDuplicateAccount
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).First(&account, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetBalance(ctx context.Context, id int64) (decimal.Decimal, error) {
	account, err := r.GetByID(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// FindByAccountNumber 未找到时 found=false，err=nil
func (r *AccountRepository) FindByAccountNumber(ctx context.Context, number string) (*model.Account, bool, error) {
	return r.findOne(ctx, "account_number = ?", number)
}

func (r *AccountRepository) FindByOwnerAndKind(ctx context.Context, ownerID int64, kind string) (*model.Account, bool, error) {
	return r.findOne(ctx, "owner_id = ? AND kind = ?", ownerID, kind)
}

func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) findOne(ctx context.Context, query string, args ...interface{}) (*model.Account, bool, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where(query, args...).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &account, true, nil
}

// LockByIDs 按 id 升序加行锁（SELECT ... FOR UPDATE）
//
// 所有需要锁多个账户的事务都按同一顺序加锁，避免 A->B 与 B->A 并发时死锁
func (r *AccountRepository) LockByIDs(ctx context.Context, tx *gorm.DB, ids ...int64) (map[int64]*model.Account, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	locked := make(map[int64]*model.Account, len(unique))
	for _, id := range unique {
		var account model.Account
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&account).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrAccountNotFound
			}
			return nil, err
		}
		locked[id] = &account
	}
	return locked, nil
}

// ApplyDelta 在事务内修改余额，delta 为带符号金额
//
// 余额在行锁下读取，新余额在内存中计算；结果为负时返回 ErrNegativeBalance，不做任何修改。
// 写回时校验 version，防止绕过行锁的并发写。
func (r *AccountRepository) ApplyDelta(ctx context.Context, tx *gorm.DB, accountID int64, delta decimal.Decimal) (*model.Account, error) {
	locked, err := r.LockByIDs(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	account := locked[accountID]

	newBalance := account.Balance.Add(delta)
	if newBalance.IsNegative() {
		return nil, ErrNegativeBalance
	}

	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", accountID, account.Version).
		Updates(map[string]interface{}{
			"balance": newBalance,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrOptimisticLock
	}

	account.Balance = newBalance
	account.Version++
	return account, nil
}
