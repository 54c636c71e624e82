package service_test

import (
	"context"
	"sync"
	"testing"

	"retailbank/internal/model"
	"retailbank/internal/service"
	"retailbank/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferToSavings(t *testing.T) {
	ctx := context.Background()
	b := newBank(t, "100.00", "0.00")
	svc := service.NewTransferService(b.db, testutil.NewConfig())

	result, err := svc.TransferToSavings(ctx, alice, testutil.D("50"))
	require.NoError(t, err)

	assert.Equal(t, "50.00", testutil.Balance(t, b.db, b.aliceChecking.ID))
	assert.Equal(t, "50.00", testutil.Balance(t, b.db, b.aliceSavings.ID))
	assert.Equal(t, model.TransferScopeOwn, result.Scope)
	require.Len(t, result.Legs, 2)
	assert.Equal(t, model.TransactionTypeWithdrawal, result.Legs[0].Type)
	assert.Equal(t, "Transfer to savings account", result.Legs[0].Description)
	assert.Equal(t, model.TransactionTypeDeposit, result.Legs[1].Type)
	assert.Equal(t, "Transfer from checking account", result.Legs[1].Description)
	for _, leg := range result.Legs {
		assert.Equal(t, model.TransactionStatusCompleted, leg.Status)
		assert.Equal(t, result.TransferRef, leg.TransferRef)
	}

	_, err = svc.TransferFromSavings(ctx, alice, testutil.D("20.25"))
	require.NoError(t, err)
	assert.Equal(t, "70.25", testutil.Balance(t, b.db, b.aliceChecking.ID))
	assert.Equal(t, "29.75", testutil.Balance(t, b.db, b.aliceSavings.ID))
}

func TestTransferToSavings_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		amount  string
		wantErr error
	}{
		{name: "zero", amount: "0", wantErr: service.ErrInvalidAmount},
		{name: "negative", amount: "-5", wantErr: service.ErrInvalidAmount},
		{name: "three decimals", amount: "1.005", wantErr: service.ErrInvalidAmount},
		{name: "more than balance", amount: "100.01", wantErr: service.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBank(t, "100.00", "0.00")
			svc := service.NewTransferService(b.db, testutil.NewConfig())

			_, err := svc.TransferToSavings(ctx, alice, testutil.D(tt.amount))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, "100.00", testutil.Balance(t, b.db, b.aliceChecking.ID))
			assert.Equal(t, "0.00", testutil.Balance(t, b.db, b.aliceSavings.ID))
		})
	}
}

func TestTransferToSavings_NoSavingsAccount(t *testing.T) {
	db := testutil.NewDB(t)
	checking := testutil.CreateAccount(t, db, alice.UserID, model.AccountKindChecking, "1000000001", "100")
	svc := service.NewTransferService(db, testutil.NewConfig())

	_, err := svc.TransferToSavings(context.Background(), alice, testutil.D("10"))
	assert.ErrorIs(t, err, service.ErrNoSuchAccount)
	assert.Equal(t, "100.00", testutil.Balance(t, db, checking.ID))
}

// SQLite 测试库只有一个连接，事务之间天然串行，FOR UPDATE 行锁在这里不生效。
// 本用例覆盖的是事务内的余额复查与乐观锁版本号，行锁需在 integration 标签的 PostgreSQL 用例中验证。
func TestTransferToSavings_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	b := newBank(t, "100.00", "0.00")
	svc := service.NewTransferService(b.db, testutil.NewConfig())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TransferToSavings(ctx, alice, testutil.D("30"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, service.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, "10.00", testutil.Balance(t, b.db, b.aliceChecking.ID))
	assert.Equal(t, "90.00", testutil.Balance(t, b.db, b.aliceSavings.ID))
}

func TestTransferBetweenOwnAccounts(t *testing.T) {
	ctx := context.Background()
	b := newBank(t, "100.00", "0.00")
	svc := service.NewTransferService(b.db, testutil.NewConfig())

	result, err := svc.TransferBetweenOwnAccounts(ctx, alice, &service.OwnTransferRequest{
		FromAccountNumber: "1000000001",
		ToAccountNumber:   "1000000002",
		Amount:            testutil.D("12.34"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Transfer to Savings", result.Legs[0].Description)
	assert.Equal(t, "Transfer from Checking", result.Legs[1].Description)
	assert.Equal(t, "87.66", testutil.Balance(t, b.db, b.aliceChecking.ID))
	assert.Equal(t, "12.34", testutil.Balance(t, b.db, b.aliceSavings.ID))

	_, err = svc.TransferBetweenOwnAccounts(ctx, alice, &service.OwnTransferRequest{
		FromAccountNumber: "1000000001",
		ToAccountNumber:   "1000000001",
		Amount:            testutil.D("1"),
	})
	assert.ErrorIs(t, err, service.ErrSameAccount)

	// 不能借道本人互转动用别人的账户
	_, err = svc.TransferBetweenOwnAccounts(ctx, alice, &service.OwnTransferRequest{
		FromAccountNumber: "1000000001",
		ToAccountNumber:   "2000000001",
		Amount:            testutil.D("1"),
	})
	assert.ErrorIs(t, err, service.ErrNoSuchAccount)
	assert.Equal(t, "0.00", testutil.Balance(t, b.db, b.bobChecking.ID))
}

func TestSendMoney_External(t *testing.T) {
	ctx := context.Background()
	b := newBank(t, "100.00", "0.00")
	svc := service.NewTransferService(b.db, testutil.NewConfig())

	result, err := svc.SendMoney(ctx, alice, &service.SendMoneyRequest{
		FromAccountNumber:      "1000000001",
		RecipientAccountNumber: "9999999999",
		Amount:                 testutil.D("25"),
		Description:            "rent",
	})
	require.NoError(t, err)

	assert.Equal(t, model.TransferScopeExternal, result.Scope)
	assert.Equal(t, model.TransactionStatusPending, result.Status)
	require.Len(t, result.Legs, 1)
	leg := result.Legs[0]
	assert.Equal(t, model.TransactionTypeWithdrawal, leg.Type)
	assert.Equal(t, "Pending external transfer from 1000000001 to 9999999999: rent", leg.Description)
	assert.Equal(t, model.TransactionStatusPending, testutil.Status(t, b.db, leg.ID))

	assert.Equal(t, "100.00", testutil.Balance(t, b.db, b.aliceChecking.ID))
}

func TestSendMoney_Internal(t *testing.T) {
	ctx := context.Background()
	b := newBank(t, "100.00", "0.00")
	svc := service.NewTransferService(b.db, testutil.NewConfig())

	result, err := svc.SendMoney(ctx, alice, &service.SendMoneyRequest{
		FromAccountNumber:      "1000000001",
		RecipientAccountNumber: "2000000001",
		Amount:                 testutil.D("40"),
		Description:            "dinner",
	})
	require.NoError(t, err)

	assert.Equal(t, model.TransferScopeInternal, result.Scope)
	require.Len(t, result.Legs, 2)
	withdrawal, deposit := result.Legs[0], result.Legs[1]
	assert.Equal(t, b.aliceChecking.ID, withdrawal.AccountID)
	assert.Equal(t, "Pending internal transfer from 1000000001 to 2000000001: dinner", withdrawal.Description)
	assert.Equal(t, b.bobChecking.ID, deposit.AccountID)
	assert.Equal(t, "Pending internal transfer to 2000000001 from 1000000001: dinner", deposit.Description)
	assert.Equal(t, withdrawal.TransferRef, deposit.TransferRef)

	assert.Equal(t, "100.00", testutil.Balance(t, b.db, b.aliceChecking.ID))
	assert.Equal(t, "0.00", testutil.Balance(t, b.db, b.bobChecking.ID))
}

func TestSendMoney_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		from    string
		to      string
		amount  string
		wantErr error
	}{
		{name: "same account", from: "1000000001", to: "1000000001", amount: "1", wantErr: service.ErrSameAccount},
		{name: "not owner", from: "2000000001", to: "1000000001", amount: "1", wantErr: service.ErrNoSuchAccount},
		{name: "unknown sender", from: "5555555555", to: "1000000001", amount: "1", wantErr: service.ErrNoSuchAccount},
		{name: "over balance", from: "1000000001", to: "2000000001", amount: "100.01", wantErr: service.ErrInsufficientFunds},
		{name: "zero", from: "1000000001", to: "2000000001", amount: "0", wantErr: service.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBank(t, "100.00", "0.00")
			svc := service.NewTransferService(b.db, testutil.NewConfig())

			_, err := svc.SendMoney(ctx, alice, &service.SendMoneyRequest{
				FromAccountNumber:      tt.from,
				RecipientAccountNumber: tt.to,
				Amount:                 testutil.D(tt.amount),
			})
			assert.ErrorIs(t, err, tt.wantErr)

			var n int64
			require.NoError(t, b.db.Model(&model.Transaction{}).Count(&n).Error)
			assert.Zero(t, n)
		})
	}
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	b := newBank(t, "100.00", "0.00")
	svc := service.NewTransferService(b.db, testutil.NewConfig())

	result, err := svc.Deposit(ctx, alice, model.AccountKindChecking, testutil.D("0.01"))
	require.NoError(t, err)
	assert.Equal(t, "100.01", result.Balance.StringFixed(2))
	assert.Equal(t, "Deposit to checking account", result.Transaction.Description)

	_, err = svc.Deposit(ctx, alice, "BROKERAGE", testutil.D("1"))
	assert.ErrorIs(t, err, service.ErrNoSuchAccount)
}

func TestPayCardNow(t *testing.T) {
	ctx := context.Background()
	b := newBank(t, "300.00", "0.00")
	card := testutil.CreateCard(t, b.db, alice.UserID, "4111111111114321", "1000", "250")
	svc := service.NewTransferService(b.db, testutil.NewConfig())

	result, err := svc.PayCardNow(ctx, alice, card.ID, &service.CardPaymentRequest{
		SourceKind: model.AccountKindChecking,
		Amount:     testutil.D("200"),
	})
	require.NoError(t, err)
	assert.Equal(t, "100.00", result.Balance.StringFixed(2))
	assert.Equal(t, model.TransactionTypePayment, result.Transaction.Type)
	assert.Equal(t, "Credit card payment for card ending in 4321", result.Transaction.Description)
	require.NotNil(t, result.Transaction.CreditCardID)
	assert.Equal(t, card.ID, *result.Transaction.CreditCardID)

	var reloaded model.CreditCard
	require.NoError(t, b.db.First(&reloaded, card.ID).Error)
	assert.Equal(t, "50.00", reloaded.CurrentBalance.StringFixed(2))
	assert.Equal(t, "950.00", reloaded.AvailableCredit.StringFixed(2))
	assert.EqualValues(t, 1, b.outboxCount(t, model.EventCardPaymentCompleted))

	tests := []struct {
		name    string
		p       service.Principal
		amount  decimal.Decimal
		wantErr error
	}{
		{name: "more than owed", p: alice, amount: testutil.D("50.01"), wantErr: service.ErrInvalidAmount},
		{name: "insufficient funds", p: alice, amount: testutil.D("50"), wantErr: service.ErrInsufficientFunds},
		{name: "someone else's card", p: bob, amount: testutil.D("1"), wantErr: service.ErrCreditCardNotFound},
	}
	// 先把余额降到 20
	_, err = svc.TransferToSavings(ctx, alice, testutil.D("80"))
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PayCardNow(ctx, tt.p, card.ID, &service.CardPaymentRequest{
				SourceKind: model.AccountKindChecking,
				Amount:     tt.amount,
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, "20.00", testutil.Balance(t, b.db, b.aliceChecking.ID))
		})
	}
}
