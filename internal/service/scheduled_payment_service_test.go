package service_test

import (
	"context"
	"testing"
	"time"

	"retailbank/internal/model"
	"retailbank/internal/service"
	"retailbank/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scheduledFixture struct {
	*bank
	card     *model.CreditCard
	notifier *testutil.FakeNotifier
	svc      *service.ScheduledPaymentService
}

func newScheduledFixture(t *testing.T, checking, owed string) *scheduledFixture {
	t.Helper()

	b := newBank(t, checking, "0.00")
	notifier := &testutil.FakeNotifier{}
	return &scheduledFixture{
		bank:     b,
		card:     testutil.CreateCard(t, b.db, alice.UserID, "4111111111111234", "1000", owed),
		notifier: notifier,
		svc:      service.NewScheduledPaymentService(b.db, testutil.NewLocker(t), notifier, testutil.NewConfig()),
	}
}

func (f *scheduledFixture) schedule(t *testing.T, amount string) *model.ScheduledPayment {
	t.Helper()

	payment, err := f.svc.Schedule(context.Background(), alice, &service.ScheduleRequest{
		CreditCardID:  f.card.ID,
		SourceKind:    model.AccountKindChecking,
		Amount:        testutil.D(amount),
		ScheduledDate: time.Now().AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	return payment
}

func (f *scheduledFixture) reloadCard(t *testing.T) *model.CreditCard {
	t.Helper()

	var card model.CreditCard
	require.NoError(t, f.db.First(&card, f.card.ID).Error)
	return &card
}

func TestScheduledPayment_ExecuteSuccess(t *testing.T) {
	ctx := context.Background()
	f := newScheduledFixture(t, "500.00", "300.00")
	payment := f.schedule(t, "120")
	assert.Equal(t, model.ScheduledPaymentStatusPending, payment.Status)

	executed, err := f.svc.Execute(ctx, alice, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduledPaymentStatusCompleted, executed.Status)
	assert.NotNil(t, executed.ExecutedAt)

	assert.Equal(t, "380.00", testutil.Balance(t, f.db, f.aliceChecking.ID))
	card := f.reloadCard(t)
	assert.Equal(t, "180.00", card.CurrentBalance.StringFixed(2))
	assert.Equal(t, "820.00", card.AvailableCredit.StringFixed(2))

	var legs []model.Transaction
	require.NoError(t, f.db.Where("type = ?", model.TransactionTypePayment).Find(&legs).Error)
	require.Len(t, legs, 1)
	assert.Equal(t, "Scheduled credit card payment for card ending in 1234", legs[0].Description)
	assert.Equal(t, model.TransactionStatusCompleted, legs[0].Status)

	assert.EqualValues(t, 1, f.outboxCount(t, model.EventScheduledPaymentCompleted))
	assert.Empty(t, f.notifier.Sent)

	_, err = f.svc.Execute(ctx, alice, payment.ID)
	assert.ErrorIs(t, err, service.ErrNotPending)
	assert.Equal(t, "380.00", testutil.Balance(t, f.db, f.aliceChecking.ID))
}

func TestScheduledPayment_ExecuteInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newScheduledFixture(t, "10.00", "300.00")
	payment := f.schedule(t, "100")

	failed, err := f.svc.Execute(ctx, alice, payment.ID)
	assert.ErrorIs(t, err, service.ErrInsufficientFunds)
	require.NotNil(t, failed)
	assert.Equal(t, model.ScheduledPaymentStatusFailed, failed.Status)

	var stored model.ScheduledPayment
	require.NoError(t, f.db.First(&stored, payment.ID).Error)
	assert.Equal(t, model.ScheduledPaymentStatusFailed, stored.Status)

	assert.Equal(t, "10.00", testutil.Balance(t, f.db, f.aliceChecking.ID))
	assert.Equal(t, "300.00", f.reloadCard(t).CurrentBalance.StringFixed(2))
	assert.EqualValues(t, 1, f.outboxCount(t, model.EventScheduledPaymentFailed))

	require.Len(t, f.notifier.Sent, 1)
	assert.Equal(t, alice.Email, f.notifier.Sent[0].To)
	assert.Contains(t, f.notifier.Sent[0].Body, "1234")

	_, err = f.svc.Execute(ctx, alice, payment.ID)
	assert.ErrorIs(t, err, service.ErrNotPending)
}

func TestScheduledPayment_ExecuteAfterCardPaidDown(t *testing.T) {
	ctx := context.Background()
	f := newScheduledFixture(t, "500.00", "100.00")
	payment := f.schedule(t, "80")

	transfers := service.NewTransferService(f.db, testutil.NewConfig())
	_, err := transfers.PayCardNow(ctx, alice, f.card.ID, &service.CardPaymentRequest{
		SourceKind: model.AccountKindChecking,
		Amount:     testutil.D("50"),
	})
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, alice, payment.ID)
	assert.ErrorIs(t, err, service.ErrInvalidAmount)

	var stored model.ScheduledPayment
	require.NoError(t, f.db.First(&stored, payment.ID).Error)
	assert.Equal(t, model.ScheduledPaymentStatusPending, stored.Status)
	assert.Equal(t, "450.00", testutil.Balance(t, f.db, f.aliceChecking.ID))
}

func TestScheduledPayment_Schedule(t *testing.T) {
	ctx := context.Background()
	f := newScheduledFixture(t, "0.00", "300.00")

	// 预约时不校验余额
	f.schedule(t, "300")

	tests := []struct {
		name    string
		p       service.Principal
		req     service.ScheduleRequest
		wantErr error
	}{
		{
			name:    "more than owed",
			p:       alice,
			req:     service.ScheduleRequest{CreditCardID: f.card.ID, SourceKind: model.AccountKindChecking, Amount: testutil.D("300.01")},
			wantErr: service.ErrInvalidAmount,
		},
		{
			name:    "not owner",
			p:       bob,
			req:     service.ScheduleRequest{CreditCardID: f.card.ID, SourceKind: model.AccountKindChecking, Amount: testutil.D("1")},
			wantErr: service.ErrCreditCardNotFound,
		},
		{
			name:    "unknown card",
			p:       alice,
			req:     service.ScheduleRequest{CreditCardID: 999, SourceKind: model.AccountKindChecking, Amount: testutil.D("1")},
			wantErr: service.ErrCreditCardNotFound,
		},
		{
			name:    "zero amount",
			p:       alice,
			req:     service.ScheduleRequest{CreditCardID: f.card.ID, SourceKind: model.AccountKindSavings, Amount: testutil.D("0")},
			wantErr: service.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.ScheduledDate = time.Now()
			_, err := f.svc.Schedule(ctx, tt.p, &tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScheduledPayment_CancelAndList(t *testing.T) {
	ctx := context.Background()
	f := newScheduledFixture(t, "500.00", "300.00")
	first := f.schedule(t, "10")
	second := f.schedule(t, "20")

	_, err := f.svc.Cancel(ctx, bob, first.ID)
	assert.ErrorIs(t, err, service.ErrScheduledPaymentNotFound)

	cancelled, err := f.svc.Cancel(ctx, alice, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduledPaymentStatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, alice, first.ID)
	assert.ErrorIs(t, err, service.ErrNotPending)
	_, err = f.svc.Execute(ctx, alice, first.ID)
	assert.ErrorIs(t, err, service.ErrNotPending)

	list, err := f.svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	others, err := f.svc.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, others)
}
