package model

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestTransactionTransitions(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{TransactionStatusPending, TransactionStatusCompleted, true},
		{TransactionStatusPending, TransactionStatusRejected, true},
		{TransactionStatusPending, TransactionStatusCancelled, true},
		{TransactionStatusCompleted, TransactionStatusPending, false},
		{TransactionStatusRejected, TransactionStatusCompleted, false},
		{TransactionStatusCancelled, TransactionStatusRejected, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransactionTransitionTo(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, IsClosedWithoutSettlement(TransactionStatusRejected))
	assert.True(t, IsClosedWithoutSettlement(TransactionStatusCancelled))
	assert.False(t, IsClosedWithoutSettlement(TransactionStatusCompleted))
}

func TestScheduledPaymentTransitions(t *testing.T) {
	assert.True(t, CanScheduledPaymentTransitionTo(ScheduledPaymentStatusPending, ScheduledPaymentStatusFailed))
	assert.False(t, CanScheduledPaymentTransitionTo(ScheduledPaymentStatusFailed, ScheduledPaymentStatusCompleted))
	assert.False(t, CanScheduledPaymentTransitionTo(ScheduledPaymentStatusCompleted, ScheduledPaymentStatusCancelled))
}

func TestCreditCard(t *testing.T) {
	card := &CreditCard{
		CardNumber:     "4000 0000 0000 9876",
		CreditLimit:    decimal.RequireFromString("1000"),
		CurrentBalance: decimal.RequireFromString("250.25"),
	}
	card.RecomputeAvailableCredit()
	assert.Equal(t, "749.75", card.AvailableCredit.StringFixed(2))
	assert.Equal(t, "9876", card.LastFour())

	assert.True(t, ValidAccountKind(AccountKindSavings))
	assert.False(t, ValidAccountKind("CREDIT"))
}

func TestForeignKeysCascade(t *testing.T) {
	tests := []struct {
		model    interface{}
		relation string
	}{
		{&Transaction{}, "Account"},
		{&Transaction{}, "CreditCard"},
		{&ScheduledPayment{}, "CreditCard"},
		{&ScheduledPayment{}, "SourceAccount"},
	}
	for _, tt := range tests {
		s, err := schema.Parse(tt.model, &sync.Map{}, schema.NamingStrategy{})
		require.NoError(t, err)

		rel, ok := s.Relationships.Relations[tt.relation]
		require.True(t, ok, "%s.%s", s.Name, tt.relation)
		constraint := rel.ParseConstraint()
		require.NotNil(t, constraint, "%s.%s", s.Name, tt.relation)
		assert.Equal(t, "CASCADE", constraint.OnDelete, "%s.%s", s.Name, tt.relation)
	}
}
