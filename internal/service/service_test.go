package service_test

import (
	"testing"

	"retailbank/internal/model"
	"retailbank/internal/service"
	"retailbank/internal/testutil"

	"gorm.io/gorm"
)

var (
	alice = service.Principal{UserID: 1, Email: "alice@example.com"}
	bob   = service.Principal{UserID: 2, Email: "bob@example.com"}
	staff = service.Principal{UserID: 99, Email: "ops@example.com", IsStaff: true}
)

// bank 两个客户各有支票和储蓄账户
type bank struct {
	db            *gorm.DB
	aliceChecking *model.Account
	aliceSavings  *model.Account
	bobChecking   *model.Account
	bobSavings    *model.Account
}

func newBank(t *testing.T, aliceChecking, aliceSavings string) *bank {
	t.Helper()
	return newBankOn(t, testutil.NewDB(t), aliceChecking, aliceSavings)
}

func newBankOn(t *testing.T, db *gorm.DB, aliceChecking, aliceSavings string) *bank {
	t.Helper()

	return &bank{
		db:            db,
		aliceChecking: testutil.CreateAccount(t, db, alice.UserID, model.AccountKindChecking, "1000000001", aliceChecking),
		aliceSavings:  testutil.CreateAccount(t, db, alice.UserID, model.AccountKindSavings, "1000000002", aliceSavings),
		bobChecking:   testutil.CreateAccount(t, db, bob.UserID, model.AccountKindChecking, "2000000001", "0"),
		bobSavings:    testutil.CreateAccount(t, db, bob.UserID, model.AccountKindSavings, "2000000002", "0"),
	}
}

func (b *bank) outboxCount(t *testing.T, event string) int64 {
	t.Helper()

	var n int64
	if err := b.db.Model(&model.OutboxMessage{}).Where("event_type = ?", event).Count(&n).Error; err != nil {
		t.Fatalf("统计 outbox 失败: %v", err)
	}
	return n
}
