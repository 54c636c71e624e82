// Package testutil 测试公用的数据库 / Redis / 配置与数据构造
package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"retailbank/internal/config"
	"retailbank/internal/infrastructure/database"
	"retailbank/internal/infrastructure/lock"
	"retailbank/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 独立的内存 SQLite 库
//
// 只开一个连接：事务串行执行，事务内的查询必须走 tx
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// NewRedis miniredis 客户端
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func NewLocker(t *testing.T) lock.Locker {
	t.Helper()

	_, client := NewRedis(t)
	return lock.NewRedisLocker(client, 10*time.Second, 5*time.Millisecond, 400)
}

func NewConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				Settlement:       "bank.settlement",
				ScheduledPayment: "bank.scheduled_payment",
			},
		},
		JWT: config.JWTConfig{Secret: "test-secret"},
		Business: config.BusinessConfig{
			MaxRetryCount:          3,
			TransactionPageSizeMax: 50,
		},
	}
}

func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func CreateAccount(t *testing.T, db *gorm.DB, ownerID int64, kind, number, balance string) *model.Account {
	t.Helper()

	account := &model.Account{
		OwnerID:       ownerID,
		Kind:          kind,
		AccountNumber: number,
		Balance:       D(balance),
		IsPrimary:     kind == model.AccountKindChecking,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func CreateCard(t *testing.T, db *gorm.DB, ownerID int64, number, limit, owed string) *model.CreditCard {
	t.Helper()

	card := &model.CreditCard{
		OwnerID:        ownerID,
		CardNumber:     number,
		ExpirationDate: time.Now().AddDate(3, 0, 0),
		CreditLimit:    D(limit),
		CurrentBalance: D(owed),
		APR:            D("19.99"),
		Status:         model.CardStatusActive,
	}
	require.NoError(t, db.Create(card).Error)
	return card
}

func Balance(t *testing.T, db *gorm.DB, accountID int64) string {
	t.Helper()

	var account model.Account
	require.NoError(t, db.First(&account, accountID).Error)
	return account.Balance.StringFixed(2)
}

func Status(t *testing.T, db *gorm.DB, transactionID int64) string {
	t.Helper()

	var trans model.Transaction
	require.NoError(t, db.First(&trans, transactionID).Error)
	return trans.Status
}

// Mail 记录发送的邮件
type Mail struct {
	To, Subject, Body string
}

type FakeNotifier struct {
	mu   sync.Mutex
	Sent []Mail
	Err  error
}

func (f *FakeNotifier) Send(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, Mail{To: to, Subject: subject, Body: body})
	return f.Err
}
