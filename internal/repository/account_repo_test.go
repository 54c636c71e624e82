package repository_test

import (
	"context"
	"testing"

	"retailbank/internal/model"
	"retailbank/internal/repository"
	"retailbank/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAccountRepository_ApplyDelta(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		start       string
		delta       string
		wantErr     error
		wantBalance string
	}{
		{name: "credit", start: "100.00", delta: "25.50", wantBalance: "125.50"},
		{name: "debit to zero", start: "100.00", delta: "-100.00", wantBalance: "0.00"},
		{name: "debit below zero", start: "100.00", delta: "-100.01", wantErr: repository.ErrNegativeBalance, wantBalance: "100.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewDB(t)
			repo := repository.NewAccountRepository(db)
			account := testutil.CreateAccount(t, db, 1, model.AccountKindChecking, "1000000001", tt.start)

			err := db.Transaction(func(tx *gorm.DB) error {
				updated, err := repo.ApplyDelta(ctx, tx, account.ID, testutil.D(tt.delta))
				if err != nil {
					return err
				}
				assert.Equal(t, tt.wantBalance, updated.Balance.StringFixed(2))
				assert.Equal(t, account.Version+1, updated.Version)
				return nil
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantBalance, testutil.Balance(t, db, account.ID))
		})
	}
}

func TestAccountRepository_ApplyDeltaUnknownAccount(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewAccountRepository(db)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := repo.ApplyDelta(context.Background(), tx, 999, testutil.D("1"))
		return err
	})
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestAccountRepository_OptionalLookups(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.NewAccountRepository(db)
	testutil.CreateAccount(t, db, 7, model.AccountKindChecking, "1234567890", "10")

	account, found, err := repo.FindByAccountNumber(ctx, "1234567890")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(7), account.OwnerID)

	_, found, err = repo.FindByAccountNumber(ctx, "9999999999")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = repo.FindByOwnerAndKind(ctx, 7, model.AccountKindSavings)
	require.NoError(t, err)
	assert.False(t, found)

	balance, err := repo.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", balance.StringFixed(2))
}

func TestAccountRepository_OneAccountPerKind(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.NewAccountRepository(db)

	require.NoError(t, repo.Create(ctx, &model.Account{OwnerID: 1, Kind: model.AccountKindSavings, AccountNumber: "2000000001"}))
	err := repo.Create(ctx, &model.Account{OwnerID: 1, Kind: model.AccountKindSavings, AccountNumber: "2000000002"})
	assert.ErrorIs(t, err, repository.ErrDuplicateAccount)
}

func TestAccountRepository_LockByIDs(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewAccountRepository(db)
	a := testutil.CreateAccount(t, db, 1, model.AccountKindChecking, "1000000001", "1")
	b := testutil.CreateAccount(t, db, 1, model.AccountKindSavings, "1000000002", "2")

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := repo.LockByIDs(context.Background(), tx, b.ID, a.ID, b.ID)
		require.NoError(t, err)
		assert.Len(t, locked, 2)
		assert.Equal(t, "2.00", locked[b.ID].Balance.StringFixed(2))

		_, err = repo.LockByIDs(context.Background(), tx, a.ID, 12345)
		assert.ErrorIs(t, err, repository.ErrAccountNotFound)
		return nil
	})
	require.NoError(t, err)
}
