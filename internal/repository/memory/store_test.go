package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"ewallet/internal/model"
	"ewallet/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AccountNumbers(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first := &model.Account{CustomerID: "c-1"}
	require.NoError(t, store.Accounts().Create(ctx, first))
	assert.Equal(t, model.CustomerAccountStart, first.AccountNumber)

	house := &model.Account{AccountNumber: 1000, Role: model.RoleAdmin}
	require.NoError(t, store.Accounts().CreateIfAbsent(ctx, house))
	// 重复创建不报错也不覆盖
	require.NoError(t, store.Accounts().CreateIfAbsent(ctx, &model.Account{AccountNumber: 1000, Name: "other"}))

	got, err := store.Accounts().GetByAccountNumber(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, "", got.Name)

	second := &model.Account{CustomerID: "c-2"}
	require.NoError(t, store.Accounts().Create(ctx, second))
	assert.Equal(t, model.CustomerAccountStart+1, second.AccountNumber)

	_, err = store.Accounts().GetByAccountNumber(ctx, 77)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestStore_AdjustBalance(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	account := &model.Account{CustomerID: "c-1"}
	require.NoError(t, store.Accounts().Create(ctx, account))

	require.NoError(t, store.Accounts().AdjustBalance(ctx, account.AccountNumber, decimal.RequireFromString("10.005"), false))
	err := store.Accounts().AdjustBalance(ctx, account.AccountNumber, decimal.RequireFromString("-20"), false)
	assert.ErrorIs(t, err, repository.ErrBalanceNotEnough)
	require.NoError(t, store.Accounts().AdjustBalance(ctx, account.AccountNumber, decimal.RequireFromString("-20"), true))

	got, err := store.Accounts().GetByAccountNumber(ctx, account.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, "-9.99", got.Balance.StringFixed(2))

	err = store.Accounts().AdjustBalance(ctx, 4040, decimal.NewFromInt(1), true)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestStore_TransactionRollback(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	account := &model.Account{CustomerID: "c-1"}
	require.NoError(t, store.Accounts().Create(ctx, account))

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Accounts().AdjustBalance(ctx, account.AccountNumber, decimal.NewFromInt(50), true); err != nil {
			return err
		}
		requestID := "req-1"
		if err := tx.Transactions().Create(ctx, &model.Transaction{RequestID: &requestID, AccountNumber: account.AccountNumber, Amount: decimal.NewFromInt(50)}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Accounts().GetByAccountNumber(ctx, account.AccountNumber)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())

	trans, err := store.Transactions().GetByRequestID(ctx, "req-1")
	require.NoError(t, err)
	assert.Nil(t, trans)
}

func TestStore_TransactionCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	account := &model.Account{CustomerID: "c-1"}
	require.NoError(t, store.Accounts().Create(ctx, account))

	err := store.Transaction(ctx, func(tx repository.Store) error {
		return tx.Transaction(ctx, func(inner repository.Store) error {
			return inner.Accounts().AdjustBalance(ctx, account.AccountNumber, decimal.NewFromInt(5), false)
		})
	})
	require.NoError(t, err)

	got, err := store.Accounts().GetByAccountNumber(ctx, account.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, "5.00", got.Balance.StringFixed(2))
}

func TestStore_DuplicateRequestID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	requestID := "req-dup"

	require.NoError(t, store.Transactions().Create(ctx, &model.Transaction{RequestID: &requestID, AccountNumber: 1001}))
	err := store.Transactions().Create(ctx, &model.Transaction{RequestID: &requestID, AccountNumber: 1001})
	assert.ErrorIs(t, err, repository.ErrDuplicateRequest)
}

func TestStore_ListOrderAndFilter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for i, op := range []string{model.OperationDeposit, model.OperationFee, model.OperationTransfer, model.OperationFee} {
		require.NoError(t, store.Transactions().Create(ctx, &model.Transaction{
			TransactionNo: string(rune('a' + i)),
			Operation:     op,
			AccountNumber: 1001 + int64(i%2),
		}))
	}

	fees, err := store.Transactions().List(ctx, repository.TransactionFilter{Operation: model.OperationFee}, 1, 10)
	require.NoError(t, err)
	require.Len(t, fees, 2)
	assert.Equal(t, "d", fees[0].TransactionNo)
	assert.Equal(t, "b", fees[1].TransactionNo)

	number := int64(1001)
	own, err := store.Transactions().List(ctx, repository.TransactionFilter{AccountNumber: &number}, 1, 1)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "c", own[0].TransactionNo)

	empty, err := store.Transactions().List(ctx, repository.TransactionFilter{AccountNumber: &number}, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_Outbox(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	outbox := store.Outbox()

	for _, key := range []string{"k1", "k2"} {
		require.NoError(t, outbox.Create(ctx, &model.OutboxMessage{MessageKey: key, Topic: "t"}))
	}

	pending, err := outbox.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, outbox.MarkAsSent(ctx, pending[0].ID))

	failed, err := outbox.RecordFailure(ctx, pending[1], 1)
	require.NoError(t, err)
	assert.True(t, failed)

	// 过期的 retry_count 不再计数
	failed, err = outbox.RecordFailure(ctx, pending[1], 1)
	require.NoError(t, err)
	assert.False(t, failed)

	pending, err = outbox.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
