package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ewallet/internal/infrastructure/lock"
	"ewallet/internal/model"
	"ewallet/internal/repository"
	"ewallet/internal/repository/memory"
	"ewallet/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// approveThenCancel 应答成功的同时取消调用方的请求
type approveThenCancel struct {
	cancel context.CancelFunc
	calls  int
}

func (p *approveThenCancel) Process(_ context.Context, _ string, _ decimal.Decimal) (*ProcessorResponse, error) {
	p.calls++
	p.cancel()
	return &ProcessorResponse{
		TransactionID:     uuid.NewString(),
		Approved:          true,
		AuthorizationCode: 123456,
		PaymentDate:       time.Now(),
	}, nil
}

// failingCommitStore 让接下来 failures 次事务失败
type failingCommitStore struct {
	*memory.Store
	failures int
}

func (s *failingCommitStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("deadlock found when trying to get lock")
	}
	return s.Store.Transaction(ctx, fn)
}

// withFailingCommits 在原有内存存储外包一层，网关仍然写入同一个存储
func (f *fixture) withFailingCommits(t *testing.T, failures int) {
	t.Helper()
	ids, err := idgen.NewSnowflake(2)
	require.NoError(t, err)

	store := &failingCommitStore{Store: f.store, failures: failures}
	gateway := NewGatewayAdapter(NewSimulatedProcessor(&f.cfg.Gateway), f.store.Gateway(), f.cfg.Gateway.Timeout)
	f.ledger = NewLedgerService(store, gateway, f.house, lock.NewLocalLocker(), ids, f.cfg)
}

func TestDeposit_CancelledAfterApprovalStillCredits(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	processor := &approveThenCancel{cancel: cancel}
	gateway := NewGatewayAdapter(processor, f.store.Gateway(), 0)
	ids, err := idgen.NewSnowflake(3)
	require.NoError(t, err)
	ledger := NewLedgerService(f.store, gateway, f.house, lock.NewLocalLocker(), ids, f.cfg)

	req := &DepositRequest{RequestID: "key-1", AccountNumber: account, Card: acceptCard, Amount: amount("100")}
	first, err := ledger.Deposit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "100.00", first.Customer.Balance)

	second, err := ledger.Deposit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	assert.Equal(t, 1, processor.calls)
	assert.Equal(t, "100.00", f.balance(t, account))
	assert.Len(t, f.gatewayRecords(model.GatewayStatusSuccess), 1)
	assert.Len(t, f.transactions(t, account), 1)
}

func TestDeposit_RetryReusesAcceptedCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.openAccount(t, "")
	f.withFailingCommits(t, 1)

	req := &DepositRequest{RequestID: "key-1", AccountNumber: account, Card: acceptCard, Amount: amount("100")}
	_, err := f.ledger.Deposit(ctx, req)
	require.Error(t, err)
	assert.Equal(t, KindLedgerConsistency, KindOf(err))
	assert.Equal(t, "0.00", f.balance(t, account))
	require.Len(t, f.gatewayRecords(model.GatewayStatusSuccess), 1)

	result, err := f.ledger.Deposit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "100.00", result.Customer.Balance)

	charges := f.gatewayRecords(model.GatewayStatusSuccess)
	require.Len(t, charges, 1, "重试不再扣卡")
	assert.Equal(t, model.DepositReference(charges[0].TransactionID), result.Transaction.Reference)
	assert.Len(t, f.transactions(t, account), 1)
}

func TestWithdrawal_RetryReusesAcceptedPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.openAccount(t, "500")
	f.withFailingCommits(t, 1)

	req := &WithdrawalRequest{RequestID: "key-2", AccountNumber: account, Card: acceptCard, Amount: amount("200")}
	_, err := f.ledger.Withdrawal(ctx, req)
	require.Error(t, err)
	assert.Equal(t, KindLedgerConsistency, KindOf(err))
	assert.Equal(t, "500.00", f.balance(t, account))

	result, err := f.ledger.Withdrawal(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "300.00", result.Customer.Balance)

	payouts := 0
	for _, gt := range f.gatewayRecords(model.GatewayStatusSuccess) {
		if gt.Operation == model.OperationWithdrawal {
			payouts++
		}
	}
	assert.Equal(t, 1, payouts)
}

func TestRetryWithDifferentAmountIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.openAccount(t, "")
	f.withFailingCommits(t, 1)

	_, err := f.ledger.Deposit(ctx, &DepositRequest{RequestID: "key-3", AccountNumber: account, Card: acceptCard, Amount: amount("100")})
	require.Error(t, err)

	_, err = f.ledger.Deposit(ctx, &DepositRequest{RequestID: "key-3", AccountNumber: account, Card: acceptCard, Amount: amount("90")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Len(t, f.gatewayRecords(model.GatewayStatusSuccess), 1)
	assert.Equal(t, "0.00", f.balance(t, account))
}
