package service

import (
	"context"
	"testing"

	"ewallet/internal/config"
	"ewallet/internal/infrastructure/lock"
	"ewallet/internal/model"
	"ewallet/internal/repository/memory"
	"ewallet/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	acceptCard  = "4111111111111111"
	declineCard = "4242424242424242"
)

type fixture struct {
	cfg      *config.Config
	store    *memory.Store
	house    *HouseAccountResolver
	ledger   *LedgerService
	accounts *AccountService
}

func newFixture(t *testing.T, opts ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = config.StorageDriverMemory
	for _, opt := range opts {
		opt(cfg)
	}
	return newFixtureWithProcessor(t, cfg, NewSimulatedProcessor(&cfg.Gateway))
}

func newFixtureWithProcessor(t *testing.T, cfg *config.Config, processor CardProcessor) *fixture {
	t.Helper()
	ids, err := idgen.NewSnowflake(1)
	require.NoError(t, err)

	store := memory.NewStore()
	house := NewHouseAccountResolver(cfg.Ledger.HouseAccountNumber)
	gateway := NewGatewayAdapter(processor, store.Gateway(), cfg.Gateway.Timeout)

	return &fixture{
		cfg:      cfg,
		store:    store,
		house:    house,
		ledger:   NewLedgerService(store, gateway, house, lock.NewLocalLocker(), ids, cfg),
		accounts: NewAccountService(store, house),
	}
}

// openAccount 开户并通过充值设置初始余额
func (f *fixture) openAccount(t *testing.T, balance string) int64 {
	t.Helper()
	account, err := f.accounts.OpenAccount(context.Background(), &OpenAccountRequest{
		CustomerID: uuid.NewString(),
		Name:       "Test Customer",
		Email:      "customer@example.com",
	})
	require.NoError(t, err)

	if balance != "" {
		_, err := f.ledger.Deposit(context.Background(), &DepositRequest{
			AccountNumber: account.AccountNumber,
			Card:          acceptCard,
			Amount:        decimal.RequireFromString(balance),
		})
		require.NoError(t, err)
	}
	return account.AccountNumber
}

func (f *fixture) balance(t *testing.T, accountNumber int64) string {
	t.Helper()
	view, err := f.ledger.GetBalance(context.Background(), accountNumber)
	require.NoError(t, err)
	return view.Balance
}

func (f *fixture) transactions(t *testing.T, accountNumber int64) []model.TransactionView {
	t.Helper()
	list, err := f.ledger.ListTransactions(context.Background(), &ListTransactionsRequest{
		AccountNumber: accountNumber,
		Page:          1,
		PerPage:       f.cfg.Business.MaxPerPage,
	})
	require.NoError(t, err)
	return list
}

func (f *fixture) gatewayRecords(status string) []model.GatewayTransaction {
	var out []model.GatewayTransaction
	for _, gt := range f.store.GatewayTransactions() {
		if status == "" || gt.Status == status {
			out = append(out, gt)
		}
	}
	return out
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sumAmounts(list []model.TransactionView) decimal.Decimal {
	total := decimal.Zero
	for _, trans := range list {
		total = total.Add(decimal.RequireFromString(trans.Amount))
	}
	return total
}
