package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountViews(t *testing.T) {
	account := &Account{
		AccountNumber: 1001,
		CustomerID:    "c-1",
		Name:          "Ada",
		Email:         "ada@example.com",
		Role:          RoleCustomer,
		Balance:       decimal.RequireFromString("12.5"),
	}

	data, err := json.Marshal(account.BalanceView())
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "12.50", got["balance"])
	assert.Equal(t, float64(1001), got["accountNumber"])
	assert.NotContains(t, got, "customer_id")

	data, err = json.Marshal(account.View())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "balance")
}

func TestTransactionReferences(t *testing.T) {
	assert.Equal(t, "deposit_gateway_transaction:gw-1", DepositReference("gw-1"))
	assert.Equal(t, "withdrawal_gateway_transaction:gw-2", WithdrawalReference("gw-2"))
	assert.Equal(t, "transfer_to_account:1002", TransferToReference(1002))
	assert.Equal(t, "transfer_from_account:1001", TransferFromReference(1001))
	assert.Equal(t, "fee_from_transaction:TXN1", FeeReference("TXN1"))
}

func TestNewLedgerOutbox(t *testing.T) {
	event := &LedgerEvent{
		Operation:  OperationTransfer,
		Balance:    "8962.00",
		HouseFee:   "38.00",
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	msg, err := NewLedgerOutbox("ledger.transaction.created", "TXN1", event)
	require.NoError(t, err)

	assert.Equal(t, "ledger.transfer", msg.EventType)
	assert.Equal(t, OutboxStatusPending, msg.Status)
	assert.Equal(t, "TXN1", msg.MessageKey)

	var decoded LedgerEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
	assert.Equal(t, "38.00", decoded.HouseFee)
}
