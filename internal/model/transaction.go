package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	OperationDeposit    = "deposit"    // 充值（银行卡入账）
	OperationWithdrawal = "withdrawal" // 提现（出账到银行卡）
	OperationTransfer   = "transfer"   // 账户间转账
	OperationFee        = "fee"        // 转账手续费
)

// ============================================================================
// 账本流水实体
// ============================================================================

// Transaction 账本流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除
// 2. 金额带符号：正数入账，负数出账
// 3. 每条流水对应其所属账户的一次余额变动
type Transaction struct {
	ID                       int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo            string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	RequestID                *string         `gorm:"type:varchar(64);uniqueIndex" json:"request_id,omitempty"`    // 幂等键，只写在主流水上
	Operation                string          `gorm:"type:varchar(20);index;not null" json:"operation"`
	AccountNumber            int64           `gorm:"index;not null" json:"account_number"`
	DestinationAccountNumber *int64          `json:"destination_account_number,omitempty"`
	Amount                   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Reference                string          `gorm:"type:varchar(256)" json:"reference"`
	CreatedAt                time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "ledger_transaction"
}

func (t *Transaction) View() TransactionView {
	return TransactionView{
		ID:                       t.TransactionNo,
		AccountNumber:            t.AccountNumber,
		DestinationAccountNumber: t.DestinationAccountNumber,
		Operation:                t.Operation,
		Amount:                   t.Amount.StringFixed(2),
		Reference:                t.Reference,
		CreatedAt:                t.CreatedAt,
	}
}

func DepositReference(gatewayTransactionID string) string {
	return "deposit_gateway_transaction:" + gatewayTransactionID
}

func WithdrawalReference(gatewayTransactionID string) string {
	return "withdrawal_gateway_transaction:" + gatewayTransactionID
}

func TransferToReference(destination int64) string {
	return "transfer_to_account:" + strconv.FormatInt(destination, 10)
}

func TransferFromReference(source int64) string {
	return "transfer_from_account:" + strconv.FormatInt(source, 10)
}

func FeeReference(transactionNo string) string {
	return "fee_from_transaction:" + transactionNo
}
