package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	GatewayStatusSuccess = "success"
	GatewayStatusFailure = "failure"

	GatewayReasonDeclined = "declined"
	GatewayReasonTimeout  = "timeout"
)

// GatewayTransaction 网关调用审计表
// 每次调用都会落库，无论成功还是失败
type GatewayTransaction struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"-"`
	TransactionID     string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_id"`
	RequestID         *string         `gorm:"type:varchar(64);index" json:"request_id,omitempty"` // 同一幂等键的扣款只会成功一次
	AccountNumber     int64           `gorm:"index;not null" json:"account_number"`
	Operation         string          `gorm:"type:varchar(20);not null" json:"operation"`
	CardLast4         string          `gorm:"type:varchar(4)" json:"card_last4"`
	Status            string          `gorm:"type:varchar(16);index;not null" json:"status"`
	FailureReason     string          `gorm:"type:varchar(32)" json:"failure_reason,omitempty"`
	PaymentDate       time.Time       `gorm:"not null" json:"payment_date"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	AuthorizationCode int64           `gorm:"not null" json:"authorization_code"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (GatewayTransaction) TableName() string {
	return "gateway_transaction"
}

func (g *GatewayTransaction) Accepted() bool {
	return g.Status == GatewayStatusSuccess
}
