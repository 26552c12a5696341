package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// CustomerAccountStart 客户账号从 1001 开始单调分配，1001 以下留给系统账户
const CustomerAccountStart int64 = 1001

// Account 钱包账户表
// 余额必须等于该账号下所有流水金额之和（手续费归集账户除外，它只接收手续费入账）
type Account struct {
	AccountNumber int64           `gorm:"primaryKey;autoIncrement" json:"account_number"`
	CustomerID    string          `gorm:"type:varchar(64);index;not null" json:"customer_id"` // 外部客户ID
	Name          string          `gorm:"type:varchar(128)" json:"name"`
	Email         string          `gorm:"type:varchar(255)" json:"email"`
	Role          string          `gorm:"type:varchar(16);not null;default:customer" json:"role"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"` // 定点数，禁止使用浮点
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// View 不带余额的公开视图
func (a *Account) View() AccountView {
	return AccountView{
		AccountNumber: a.AccountNumber,
		Name:          a.Name,
		Email:         a.Email,
		Role:          a.Role,
		CreatedAt:     a.CreatedAt,
	}
}

// BalanceView 带余额的公开视图
func (a *Account) BalanceView() BalanceView {
	return BalanceView{
		AccountView: a.View(),
		Balance:     a.Balance.StringFixed(2),
	}
}
