package model

import "time"

// AccountView 账户公开字段
type AccountView struct {
	AccountNumber int64     `json:"accountNumber"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
}

// BalanceView 账户公开字段 + 余额
type BalanceView struct {
	AccountView
	Balance string `json:"balance"`
}

// TransactionView 流水公开字段
type TransactionView struct {
	ID                       string    `json:"id"`
	AccountNumber            int64     `json:"accountNumber"`
	DestinationAccountNumber *int64    `json:"destinationAccountNumber,omitempty"`
	Operation                string    `json:"operation"`
	Amount                   string    `json:"amount"`
	Reference                string    `json:"reference"`
	CreatedAt                time.Time `json:"createdAt"`
}

// OperationResult 充值/提现/转账的返回结构
type OperationResult struct {
	Transaction TransactionView `json:"transaction"`
	Customer    BalanceView     `json:"customer"`
}
