package service

import (
	"context"
	"errors"
	"fmt"

	"ewallet/internal/model"
	"ewallet/internal/repository"

	"github.com/shopspring/decimal"
)

// HouseAccountResolver 手续费归集账户（master account）
// 首次使用时按固定账号创建；主键唯一保证并发下只有一条记录
type HouseAccountResolver struct {
	accountNumber int64
}

func NewHouseAccountResolver(accountNumber int64) *HouseAccountResolver {
	return &HouseAccountResolver{accountNumber: accountNumber}
}

func (r *HouseAccountResolver) AccountNumber() int64 {
	return r.accountNumber
}

func (r *HouseAccountResolver) IsHouse(accountNumber int64) bool {
	return accountNumber == r.accountNumber
}

// Resolve 幂等：存在则直接返回，不存在则创建后重新读取
func (r *HouseAccountResolver) Resolve(ctx context.Context, store repository.Store) (*model.Account, error) {
	accounts := store.Accounts()

	account, err := accounts.GetByAccountNumber(ctx, r.accountNumber)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}

	house := &model.Account{
		AccountNumber: r.accountNumber,
		CustomerID:    "system",
		Name:          "Master Account",
		Email:         "master_account@bank.com",
		Role:          model.RoleAdmin,
		Balance:       decimal.Zero,
	}
	if err := accounts.CreateIfAbsent(ctx, house); err != nil {
		return nil, fmt.Errorf("创建手续费账户失败: %w", err)
	}

	return accounts.GetByAccountNumber(ctx, r.accountNumber)
}
