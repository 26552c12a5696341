package service

import (
	"context"
	"errors"
	"strings"

	"ewallet/internal/model"
	"ewallet/internal/repository"

	"github.com/shopspring/decimal"
)

// AccountService 开户与账户查询（客户资料管理不在此处）
type AccountService struct {
	store repository.Store
	house *HouseAccountResolver
}

func NewAccountService(store repository.Store, house *HouseAccountResolver) *AccountService {
	return &AccountService{
		store: store,
		house: house,
	}
}

type OpenAccountRequest struct {
	CustomerID string
	Name       string
	Email      string
}

// OpenAccount 客户注册时开户，初始余额为 0
func (s *AccountService) OpenAccount(ctx context.Context, req *OpenAccountRequest) (*model.Account, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, validationError("customer id is required")
	}

	account := &model.Account{
		CustomerID: req.CustomerID,
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Role:       model.RoleCustomer,
		Balance:    decimal.Zero,
	}
	if err := s.store.Accounts().Create(ctx, account); err != nil {
		return nil, consistencyError(err)
	}
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountNumber int64) (*model.Account, error) {
	account, err := s.store.Accounts().GetByAccountNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, consistencyError(err)
	}
	return account, nil
}

// GetHouseAccount 返回（必要时创建）手续费归集账户
func (s *AccountService) GetHouseAccount(ctx context.Context) (*model.Account, error) {
	return s.house.Resolve(ctx, s.store)
}
