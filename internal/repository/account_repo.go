package repository

import (
	"context"
	"errors"
	"sort"

	"ewallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create 账号由数据库自增分配（表初始 AUTO_INCREMENT 为 1001）
func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) CreateIfAbsent(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_number"}},
			DoNothing: true,
		}).
		Create(account).Error
}

func (r *AccountRepository) GetByAccountNumber(ctx context.Context, accountNumber int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("account_number = ?", accountNumber).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) LockForUpdate(ctx context.Context, accountNumbers ...int64) (map[int64]*model.Account, error) {
	ids := uniqueSorted(accountNumbers)

	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_number IN ?", ids).
		Order("account_number ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}

	result := make(map[int64]*model.Account, len(accounts))
	for _, account := range accounts {
		result[account.AccountNumber] = account
	}
	return result, nil
}

func (r *AccountRepository) AdjustBalance(ctx context.Context, accountNumber int64, delta decimal.Decimal, allowNegative bool) error {
	delta = delta.Round(2)
	if delta.IsZero() {
		// MySQL 对未改变的行返回 RowsAffected=0，这里只确认账户存在
		_, err := r.GetByAccountNumber(ctx, accountNumber)
		return err
	}

	query := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("account_number = ?", accountNumber)
	if !allowNegative && delta.IsNegative() {
		// 扣减与余额校验在同一条 UPDATE 中完成
		query = query.Where("balance + ? >= 0", delta)
	}

	result := query.Update("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByAccountNumber(ctx, accountNumber); err != nil {
			return err
		}
		return ErrBalanceNotEnough
	}

	return nil
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
