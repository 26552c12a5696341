package repository

import (
	"context"
	"errors"

	"ewallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrDuplicateRequest = errors.New("重复请求")
)

// Store 账本持久化契约
// 业务层只依赖这组接口，MySQL 与内存两种实现都必须满足相同语义
type Store interface {
	Accounts() AccountStore
	Transactions() TransactionStore
	Gateway() GatewayStore
	Outbox() OutboxStore

	// Transaction 在一个原子单元内执行 fn，fn 返回错误时全部写入回滚
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type AccountStore interface {
	Create(ctx context.Context, account *model.Account) error
	// CreateIfAbsent 按主键插入，已存在时静默忽略
	CreateIfAbsent(ctx context.Context, account *model.Account) error
	GetByAccountNumber(ctx context.Context, accountNumber int64) (*model.Account, error)
	// LockForUpdate 按账号升序加行锁，避免死锁；不存在的账号不会出现在结果中
	LockForUpdate(ctx context.Context, accountNumbers ...int64) (map[int64]*model.Account, error)
	// AdjustBalance 原子增减余额（balance = balance + delta），不允许读-改-写
	AdjustBalance(ctx context.Context, accountNumber int64, delta decimal.Decimal, allowNegative bool) error
}

// TransactionFilter 流水查询条件，零值字段不参与过滤
type TransactionFilter struct {
	AccountNumber *int64
	Operation     string
}

type TransactionStore interface {
	Create(ctx context.Context, trans *model.Transaction) error
	GetByRequestID(ctx context.Context, requestID string) (*model.Transaction, error)
	List(ctx context.Context, filter TransactionFilter, page, perPage int) ([]*model.Transaction, error)
}

type GatewayStore interface {
	Create(ctx context.Context, gt *model.GatewayTransaction) error
	// GetAcceptedByRequestID 该幂等键下成功的扣款记录，没有时返回 nil, nil
	GetAcceptedByRequestID(ctx context.Context, requestID string) (*model.GatewayTransaction, error)
}

type OutboxStore interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkAsSent(ctx context.Context, id int64) error
	// RecordFailure 返回消息是否已被标记为最终失败
	RecordFailure(ctx context.Context, msg *model.OutboxMessage, maxRetry int) (bool, error)
}

// GormStore 基于 gorm 的实现，db 可以是连接池也可以是事务句柄
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Accounts() AccountStore {
	return NewAccountRepository(s.db)
}

func (s *GormStore) Transactions() TransactionStore {
	return NewTransactionRepository(s.db)
}

func (s *GormStore) Gateway() GatewayStore {
	return NewGatewayRepository(s.db)
}

func (s *GormStore) Outbox() OutboxStore {
	return NewOutboxRepository(s.db)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}

var _ Store = (*GormStore)(nil)
