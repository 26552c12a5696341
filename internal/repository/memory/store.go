package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ewallet/internal/model"
	"ewallet/internal/repository"

	"github.com/shopspring/decimal"
)

// Store 进程内存实现，用于本地运行和测试
//
// 所有操作串行执行；Transaction 在状态副本上执行 fn，成功才替换，
// 失败时副本直接丢弃，等价于数据库回滚。
type Store struct {
	mu    *sync.Mutex
	state *state
	inTx  bool
	now   func() time.Time
}

type state struct {
	accounts          map[int64]*model.Account
	nextAccountNumber int64
	transactions      []*model.Transaction
	requestIndex      map[string]int
	gateway           []*model.GatewayTransaction
	outbox            []*model.OutboxMessage
	nextID            int64
}

func NewStore() *Store {
	return &Store{
		mu: &sync.Mutex{},
		state: &state{
			accounts:          make(map[int64]*model.Account),
			nextAccountNumber: model.CustomerAccountStart,
			requestIndex:      make(map[string]int),
		},
		now: time.Now,
	}
}

func (s *Store) Accounts() repository.AccountStore         { return accountStore{s} }
func (s *Store) Transactions() repository.TransactionStore { return transactionStore{s} }
func (s *Store) Gateway() repository.GatewayStore          { return gatewayStore{s} }
func (s *Store) Outbox() repository.OutboxStore            { return outboxStore{s} }

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, state: s.state.clone(), inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// run 在锁内执行操作；事务内已持有锁
func (s *Store) run(fn func(st *state) error) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.state)
}

func (st *state) clone() *state {
	c := &state{
		accounts:          make(map[int64]*model.Account, len(st.accounts)),
		nextAccountNumber: st.nextAccountNumber,
		transactions:      append([]*model.Transaction(nil), st.transactions...),
		requestIndex:      make(map[string]int, len(st.requestIndex)),
		gateway:           append([]*model.GatewayTransaction(nil), st.gateway...),
		outbox:            make([]*model.OutboxMessage, len(st.outbox)),
		nextID:            st.nextID,
	}
	for k, v := range st.accounts {
		account := *v
		c.accounts[k] = &account
	}
	for k, v := range st.requestIndex {
		c.requestIndex[k] = v
	}
	// 流水和网关记录只追加不修改，可共享指针；发件箱会更新状态，需要复制
	for i, msg := range st.outbox {
		m := *msg
		c.outbox[i] = &m
	}
	return c
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

type accountStore struct{ s *Store }

func (a accountStore) Create(_ context.Context, account *model.Account) error {
	return a.s.run(func(st *state) error {
		account.AccountNumber = st.nextAccountNumber
		st.nextAccountNumber++
		a.insert(st, account)
		return nil
	})
}

func (a accountStore) CreateIfAbsent(_ context.Context, account *model.Account) error {
	return a.s.run(func(st *state) error {
		if _, ok := st.accounts[account.AccountNumber]; ok {
			return nil
		}
		a.insert(st, account)
		if account.AccountNumber >= st.nextAccountNumber {
			st.nextAccountNumber = account.AccountNumber + 1
		}
		return nil
	})
}

func (a accountStore) insert(st *state, account *model.Account) {
	now := a.s.now()
	account.Balance = account.Balance.Round(2)
	account.CreatedAt = now
	account.UpdatedAt = now
	stored := *account
	st.accounts[account.AccountNumber] = &stored
}

func (a accountStore) GetByAccountNumber(_ context.Context, accountNumber int64) (*model.Account, error) {
	var out *model.Account
	err := a.s.run(func(st *state) error {
		account, ok := st.accounts[accountNumber]
		if !ok {
			return repository.ErrAccountNotFound
		}
		copied := *account
		out = &copied
		return nil
	})
	return out, err
}

func (a accountStore) LockForUpdate(_ context.Context, accountNumbers ...int64) (map[int64]*model.Account, error) {
	result := make(map[int64]*model.Account, len(accountNumbers))
	err := a.s.run(func(st *state) error {
		for _, number := range accountNumbers {
			if account, ok := st.accounts[number]; ok {
				copied := *account
				result[number] = &copied
			}
		}
		return nil
	})
	return result, err
}

func (a accountStore) AdjustBalance(_ context.Context, accountNumber int64, delta decimal.Decimal, allowNegative bool) error {
	return a.s.run(func(st *state) error {
		account, ok := st.accounts[accountNumber]
		if !ok {
			return repository.ErrAccountNotFound
		}
		delta = delta.Round(2)
		next := account.Balance.Add(delta)
		if !allowNegative && delta.IsNegative() && next.IsNegative() {
			return repository.ErrBalanceNotEnough
		}
		account.Balance = next
		account.UpdatedAt = a.s.now()
		return nil
	})
}

type transactionStore struct{ s *Store }

func (t transactionStore) Create(_ context.Context, trans *model.Transaction) error {
	return t.s.run(func(st *state) error {
		if trans.RequestID != nil {
			if _, ok := st.requestIndex[*trans.RequestID]; ok {
				return repository.ErrDuplicateRequest
			}
		}
		trans.ID = st.id()
		trans.Amount = trans.Amount.Round(2)
		trans.CreatedAt = t.s.now()
		stored := *trans
		st.transactions = append(st.transactions, &stored)
		if trans.RequestID != nil {
			st.requestIndex[*trans.RequestID] = len(st.transactions) - 1
		}
		return nil
	})
}

func (t transactionStore) GetByRequestID(_ context.Context, requestID string) (*model.Transaction, error) {
	var out *model.Transaction
	err := t.s.run(func(st *state) error {
		if idx, ok := st.requestIndex[requestID]; ok {
			copied := *st.transactions[idx]
			out = &copied
		}
		return nil
	})
	return out, err
}

func (t transactionStore) List(_ context.Context, filter repository.TransactionFilter, page, perPage int) ([]*model.Transaction, error) {
	var out []*model.Transaction
	err := t.s.run(func(st *state) error {
		matched := make([]*model.Transaction, 0)
		for _, trans := range st.transactions {
			if filter.AccountNumber != nil && trans.AccountNumber != *filter.AccountNumber {
				continue
			}
			if filter.Operation != "" && trans.Operation != filter.Operation {
				continue
			}
			matched = append(matched, trans)
		}
		sort.SliceStable(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID > matched[j].ID
		})

		start := (page - 1) * perPage
		if start < 0 || start >= len(matched) {
			return nil
		}
		end := start + perPage
		if end > len(matched) {
			end = len(matched)
		}
		for _, trans := range matched[start:end] {
			copied := *trans
			out = append(out, &copied)
		}
		return nil
	})
	return out, err
}

type gatewayStore struct{ s *Store }

func (g gatewayStore) Create(_ context.Context, gt *model.GatewayTransaction) error {
	return g.s.run(func(st *state) error {
		gt.ID = st.id()
		gt.CreatedAt = g.s.now()
		stored := *gt
		st.gateway = append(st.gateway, &stored)
		return nil
	})
}

func (g gatewayStore) GetAcceptedByRequestID(_ context.Context, requestID string) (*model.GatewayTransaction, error) {
	var out *model.GatewayTransaction
	err := g.s.run(func(st *state) error {
		for i := len(st.gateway) - 1; i >= 0; i-- {
			gt := st.gateway[i]
			if gt.RequestID != nil && *gt.RequestID == requestID && gt.Accepted() {
				copied := *gt
				out = &copied
				return nil
			}
		}
		return nil
	})
	return out, err
}

type outboxStore struct{ s *Store }

func (o outboxStore) Create(_ context.Context, msg *model.OutboxMessage) error {
	return o.s.run(func(st *state) error {
		msg.ID = st.id()
		msg.CreatedAt = o.s.now()
		msg.UpdatedAt = msg.CreatedAt
		if msg.Status == "" {
			msg.Status = model.OutboxStatusPending
		}
		stored := *msg
		st.outbox = append(st.outbox, &stored)
		return nil
	})
}

func (o outboxStore) GetPendingMessages(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	var out []*model.OutboxMessage
	err := o.s.run(func(st *state) error {
		for _, msg := range st.outbox {
			if len(out) >= limit {
				break
			}
			if msg.Status == model.OutboxStatusPending {
				copied := *msg
				out = append(out, &copied)
			}
		}
		return nil
	})
	return out, err
}

func (o outboxStore) MarkAsSent(_ context.Context, id int64) error {
	return o.s.run(func(st *state) error {
		if msg := findOutbox(st, id); msg != nil {
			msg.Status = model.OutboxStatusSent
			msg.UpdatedAt = o.s.now()
		}
		return nil
	})
}

func (o outboxStore) RecordFailure(_ context.Context, msg *model.OutboxMessage, maxRetry int) (bool, error) {
	failed := false
	err := o.s.run(func(st *state) error {
		stored := findOutbox(st, msg.ID)
		if stored == nil || stored.RetryCount != msg.RetryCount {
			return nil
		}
		stored.RetryCount++
		if stored.RetryCount >= maxRetry {
			stored.Status = model.OutboxStatusFailed
			failed = true
		}
		stored.UpdatedAt = o.s.now()
		return nil
	})
	return failed, err
}

func findOutbox(st *state, id int64) *model.OutboxMessage {
	for _, msg := range st.outbox {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// GatewayTransactions 返回全部网关审计记录的副本
func (s *Store) GatewayTransactions() []model.GatewayTransaction {
	var out []model.GatewayTransaction
	_ = s.run(func(st *state) error {
		for _, gt := range st.gateway {
			out = append(out, *gt)
		}
		return nil
	})
	return out
}

var _ repository.Store = (*Store)(nil)
