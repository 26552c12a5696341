package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ewallet/internal/config"
	"ewallet/internal/infrastructure/lock"
	"ewallet/internal/model"
	"ewallet/internal/repository"
	"ewallet/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerService 账本引擎
//
// 【关键点】每个操作的全部写入（主流水、对手方流水、手续费流水、手续费账户入账、发件箱消息）
// 都在同一个存储事务内完成，要么全部成功，要么全部回滚，不存在"转出成功、手续费丢失"的中间状态。
type LedgerService struct {
	store   repository.Store
	gateway PaymentGateway
	house   *HouseAccountResolver
	locker  lock.Locker
	ids     *idgen.Snowflake
	cfg     *config.Config
}

func NewLedgerService(
	store repository.Store,
	gateway PaymentGateway,
	house *HouseAccountResolver,
	locker lock.Locker,
	ids *idgen.Snowflake,
	cfg *config.Config,
) *LedgerService {
	return &LedgerService{
		store:   store,
		gateway: gateway,
		house:   house,
		locker:  locker,
		ids:     ids,
		cfg:     cfg,
	}
}

type DepositRequest struct {
	RequestID     string // 幂等键，可为空
	AccountNumber int64
	Card          string
	Amount        decimal.Decimal
}

type WithdrawalRequest struct {
	RequestID     string
	AccountNumber int64
	Card          string
	Amount        decimal.Decimal
}

type TransferRequest struct {
	RequestID                string
	AccountNumber            int64
	DestinationAccountNumber int64
	Amount                   decimal.Decimal
}

type ListTransactionsRequest struct {
	AccountNumber int64
	Page          int
	PerPage       int
}

// Deposit 银行卡充值：网关成功后入账 +amount
func (s *LedgerService) Deposit(ctx context.Context, req *DepositRequest) (*model.OperationResult, error) {
	if err := s.checkActor(req.AccountNumber, req.Amount); err != nil {
		return nil, err
	}

	unlock, err := s.lockAccount(ctx, req.AccountNumber, req.RequestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if result, err := s.replay(ctx, req.RequestID, model.OperationDeposit, req.AccountNumber); result != nil || err != nil {
		return result, err
	}

	// 先确认账户存在，避免扣了卡却无处入账
	if _, err := s.getAccount(ctx, s.store, req.AccountNumber); err != nil {
		return nil, err
	}

	charge, _, err := s.charge(ctx, &ChargeRequest{
		RequestID:     req.RequestID,
		Operation:     model.OperationDeposit,
		AccountNumber: req.AccountNumber,
		Card:          req.Card,
		Amount:        req.Amount,
	})
	if err != nil {
		return nil, err
	}
	if !charge.Accepted {
		log.Printf("[Ledger] 充值被网关拒绝: account=%d, amount=%s, gatewayTx=%s, reason=%s",
			req.AccountNumber, req.Amount, charge.TransactionID, charge.Reason)
		return nil, newError(ErrPaymentRejected, "", nil)
	}

	trans := &model.Transaction{
		Operation:     model.OperationDeposit,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
		Reference:     model.DepositReference(charge.TransactionID),
	}
	result, err := s.postSingle(ctx, req.RequestID, trans, s.cfg.Ledger.AllowOverdraft)
	if err != nil {
		log.Printf("[Ledger] 网关已扣款但入账失败: account=%d, gatewayTx=%s, err=%v",
			req.AccountNumber, charge.TransactionID, err)
		return nil, err
	}

	log.Printf("[Ledger] 充值成功: account=%d, amount=%s, txn=%s", req.AccountNumber, req.Amount, result.Transaction.ID)
	return result, nil
}

// Withdrawal 提现到银行卡：网关成功后入账 -amount
func (s *LedgerService) Withdrawal(ctx context.Context, req *WithdrawalRequest) (*model.OperationResult, error) {
	if err := s.checkActor(req.AccountNumber, req.Amount); err != nil {
		return nil, err
	}

	unlock, err := s.lockAccount(ctx, req.AccountNumber, req.RequestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if result, err := s.replay(ctx, req.RequestID, model.OperationWithdrawal, req.AccountNumber); result != nil || err != nil {
		return result, err
	}

	account, err := s.getAccount(ctx, s.store, req.AccountNumber)
	if err != nil {
		return nil, err
	}

	chargeReq := &ChargeRequest{
		RequestID:     req.RequestID,
		Operation:     model.OperationWithdrawal,
		AccountNumber: req.AccountNumber,
		Card:          req.Card,
		Amount:        req.Amount,
	}
	charge, reused, err := s.acceptedCharge(ctx, chargeReq)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		// 调用网关前校验余额，入账时 UPDATE 条件会再校验一次
		if !s.cfg.Ledger.AllowOverdraft && account.Balance.LessThan(req.Amount) {
			return nil, newError(ErrInsufficientFunds, "", nil)
		}
		if charge, err = s.callGateway(ctx, chargeReq); err != nil {
			return nil, err
		}
	}
	if !charge.Accepted {
		log.Printf("[Ledger] 提现被网关拒绝: account=%d, amount=%s, gatewayTx=%s, reason=%s",
			req.AccountNumber, req.Amount, charge.TransactionID, charge.Reason)
		return nil, newError(ErrWithdrawalRejected, "", nil)
	}

	trans := &model.Transaction{
		Operation:     model.OperationWithdrawal,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount.Neg(),
		Reference:     model.WithdrawalReference(charge.TransactionID),
	}
	// 已经出款的重试必须入账，余额条件不再生效
	allowNegative := s.cfg.Ledger.AllowOverdraft || reused
	result, err := s.postSingle(ctx, req.RequestID, trans, allowNegative)
	if err != nil {
		log.Printf("[Ledger] 网关已出款但扣账失败: account=%d, gatewayTx=%s, err=%v",
			req.AccountNumber, charge.TransactionID, err)
		return nil, err
	}

	log.Printf("[Ledger] 提现成功: account=%d, amount=%s, txn=%s", req.AccountNumber, req.Amount, result.Transaction.ID)
	return result, nil
}

// Transfer 账户间转账，不经过网关
//
// 同一事务内：
//  1. 转出方 -amount（transfer）
//  2. 转入方 +amount（transfer）
//  3. 转出方 -fee（fee，fee > 0 时）
//  4. 手续费账户 +fee（仅余额变动）
func (s *LedgerService) Transfer(ctx context.Context, req *TransferRequest) (*model.OperationResult, error) {
	if err := s.checkActor(req.AccountNumber, req.Amount); err != nil {
		return nil, err
	}
	if req.AccountNumber == req.DestinationAccountNumber {
		return nil, validationError("source and destination accounts must differ")
	}
	if s.house.IsHouse(req.DestinationAccountNumber) {
		return nil, validationError("transfers to the house account are not allowed")
	}

	unlock, err := s.lockAccount(ctx, req.AccountNumber, req.RequestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if result, err := s.replay(ctx, req.RequestID, model.OperationTransfer, req.AccountNumber); result != nil || err != nil {
		return result, err
	}

	src, dst := req.AccountNumber, req.DestinationAccountNumber
	fee := CalculateFee(req.Amount)
	allowNegative := s.cfg.Ledger.AllowOverdraft

	var result *model.OperationResult
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		lockIDs := []int64{src, dst}

		var house *model.Account
		if fee.IsPositive() {
			var err error
			house, err = s.house.Resolve(ctx, tx)
			if err != nil {
				return err
			}
			lockIDs = append(lockIDs, house.AccountNumber)
		}

		locked, err := tx.Accounts().LockForUpdate(ctx, lockIDs...)
		if err != nil {
			return err
		}
		source, ok := locked[src]
		if !ok {
			return newError(ErrAccountNotFound, fmt.Sprintf("Account %d not found", src), nil)
		}
		if _, ok := locked[dst]; !ok {
			return newError(ErrAccountNotFound, fmt.Sprintf("Destination account %d not found", dst), nil)
		}
		if !allowNegative && source.Balance.LessThan(req.Amount.Add(fee)) {
			return newError(ErrInsufficientFunds, "", nil)
		}

		debit := &model.Transaction{
			Operation:                model.OperationTransfer,
			AccountNumber:            src,
			DestinationAccountNumber: &dst,
			Amount:                   req.Amount.Neg(),
			Reference:                model.TransferToReference(dst),
		}
		if err := s.post(ctx, tx, req.RequestID, debit, allowNegative); err != nil {
			return err
		}

		credit := &model.Transaction{
			Operation:                model.OperationTransfer,
			AccountNumber:            dst,
			DestinationAccountNumber: &src,
			Amount:                   req.Amount,
			Reference:                model.TransferFromReference(src),
		}
		if err := s.post(ctx, tx, "", credit, true); err != nil {
			return err
		}

		records := []*model.Transaction{debit, credit}
		if house != nil {
			feeTrans := &model.Transaction{
				Operation:     model.OperationFee,
				AccountNumber: src,
				Amount:        fee.Neg(),
				Reference:     model.FeeReference(debit.TransactionNo),
			}
			if err := s.post(ctx, tx, "", feeTrans, allowNegative); err != nil {
				return err
			}
			if err := tx.Accounts().AdjustBalance(ctx, house.AccountNumber, fee, true); err != nil {
				return fmt.Errorf("手续费入账失败: %w", err)
			}
			records = append(records, feeTrans)
		}

		result, err = s.finish(ctx, tx, debit, records, fee)
		return err
	})
	if err != nil {
		return nil, s.translate(err)
	}

	log.Printf("[Ledger] 转账成功: from=%d, to=%d, amount=%s, fee=%s, txn=%s",
		src, dst, req.Amount, fee.StringFixed(2), result.Transaction.ID)
	return result, nil
}

// ListTransactions 按创建时间倒序分页查询流水
// 手续费账户只能看到全部 fee 流水
func (s *LedgerService) ListTransactions(ctx context.Context, req *ListTransactionsRequest) ([]model.TransactionView, error) {
	page, perPage := s.pagination(req.Page, req.PerPage)

	filter := repository.TransactionFilter{AccountNumber: &req.AccountNumber}
	if s.house.IsHouse(req.AccountNumber) {
		filter = repository.TransactionFilter{Operation: model.OperationFee}
	} else if _, err := s.getAccount(ctx, s.store, req.AccountNumber); err != nil {
		return nil, err
	}

	transactions, err := s.store.Transactions().List(ctx, filter, page, perPage)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}

	views := make([]model.TransactionView, 0, len(transactions))
	for _, trans := range transactions {
		views = append(views, trans.View())
	}
	return views, nil
}

// GetBalance 查询余额
func (s *LedgerService) GetBalance(ctx context.Context, accountNumber int64) (*model.BalanceView, error) {
	var (
		account *model.Account
		err     error
	)
	if s.house.IsHouse(accountNumber) {
		account, err = s.house.Resolve(ctx, s.store)
	} else {
		account, err = s.getAccount(ctx, s.store, accountNumber)
	}
	if err != nil {
		return nil, err
	}
	view := account.BalanceView()
	return &view, nil
}

// charge 同一幂等键已有成功扣款（上次入账失败）时直接复用，否则调用网关
func (s *LedgerService) charge(ctx context.Context, req *ChargeRequest) (*GatewayResult, bool, error) {
	charge, reused, err := s.acceptedCharge(ctx, req)
	if err != nil || charge != nil {
		return charge, reused, err
	}
	charge, err = s.callGateway(ctx, req)
	return charge, false, err
}

// acceptedCharge 查找该幂等键下已成功但未入账的网关记录
func (s *LedgerService) acceptedCharge(ctx context.Context, req *ChargeRequest) (*GatewayResult, bool, error) {
	if req.RequestID == "" {
		return nil, false, nil
	}

	gt, err := s.store.Gateway().GetAcceptedByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, false, consistencyError(err)
	}
	if gt == nil {
		return nil, false, nil
	}
	if gt.Operation != req.Operation || gt.AccountNumber != req.AccountNumber || !gt.Amount.Equal(req.Amount.Round(2)) {
		return nil, false, validationError("idempotency key already used for a different operation")
	}

	log.Printf("[Ledger] 复用已成功的网关记录补记流水: requestID=%s, gatewayTx=%s", req.RequestID, gt.TransactionID)
	return &GatewayResult{
		TransactionID:     gt.TransactionID,
		Accepted:          true,
		AuthorizationCode: gt.AuthorizationCode,
	}, true, nil
}

func (s *LedgerService) callGateway(ctx context.Context, req *ChargeRequest) (*GatewayResult, error) {
	charge, err := s.gateway.Charge(ctx, req)
	if err != nil {
		return nil, consistencyError(err)
	}
	return charge, nil
}

// postSingle 单条流水的操作（充值、提现）
// 网关已经成功，入账不再跟随请求取消，只受 post_timeout 限制
func (s *LedgerService) postSingle(ctx context.Context, requestID string, trans *model.Transaction, allowNegative bool) (*model.OperationResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Ledger.PostTimeout)
	defer cancel()

	var result *model.OperationResult
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := s.post(ctx, tx, requestID, trans, allowNegative); err != nil {
			return err
		}
		var err error
		result, err = s.finish(ctx, tx, trans, []*model.Transaction{trans}, decimal.Zero)
		return err
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return result, nil
}

// post 写入一条流水并对所属账户做一次余额变动
func (s *LedgerService) post(ctx context.Context, tx repository.Store, requestID string, trans *model.Transaction, allowNegative bool) error {
	transactionNo, err := s.ids.TransactionNo()
	if err != nil {
		return err
	}
	trans.TransactionNo = transactionNo
	trans.Amount = trans.Amount.Round(2)
	if requestID != "" {
		trans.RequestID = &requestID
	}

	if err := tx.Transactions().Create(ctx, trans); err != nil {
		return err
	}
	return tx.Accounts().AdjustBalance(ctx, trans.AccountNumber, trans.Amount, allowNegative)
}

// finish 读取最新余额并写入发件箱
func (s *LedgerService) finish(ctx context.Context, tx repository.Store, primary *model.Transaction, records []*model.Transaction, fee decimal.Decimal) (*model.OperationResult, error) {
	account, err := tx.Accounts().GetByAccountNumber(ctx, primary.AccountNumber)
	if err != nil {
		return nil, err
	}

	event := &model.LedgerEvent{
		Operation:  primary.Operation,
		Balance:    account.Balance.StringFixed(2),
		OccurredAt: time.Now(),
	}
	for _, trans := range records {
		event.Transactions = append(event.Transactions, trans.View())
	}
	if fee.IsPositive() {
		event.HouseFee = fee.StringFixed(2)
	}

	msg, err := model.NewLedgerOutbox(s.cfg.Kafka.Topic.LedgerTransaction, primary.TransactionNo, event)
	if err != nil {
		return nil, err
	}
	if err := tx.Outbox().Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("写入消息失败: %w", err)
	}

	return &model.OperationResult{
		Transaction: primary.View(),
		Customer:    account.BalanceView(),
	}, nil
}

// replay 幂等：同一个请求ID已经入账时直接返回原流水和当前余额
func (s *LedgerService) replay(ctx context.Context, requestID, operation string, accountNumber int64) (*model.OperationResult, error) {
	if requestID == "" {
		return nil, nil
	}

	trans, err := s.store.Transactions().GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, consistencyError(err)
	}
	if trans == nil {
		return nil, nil
	}
	if trans.AccountNumber != accountNumber || trans.Operation != operation {
		return nil, validationError("idempotency key already used for a different operation")
	}

	account, err := s.getAccount(ctx, s.store, accountNumber)
	if err != nil {
		return nil, err
	}

	log.Printf("[Ledger] 重复请求，返回已有结果: requestID=%s, txn=%s", requestID, trans.TransactionNo)
	return &model.OperationResult{
		Transaction: trans.View(),
		Customer:    account.BalanceView(),
	}, nil
}

// checkActor 金额方向与发起方的业务约束；格式校验由请求层完成
func (s *LedgerService) checkActor(accountNumber int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationError("amount must be positive")
	}
	if amount.Round(2).IsZero() {
		return validationError("amount must be at least 0.01")
	}
	if s.house.IsHouse(accountNumber) {
		return validationError("the house account cannot initiate operations")
	}
	return nil
}

func (s *LedgerService) lockAccount(ctx context.Context, accountNumber int64, requestID string) (func(), error) {
	owner := requestID
	if owner == "" {
		owner = uuid.NewString()
	}

	unlock, err := s.locker.LockAccount(ctx, accountNumber, owner)
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, newError(ErrBusy, "", err)
		}
		return nil, consistencyError(err)
	}
	return unlock, nil
}

func (s *LedgerService) getAccount(ctx context.Context, store repository.Store, accountNumber int64) (*model.Account, error) {
	account, err := store.Accounts().GetByAccountNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, newError(ErrAccountNotFound, fmt.Sprintf("Account %d not found", accountNumber), nil)
		}
		return nil, consistencyError(err)
	}
	return account, nil
}

func (s *LedgerService) pagination(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = s.cfg.Business.DefaultPerPage
	}
	if perPage > s.cfg.Business.MaxPerPage {
		perPage = s.cfg.Business.MaxPerPage
	}
	return page, perPage
}

// translate 把存储层错误映射为业务错误；无法识别的一律视为可重试的一致性错误
func (s *LedgerService) translate(err error) error {
	var le *LedgerError
	switch {
	case errors.As(err, &le):
		return le
	case errors.Is(err, repository.ErrAccountNotFound):
		return newError(ErrAccountNotFound, "", err)
	case errors.Is(err, repository.ErrBalanceNotEnough):
		return newError(ErrInsufficientFunds, "", err)
	default:
		// 包括幂等键并发冲突：调用方用同一个请求ID重试即可拿到已提交的结果
		log.Printf("[Ledger] 事务提交失败，已整体回滚: err=%v", err)
		return consistencyError(err)
	}
}
