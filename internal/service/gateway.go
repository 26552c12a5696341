package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"ewallet/internal/config"
	"ewallet/internal/model"
	"ewallet/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CardProcessor 外部卡处理系统
type CardProcessor interface {
	Process(ctx context.Context, cardToken string, amount decimal.Decimal) (*ProcessorResponse, error)
}

// ProcessorResponse 网关原始应答
type ProcessorResponse struct {
	TransactionID     string
	Approved          bool
	AuthorizationCode int64
	PaymentDate       time.Time
}

// GatewayResult 网关调用结果
type GatewayResult struct {
	TransactionID     string
	Accepted          bool
	AuthorizationCode int64
	Reason            string
}

// ChargeRequest 一次卡扣款/出款
type ChargeRequest struct {
	RequestID     string // 幂等键，可为空
	Operation     string
	AccountNumber int64
	Card          string
	Amount        decimal.Decimal
}

// PaymentGateway 账本引擎只依赖这个接口
type PaymentGateway interface {
	Charge(ctx context.Context, req *ChargeRequest) (*GatewayResult, error)
}

// GatewayAdapter 调用卡处理系统并落审计记录
//
// 超时或处理器报错一律视为拒绝，绝不假设成功；
// 审计记录写在账本事务之外，拒绝的调用也会保留。
type GatewayAdapter struct {
	processor CardProcessor
	store     repository.GatewayStore
	timeout   time.Duration
}

func NewGatewayAdapter(processor CardProcessor, store repository.GatewayStore, timeout time.Duration) *GatewayAdapter {
	return &GatewayAdapter{
		processor: processor,
		store:     store,
		timeout:   timeout,
	}
}

func (g *GatewayAdapter) Charge(ctx context.Context, req *ChargeRequest) (*GatewayResult, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.processor.Process(callCtx, req.Card, req.Amount)

	record := &model.GatewayTransaction{
		Operation:     req.Operation,
		AccountNumber: req.AccountNumber,
		CardLast4:     last4(req.Card),
		Amount:        req.Amount.Round(2),
		PaymentDate:   time.Now(),
	}
	if req.RequestID != "" {
		requestID := req.RequestID
		record.RequestID = &requestID
	}
	switch {
	case err != nil:
		// 没有拿到应答，本地生成 ID 作为超时标记
		log.Printf("[Gateway] 调用失败，按拒绝处理: op=%s, account=%d, err=%v", req.Operation, req.AccountNumber, err)
		record.TransactionID = uuid.NewString()
		record.Status = model.GatewayStatusFailure
		record.FailureReason = model.GatewayReasonTimeout
	case resp.Approved:
		record.TransactionID = resp.TransactionID
		record.Status = model.GatewayStatusSuccess
		record.AuthorizationCode = resp.AuthorizationCode
		record.PaymentDate = resp.PaymentDate
	default:
		record.TransactionID = resp.TransactionID
		record.Status = model.GatewayStatusFailure
		record.FailureReason = model.GatewayReasonDeclined
		record.AuthorizationCode = resp.AuthorizationCode
		record.PaymentDate = resp.PaymentDate
	}

	// 审计记录不受请求取消影响
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.store.Create(saveCtx, record); err != nil {
		return nil, fmt.Errorf("保存网关记录失败: %w", err)
	}

	return &GatewayResult{
		TransactionID:     record.TransactionID,
		Accepted:          record.Accepted(),
		AuthorizationCode: record.AuthorizationCode,
		Reason:            record.FailureReason,
	}, nil
}

func last4(card string) string {
	if len(card) <= 4 {
		return card
	}
	return card[len(card)-4:]
}

// SimulatedProcessor 模拟卡处理系统：DeclineCard 总是被拒绝，其余卡号总是成功
type SimulatedProcessor struct {
	DeclineCard string
	Latency     time.Duration
}

func NewSimulatedProcessor(cfg *config.GatewayConfig) *SimulatedProcessor {
	return &SimulatedProcessor{
		DeclineCard: cfg.DeclineCard,
		Latency:     cfg.Latency,
	}
}

func (p *SimulatedProcessor) Process(ctx context.Context, cardToken string, amount decimal.Decimal) (*ProcessorResponse, error) {
	if p.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.Latency):
		}
	}

	code, err := authorizationCode()
	if err != nil {
		return nil, err
	}

	return &ProcessorResponse{
		TransactionID:     uuid.NewString(),
		Approved:          cardToken != p.DeclineCard,
		AuthorizationCode: code,
		PaymentDate:       time.Now(),
	}, nil
}

// authorizationCode 6 位十六进制随机数
func authorizationCode() (int64, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return 0, errors.New("生成授权码失败")
	}
	return strconv.ParseInt(hex.EncodeToString(buf), 16, 64)
}
