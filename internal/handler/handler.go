package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"ewallet/internal/config"
	"ewallet/internal/service"
	"ewallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService *service.AccountService
	ledgerService  *service.LedgerService
	cfg            *config.Config
}

// NewHandler 创建处理器实例
func NewHandler(accountService *service.AccountService, ledgerService *service.LedgerService, cfg *config.Config) *Handler {
	return &Handler{
		accountService: accountService,
		ledgerService:  ledgerService,
		cfg:            cfg,
	}
}

// ============================================================
// 账户相关接口
// ============================================================

// OpenAccountRequest 开户请求
type OpenAccountRequest struct {
	CustomerID string `json:"customer_id" binding:"required,max=64"`
	Name       string `json:"name" binding:"max=128"`
	Email      string `json:"email" binding:"omitempty,email"`
}

// OpenAccount 开户
// POST /api/v1/accounts
func (h *Handler) OpenAccount(c *gin.Context) {
	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.OpenAccount(c.Request.Context(), &service.OpenAccountRequest{
		CustomerID: req.CustomerID,
		Name:       req.Name,
		Email:      req.Email,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Response{
		Code:    response.CodeSuccess,
		Message: "success",
		Data:    account.BalanceView(),
	})
}

// GetAccount 账户公开信息，不含余额
// GET /api/v1/accounts/:number
func (h *Handler) GetAccount(c *gin.Context) {
	number, err := strconv.ParseInt(c.Param("number"), 10, 64)
	if err != nil || number <= 0 {
		response.ParamError(c, "账户号格式错误")
		return
	}

	account, err := h.accountService.GetAccount(c.Request.Context(), number)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, account.View())
}

// ============================================================
// 钱包相关接口
// ============================================================

// GetBalance 查询余额
// GET /api/v1/ewallet/balance
func (h *Handler) GetBalance(c *gin.Context) {
	view, err := h.ledgerService.GetBalance(c.Request.Context(), accountNumber(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, view)
}

// GetTransactions 查询流水
// GET /api/v1/ewallet/transactions?page=1&per_page=30
func (h *Handler) GetTransactions(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		response.ParamError(c, "page 参数错误")
		return
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(h.cfg.Business.DefaultPerPage)))
	if err != nil || perPage < 1 || perPage > h.cfg.Business.MaxPerPage {
		response.ParamError(c, "per_page 参数错误")
		return
	}

	list, err := h.ledgerService.ListTransactions(c.Request.Context(), &service.ListTransactionsRequest{
		AccountNumber: accountNumber(c),
		Page:          page,
		PerPage:       perPage,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, list)
}

// CardOperationRequest 充值/提现请求
type CardOperationRequest struct {
	Card   string          `json:"card" binding:"required,numeric,len=16"`
	Amount decimal.Decimal `json:"amount"`
}

// Deposit 银行卡充值
// POST /api/v1/ewallet/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req CardOperationRequest
	if !h.bindAmount(c, &req, &req.Amount) {
		return
	}

	result, err := h.ledgerService.Deposit(c.Request.Context(), &service.DepositRequest{
		RequestID:     c.GetHeader(HeaderIdempotencyKey),
		AccountNumber: accountNumber(c),
		Card:          req.Card,
		Amount:        req.Amount,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// Withdrawal 提现到银行卡
// POST /api/v1/ewallet/withdrawal
func (h *Handler) Withdrawal(c *gin.Context) {
	var req CardOperationRequest
	if !h.bindAmount(c, &req, &req.Amount) {
		return
	}

	result, err := h.ledgerService.Withdrawal(c.Request.Context(), &service.WithdrawalRequest{
		RequestID:     c.GetHeader(HeaderIdempotencyKey),
		AccountNumber: accountNumber(c),
		Card:          req.Card,
		Amount:        req.Amount,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// TransferRequest 转账请求
type TransferRequest struct {
	DestinationAccountNumber int64           `json:"destinationAccountNumber" binding:"required,gt=0"`
	Amount                   decimal.Decimal `json:"amount"`
}

// Transfer 账户间转账
// POST /api/v1/ewallet/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if !h.bindAmount(c, &req, &req.Amount) {
		return
	}

	result, err := h.ledgerService.Transfer(c.Request.Context(), &service.TransferRequest{
		RequestID:                c.GetHeader(HeaderIdempotencyKey),
		AccountNumber:            accountNumber(c),
		DestinationAccountNumber: req.DestinationAccountNumber,
		Amount:                   req.Amount,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// bindAmount 绑定请求体并校验金额：正数、最多两位小数、在配置区间内
func (h *Handler) bindAmount(c *gin.Context, req interface{}, amount *decimal.Decimal) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return false
	}
	if !amount.IsPositive() {
		response.ParamError(c, "amount 必须大于0")
		return false
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		response.ParamError(c, "amount 最多两位小数")
		return false
	}
	if amount.LessThan(h.cfg.Business.MinAmount) || amount.GreaterThan(h.cfg.Business.MaxAmount) {
		response.ParamError(c, "amount 超出允许范围")
		return false
	}
	return true
}

// fail 业务错误按类型映射状态码，其他错误只记录日志
func (h *Handler) fail(c *gin.Context, err error) {
	var le *service.LedgerError
	if !errors.As(err, &le) {
		log.Printf("[Handler] 未识别的错误: path=%s, err=%v", c.FullPath(), err)
		response.ServerError(c)
		return
	}
	if le.Err != nil {
		log.Printf("[Handler] 业务错误: path=%s, kind=%s, err=%v", c.FullPath(), le.Kind, le.Err)
	}
	response.Error(c, statusOf(le.Kind), string(le.Kind), le.Message)
}

func statusOf(kind service.ErrorKind) int {
	switch kind {
	case service.KindPaymentRejected:
		return http.StatusPaymentRequired
	case service.KindWithdrawalRejected:
		return http.StatusBadGateway
	case service.KindAccountNotFound:
		return http.StatusNotFound
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindInsufficientFunds:
		return http.StatusConflict
	case service.KindBusy:
		return http.StatusTooManyRequests
	case service.KindLedgerConsistency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
