package handler

import (
	"errors"
	"strconv"
	"strings"

	"retailbank/internal/config"
	"retailbank/internal/infrastructure/lock"
	"retailbank/internal/infrastructure/mail"
	"retailbank/internal/model"
	"retailbank/internal/service"
	"retailbank/pkg/logger"
	"retailbank/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService   *service.AccountService
	transferService  *service.TransferService
	approvalService  *service.ApprovalService
	scheduledService *service.ScheduledPaymentService
}

func NewHandler(db *gorm.DB, locker lock.Locker, notifier mail.Notifier, cfg *config.Config) *Handler {
	return &Handler{
		accountService:   service.NewAccountService(db, cfg),
		transferService:  service.NewTransferService(db, cfg),
		approvalService:  service.NewApprovalService(db, locker, cfg),
		scheduledService: service.NewScheduledPaymentService(db, locker, notifier, cfg),
	}
}

// 业务错误 -> 响应码
var errorCodes = []struct {
	err  error
	code int
}{
	{service.ErrInvalidAmount, response.CodeInvalidAmount},
	{service.ErrInsufficientFunds, response.CodeInsufficientFunds},
	{service.ErrNoSuchAccount, response.CodeNoSuchAccount},
	{service.ErrSameAccount, response.CodeSameAccount},
	{service.ErrNotPending, response.CodeNotPending},
	{service.ErrCorrespondingEntryNotFound, response.CodeCorrespondingEntryNotFound},
	{service.ErrUnsupportedLegType, response.CodeUnsupportedLegType},
	{service.ErrUnrecognizedTransferFormat, response.CodeUnrecognizedTransferFormat},
	{service.ErrNegativeBalance, response.CodeNegativeBalance},
	{service.ErrTransactionNotFound, response.CodeTransactionNotFound},
	{service.ErrScheduledPaymentNotFound, response.CodeScheduledPaymentNotFound},
	{service.ErrCreditCardNotFound, response.CodeCreditCardNotFound},
	{service.ErrBusy, response.CodeConcurrentModification},
	{service.ErrForbidden, response.CodeForbidden},
	{service.ErrInvalidOutcome, response.CodeParamError},
}

func fail(c *gin.Context, err error) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			response.BusinessError(c, e.code, e.err.Error())
			return
		}
	}
	logger.Errorf("[HTTP] 未处理的错误: %v | %s", err, c.GetString(ctxKeyRequestID))
	response.ServerError(c, "服务器内部错误")
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

// ============================================================
// 账户相关接口
// ============================================================

// ListAccounts GET /api/v1/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts(c.Request.Context(), principalFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, accounts)
}

// GetBalance GET /api/v1/accounts/:number/balance
func (h *Handler) GetBalance(c *gin.Context) {
	number := c.Param("number")
	balance, err := h.accountService.GetBalance(c.Request.Context(), principalFrom(c), number)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_number": number,
		"balance":        balance.StringFixed(2),
	})
}

// ListTransactions GET /api/v1/accounts/:number/transactions?type=DEPOSIT&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.accountService.ListTransactions(c.Request.Context(), principalFrom(c),
		c.Param("number"), c.Query("type"), page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

type DepositRequest struct {
	Kind   string          `json:"kind" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"money"`
}

// Deposit POST /api/v1/accounts/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.transferService.Deposit(c.Request.Context(), principalFrom(c), strings.ToUpper(req.Kind), req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 转账相关接口
// ============================================================

// SendMoney POST /api/v1/transfers/send
// 只生成待审批流水，余额在审批通过后才变动
func (h *Handler) SendMoney(c *gin.Context) {
	var req service.SendMoneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.transferService.SendMoney(c.Request.Context(), principalFrom(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// TransferOwn POST /api/v1/transfers/own
func (h *Handler) TransferOwn(c *gin.Context) {
	var req service.OwnTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.transferService.TransferBetweenOwnAccounts(c.Request.Context(), principalFrom(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"money"`
}

// TransferToSavings POST /api/v1/transfers/to-savings
func (h *Handler) TransferToSavings(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.transferService.TransferToSavings(c.Request.Context(), principalFrom(c), req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// TransferFromSavings POST /api/v1/transfers/from-savings
func (h *Handler) TransferFromSavings(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.transferService.TransferFromSavings(c.Request.Context(), principalFrom(c), req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 信用卡还款
// ============================================================

// PayCard POST /api/v1/cards/:id/pay
func (h *Handler) PayCard(c *gin.Context) {
	cardID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.CardPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.transferService.PayCardNow(c.Request.Context(), principalFrom(c), cardID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// SchedulePayment POST /api/v1/scheduled-payments
func (h *Handler) SchedulePayment(c *gin.Context) {
	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	payment, err := h.scheduledService.Schedule(c.Request.Context(), principalFrom(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, payment)
}

// ListScheduledPayments GET /api/v1/scheduled-payments
func (h *Handler) ListScheduledPayments(c *gin.Context) {
	payments, err := h.scheduledService.List(c.Request.Context(), principalFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, payments)
}

// CancelScheduledPayment POST /api/v1/scheduled-payments/:id/cancel
func (h *Handler) CancelScheduledPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	payment, err := h.scheduledService.Cancel(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, payment)
}

// ExecuteScheduledPayment POST /api/v1/scheduled-payments/:id/execute
// 余额不足时预约单已被置为 FAILED，仍返回余额不足的业务错误
func (h *Handler) ExecuteScheduledPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	payment, err := h.scheduledService.Execute(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, payment)
}

// ============================================================
// 审批接口（仅员工）
// ============================================================

type DecisionRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject"`
}

// DecideTransaction POST /api/v1/admin/transactions/:id/decide
// approve 入账；reject 置为 CANCELLED
func (h *Handler) DecideTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	var (
		result *service.ApprovalResult
		err    error
	)
	if req.Action == "approve" {
		result, err = h.approvalService.Approve(c.Request.Context(), principalFrom(c), id)
	} else {
		result, err = h.approvalService.Reject(c.Request.Context(), principalFrom(c), id, model.TransactionStatusCancelled)
	}
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// RejectTransaction POST /api/v1/admin/transactions/:id/reject
func (h *Handler) RejectTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.approvalService.Reject(c.Request.Context(), principalFrom(c), id, model.TransactionStatusRejected)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}
