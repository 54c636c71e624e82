package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码
const (
	CodeInvalidAmount              = 1001
	CodeInsufficientFunds          = 1002
	CodeNoSuchAccount              = 1003
	CodeSameAccount                = 1004
	CodeNotPending                 = 1005
	CodeCorrespondingEntryNotFound = 1006
	CodeUnsupportedLegType         = 1007
	CodeUnrecognizedTransferFormat = 1008
	CodeNegativeBalance            = 1009
	CodeTransactionNotFound        = 1010
	CodeScheduledPaymentNotFound   = 1011
	CodeCreditCardNotFound         = 1012
	CodeConcurrentModification     = 1013
)

type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Message:   "success",
		Data:      data,
		RequestID: requestID(c),
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:      code,
		Message:   message,
		RequestID: requestID(c),
	})
}

// Abort 用于中间件，中断后续处理
func Abort(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, Response{
		Code:      code,
		Message:   message,
		RequestID: requestID(c),
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
