package response

import "github.com/gin-gonic/gin"

const (
	CodeSuccess = 0
)

const (
	ErrUnauthorized = 10001
	ErrTokenExpired = 10002
	ErrForbidden    = 10003
)

const (
	ErrValidation      = 20001
	ErrNotFound        = 20002
	ErrStateConflict   = 20003
	ErrInsufficient    = 20004
	ErrConcurrency     = 20005
	ErrTooManyRequests = 20006
)

const (
	ErrSystemMaintenance = 90001
	ErrStoreUnavailable  = 90002
	ErrInternal          = 99999
)

type Response struct {
	Code       int         `json:"code"`
	Message    string      `json:"message"`
	Reason     string      `json:"reason,omitempty"`
	Data       any         `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

func Success(c *gin.Context, data any) {
	c.JSON(200, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data any) {
	c.JSON(201, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Paginated(c *gin.Context, data any, page, pageSize int, total int64) {
	c.JSON(200, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
		Pagination: &Pagination{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		},
	})
}

func Fail(c *gin.Context, httpStatus, appCode int, message string) {
	c.JSON(httpStatus, Response{
		Code:    appCode,
		Message: message,
	})
}

// Reject is Fail with a machine-readable rejection reason for clients that
// branch on it, e.g. "payout_below_minimum".
func Reject(c *gin.Context, httpStatus, appCode int, reason, message string) {
	c.JSON(httpStatus, Response{
		Code:    appCode,
		Message: message,
		Reason:  reason,
	})
}
