package util

import (
	"github.com/gin-gonic/gin"
)

// 通用返回结构里的 data 使用 map
type Response map[string]interface{}

// Error codes returned in the "error" field. Clients switch on these, so they
// are stable strings rather than numbers.
const (
	CodeInvalidParam  = "INVALID_PARAM"
	CodeInvalidStatus = "INVALID_STATUS"
	CodeAuth          = "UNAUTHENTICATED"
	CodeNotApproved   = "NOT_APPROVED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeCapacityFull  = "PAUSE_CAPACITY_FULL"
	CodeServerErr     = "INTERNAL"
)

// Success writes data as the response body.
func Success(c *gin.Context, httpStatus int, data any) {
	c.JSON(httpStatus, data)
}

// Error writes {error, message}.
func Error(c *gin.Context, httpStatus int, code string, msg string) {
	c.JSON(httpStatus, gin.H{
		"error":   code,
		"message": msg,
	})
}

// ErrorWith writes {error, message} merged with extra fields.
func ErrorWith(c *gin.Context, httpStatus int, code string, msg string, extra Response) {
	body := gin.H{
		"error":   code,
		"message": msg,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(httpStatus, body)
}
