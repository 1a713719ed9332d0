// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"github.com/gin-gonic/gin"
)

type ErrorMessage struct {
	Code         int    `json:"code"`
	Message      string `json:"message"`
	HumanMessage string `json:"humanMessage"`
}

type Paginated struct {
	TotalItem int `json:"totalItem"`
	Offset    int `json:"offset"`
	Limit     int `json:"limit"`
}

// Response is the envelope every JSON endpoint returns.
type Response struct {
	Code      int           `json:"code"`
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Paginated *Paginated    `json:"paginated,omitempty"`
	Error     *ErrorMessage `json:"error,omitempty"`
}

func Success(c *gin.Context, code int, data interface{}) {
	c.JSON(code, Response{Code: code, Success: true, Data: data})
}

func PaginatedSuccess(c *gin.Context, code int, data interface{}, total, offset, limit int) {
	c.JSON(code, Response{
		Code:      code,
		Success:   true,
		Data:      data,
		Paginated: &Paginated{TotalItem: total, Offset: offset, Limit: limit},
	})
}

// Error writes a failure envelope; humanMessage is safe to show to users,
// err is only echoed in Message.
func Error(c *gin.Context, code int, err error, humanMessage string) {
	msg := humanMessage
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(code, Response{
		Code:    code,
		Success: false,
		Error:   &ErrorMessage{Code: code, Message: msg, HumanMessage: humanMessage},
	})
}
