package app

import (
	"github.com/haierkeys/library-backup-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// ContextLangKey is where the lang middleware stores the request language
const ContextLangKey = "lang"

type Response struct {
	Ctx *gin.Context
}

// Res is the unified response envelope: code/status/message/data/details
// Res 统一响应结构
type Res struct {
	Code    int      `json:"code"`
	Status  bool     `json:"status"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Details []string `json:"details,omitempty"`
}

type ListRes struct {
	List  any `json:"list"`  // 数据清单
	Total int `json:"total"` // 总数
}

func NewResponse(ctx *gin.Context) *Response {
	return &Response{Ctx: ctx}
}

// GetRequestIP 获取 ip
func GetRequestIP(c *gin.Context) string {
	reqIP := c.ClientIP()
	if reqIP == "::1" {
		reqIP = "127.0.0.1"
	}
	return reqIP
}

// Message returns the code message in the request language.
// Message 按请求语言返回消息
func Message(c *gin.Context, codeObj *code.Code) string {
	if c != nil {
		if lang := c.GetString(ContextLangKey); lang != "" {
			return codeObj.Lang.In(lang)
		}
	}
	return codeObj.Msg()
}

// ToResponse writes codeObj with its HTTP status.
// ToResponse 输出响应，HTTP 状态码取自 codeObj
func (r *Response) ToResponse(codeObj *code.Code) {
	r.Ctx.Set("status_code", codeObj.StatusCode())

	content := Res{
		Code:    codeObj.Code(),
		Status:  codeObj.Status(),
		Message: Message(r.Ctx, codeObj),
		Data:    codeObj.Data(),
	}
	if codeObj.HaveDetails() {
		content.Details = codeObj.Details()
	}

	r.Ctx.JSON(codeObj.StatusCode(), content)
}

// ToResponseList 输出列表响应
func (r *Response) ToResponseList(codeObj *code.Code, list any, total int) {
	r.ToResponse(codeObj.WithData(ListRes{List: list, Total: total}))
}
