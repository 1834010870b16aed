package app

import (
	"strings"

	"github.com/haierkeys/library-backup-service/pkg/convert"

	ut "github.com/go-playground/universal-translator"
	val "github.com/go-playground/validator/v10"

	"github.com/gin-gonic/gin"
)

// ContextTransKey is where the lang middleware stores the translator
const ContextTransKey = "trans"

type ValidError struct {
	Key     string
	Message string
}

type ValidErrors []*ValidError

func (v *ValidError) Error() string {
	return v.Message
}

func (v ValidErrors) Error() string {
	return strings.Join(v.Errors(), ",")
}

func (v ValidErrors) Errors() []string {
	var errs []string
	for _, err := range v {
		errs = append(errs, err.Error())
	}
	return errs
}

// ErrorsToString 以逗号拼接所有错误
func (v ValidErrors) ErrorsToString() string {
	return strings.Join(v.Errors(), ",")
}

// Maps returns field → message
func (v ValidErrors) Maps() map[string]string {
	m := make(map[string]string, len(v))
	for _, err := range v {
		m[err.Key] = err.Message
	}
	return m
}

// BindAndValid binds the query (GET) or body into v and validates it, translating
// messages with the request translator when present. Path params are read by the handler.
// BindAndValid 绑定并校验参数，错误信息按请求语言翻译
func BindAndValid(c *gin.Context, v any) (bool, ValidErrors) {
	if err := c.ShouldBind(v); err != nil {
		return false, toValidErrors(c, err)
	}
	return true, nil
}

// ParamInt64 parses a positive integer path parameter.
// ParamInt64 解析正整数路径参数
func ParamInt64(c *gin.Context, name string) (int64, bool) {
	return convert.StrTo(c.Param(name)).PositiveInt64()
}

func toValidErrors(c *gin.Context, err error) ValidErrors {
	verrs, ok := err.(val.ValidationErrors)
	if !ok {
		return ValidErrors{&ValidError{Key: "body", Message: err.Error()}}
	}

	var trans ut.Translator
	if v, exists := c.Get(ContextTransKey); exists {
		trans, _ = v.(ut.Translator)
	}

	errs := make(ValidErrors, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Error()
		if trans != nil {
			msg = fe.Translate(trans)
		}
		errs = append(errs, &ValidError{Key: fe.Field(), Message: msg})
	}
	return errs
}
