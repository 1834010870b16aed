package middleware

import (
	"strings"

	"github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/code"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
)

// LangWithTranslator picks the request language from ?lang= or the lang header.
// The choice is stored on the request only, the global default is untouched.
// LangWithTranslator 创建带翻译器的语言中间件
func LangWithTranslator(uni *ut.UniversalTranslator) gin.HandlerFunc {

	return func(c *gin.Context) {

		var lang string

		if s, exist := c.GetQuery("lang"); exist {
			lang = s
		} else if s = c.GetHeader("lang"); len(s) != 0 {
			lang = s
		} else if s = c.GetHeader("Accept-Language"); len(s) != 0 {
			lang = strings.SplitN(strings.SplitN(s, ",", 2)[0], ";", 2)[0]
		}

		lang = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "-", "_"))
		if lang == "zh" {
			lang = code.LangZH
		}

		if trans, found := uni.GetTranslator(lang); found {
			c.Set(app.ContextTransKey, trans)
		} else {
			trans, _ := uni.GetTranslator(code.LangEN)
			c.Set(app.ContextTransKey, trans)
		}
		if lang == code.LangZH {
			c.Set(app.ContextLangKey, code.LangZH)
		} else {
			c.Set(app.ContextLangKey, code.LangEN)
		}

		c.Next()
	}
}
