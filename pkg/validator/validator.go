// Package validator plugs go-playground/validator into gin binding and registers
// the tags used by the backup DTOs.
// Package validator 将 go-playground/validator 接入 gin 绑定，并注册自定义校验标签
package validator

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// CustomValidator implements binding.StructValidator.
type CustomValidator struct {
	once     sync.Once
	validate *validator.Validate
}

// NewCustomValidator 创建验证器
func NewCustomValidator() *CustomValidator {
	return &CustomValidator{}
}

func (v *CustomValidator) ValidateStruct(obj any) error {
	if kindOfData(obj) != reflect.Struct {
		return nil
	}
	v.lazyinit()
	return v.validate.Struct(obj)
}

func (v *CustomValidator) Engine() any {
	v.lazyinit()
	return v.validate
}

func (v *CustomValidator) lazyinit() {
	v.once.Do(func() {
		v.validate = validator.New()
		v.validate.SetTagName("binding")
	})
}

func kindOfData(data any) reflect.Kind {
	value := reflect.ValueOf(data)
	kind := value.Kind()
	if kind == reflect.Ptr {
		kind = value.Elem().Kind()
	}
	return kind
}

var (
	shareCodePattern   = regexp.MustCompile(`^[A-Z0-9]{8}$`)
	libraryNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	versionPattern     = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)
)

// RegisterCustom adds the project tags to the gin validator engine:
// share_code, library_name, version_label.
// RegisterCustom 注册自定义校验标签
func RegisterCustom() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return Register(v)
}

// Register adds the custom tags to v.
func Register(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"share_code": func(fl validator.FieldLevel) bool {
			return shareCodePattern.MatchString(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
		},
		"library_name": func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return libraryNamePattern.MatchString(s) && !strings.Contains(s, "..")
		},
		"version_label": func(fl validator.FieldLevel) bool {
			return versionPattern.MatchString(fl.Field().String())
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}
