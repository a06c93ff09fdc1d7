package middleware

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/tutorlink/internal/model"
)

// RegisterValidators 注册自定义校验标签：
//   - connstatus: 状态更新的目标值（accepted / rejected / cancelled）
//
// 同时让校验错误里的字段名使用 json / form 标签名，便于直接返回给客户端。
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v.RegisterValidation("connstatus", func(fl validator.FieldLevel) bool {
		return model.ConnectionStatus(fl.Field().String()).IsUpdateTarget()
	})
}
