package handler

import (
	"sync"

	"shortlink-analytics/internal/service"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// registerValidators 在 gin 的校验引擎上注册 shortcode 规则
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("shortcode", func(fl validator.FieldLevel) bool {
			return service.IsValidCode(fl.Field().String())
		})
	})
}
