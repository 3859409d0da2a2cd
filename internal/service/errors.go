package service

import "errors"

var (
	ErrInvalidURL        = errors.New("无效的 URL，仅支持 http/https 绝对地址")
	ErrInvalidCustomCode = errors.New("自定义短码只能包含字母、数字、连字符和下划线，且不超过 32 个字符")
	ErrCodeTaken         = errors.New("自定义短码已被占用")
	ErrNotFound          = errors.New("短链接不存在")
	// ErrCodeExhausted 多次生成的短码均冲突
	ErrCodeExhausted = errors.New("短码生成失败，请稍后重试")
)
