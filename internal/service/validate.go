package service

import (
	"net/url"
	"regexp"
	"strings"
)

// MaxCodeLength 短码最大长度，与数据库列宽一致
const MaxCodeLength = 32

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// reservedCodes 与顶层固定路由同名的短码，gin 会优先匹配固定路由，无法跳转
var reservedCodes = map[string]struct{}{
	"api":     {},
	"health":  {},
	"metrics": {},
	"swagger": {},
}

// IsReservedCode 判断短码是否被系统路由占用
func IsReservedCode(code string) bool {
	_, ok := reservedCodes[code]
	return ok
}

// IsValidCode 判断短码是否只包含 URL 安全字符
func IsValidCode(code string) bool {
	return len(code) <= MaxCodeLength && codePattern.MatchString(code)
}

// NormalizeURL 校验原始 URL，返回去掉首尾空白后的原文
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", ErrInvalidURL
	}
	return raw, nil
}
