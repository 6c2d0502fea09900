package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxLocalPartLength RFC 5322 本地部分最大长度
const MaxLocalPartLength = 64

// ValidateUsername 校验自定义邮箱前缀并返回去除首尾空白后的值。
//
// 只做最基本的拒绝（空值、超长）；字符清洗由提供方完成。
func ValidateUsername(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return "", NewValidationError("email_user", "email user is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxLocalPartLength {
		return "", NewValidationError("email_user", "email user too long (max 64 chars)")
	}
	return trimmed, nil
}

// ResolveDomain 解析请求的域名：空值回落到 fallback，非法值返回校验错误。
func ResolveDomain(requested, fallback string) (string, error) {
	if strings.TrimSpace(requested) == "" {
		requested = fallback
	}
	d, ok := FindDomain(requested)
	if !ok {
		return "", NewValidationError("domain", "domain not allowed")
	}
	return d.Value, nil
}

// ValidateMessageIDs 去掉空白 ID 和重复 ID，全部为空时返回校验错误。
func ValidateMessageIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, NewValidationError("email_ids", "email IDs are required")
	}
	return out, nil
}
