package domain

import "strings"

// EmailDomain 提供方可用的邮件域名。
type EmailDomain struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// EmailDomains 提供方允许的域名列表，第一项为默认值。
var EmailDomains = []EmailDomain{
	{Value: "grr.la", Label: "grr.la", Description: "Short and simple"},
	{Value: "sharklasers.com", Label: "sharklasers.com", Description: "Popular choice"},
	{Value: "guerrillamail.info", Label: "guerrillamail.info", Description: "Info domain"},
	{Value: "guerrillamail.biz", Label: "guerrillamail.biz", Description: "Business domain"},
	{Value: "guerrillamail.com", Label: "guerrillamail.com", Description: "Main domain"},
	{Value: "guerrillamail.de", Label: "guerrillamail.de", Description: "German domain"},
	{Value: "guerrillamail.net", Label: "guerrillamail.net", Description: "Network domain"},
	{Value: "guerrillamail.org", Label: "guerrillamail.org", Description: "Organization domain"},
	{Value: "guerrillamailblock.com", Label: "guerrillamailblock.com", Description: "Block domain"},
	{Value: "pokemail.net", Label: "pokemail.net", Description: "Pokemon themed"},
	{Value: "spam4.me", Label: "spam4.me", Description: "Short spam domain"},
}

// DefaultLang 未指定语言时使用的区域代码。
const DefaultLang = "en"

// RefreshIntervals 允许的自动刷新间隔（单位数）。
var RefreshIntervals = []int{3, 5, 10, 15, 30}

// DefaultRefreshInterval 默认刷新间隔。
const DefaultRefreshInterval = 5

// DefaultDomain 返回默认域名。
func DefaultDomain() string {
	return EmailDomains[0].Value
}

// DomainValues 返回全部域名值。
func DomainValues() []string {
	out := make([]string, 0, len(EmailDomains))
	for _, d := range EmailDomains {
		out = append(out, d.Value)
	}
	return out
}

// FindDomain 按值查找域名，不区分大小写。
func FindDomain(value string) (EmailDomain, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, d := range EmailDomains {
		if d.Value == value {
			return d, true
		}
	}
	return EmailDomain{}, false
}

// IsValidInterval 检查刷新间隔是否在允许集合内。
func IsValidInterval(n int) bool {
	for _, v := range RefreshIntervals {
		if v == n {
			return true
		}
	}
	return false
}
