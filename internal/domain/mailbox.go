package domain

import "time"

// MailboxSession 表示当前标签页持有的一次性邮箱。
//
// Address 在首次初始化成功之前为空；Domain 始终是 EmailDomains 中的一个值。
// 提供方下发的 sid_token 由 provider.Session 单独持有，不在这里序列化。
type MailboxSession struct {
	Address   string    `json:"address"`
	Domain    string    `json:"domain"`
	Alias     string    `json:"alias,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// LocalPart 返回地址 @ 之前的部分。
func (m MailboxSession) LocalPart() string {
	for i := len(m.Address) - 1; i >= 0; i-- {
		if m.Address[i] == '@' {
			return m.Address[:i]
		}
	}
	return m.Address
}
