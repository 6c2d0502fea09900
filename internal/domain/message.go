package domain

import "strconv"

// MessageSummary 邮件列表条目。
//
// ID 由提供方分配，是纯数字字符串；提供方返回的顺序不保证稳定，合并时以 ID 为准。
type MessageSummary struct {
	ID            string `json:"id"`
	From          string `json:"from"`
	Subject       string `json:"subject"`
	Excerpt       string `json:"excerpt"`
	Timestamp     int64  `json:"timestamp"` // 秒级 Unix 时间戳
	IsRead        bool   `json:"isRead"`
	Date          string `json:"date,omitempty"`
	HasAttachment bool   `json:"hasAttachment"`
}

// Seq 将邮件 ID 解析为序号，非数字 ID 返回 false。
func (m MessageSummary) Seq() (int64, bool) {
	n, err := strconv.ParseInt(m.ID, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// MessageDetail 单封邮件的完整内容，只在被选中时按需获取。
type MessageDetail struct {
	MessageSummary
	Recipient   string `json:"recipient"`
	Body        string `json:"body"`
	ContentType string `json:"contentType"`
}

// MaxSeq 返回一组邮件中最大的数字 ID，没有可解析的 ID 时返回 0。
func MaxSeq(items []MessageSummary) int64 {
	var max int64
	for _, item := range items {
		if seq, ok := item.Seq(); ok && seq > max {
			max = seq
		}
	}
	return max
}
