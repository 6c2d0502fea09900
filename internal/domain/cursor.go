package domain

// SyncCursor 增量同步游标。
type SyncCursor struct {
	LastSeq      int64 `json:"lastSeq"`      // 当前地址下见过的最大邮件 ID
	MessageCount int   `json:"messageCount"` // 提供方报告的总数，仅供参考
}

// Advance 推进游标，LastSeq 只增不减。
func (c *SyncCursor) Advance(seq int64) {
	if seq > c.LastSeq {
		c.LastSeq = seq
	}
}

// Reset 在地址变更时归零。
func (c *SyncCursor) Reset() {
	c.LastSeq = 0
	c.MessageCount = 0
}
