package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     string
		valid    bool
	}{
		{"Valid username", "alice", "alice", true},
		{"Valid username with surrounding spaces", "  bob  ", "bob", true},
		{"Valid maximum length", strings.Repeat("a", 64), strings.Repeat("a", 64), true},
		{"Invalid - empty", "", "", false},
		{"Invalid - whitespace only", " \t\n ", "", false},
		{"Invalid - too long", strings.Repeat("a", 65), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateUsername(tt.username)
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			assert.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestResolveDomain(t *testing.T) {
	t.Run("空值使用回落域名", func(t *testing.T) {
		got, err := ResolveDomain("", "sharklasers.com")
		require.NoError(t, err)
		assert.Equal(t, "sharklasers.com", got)
	})

	t.Run("大小写不敏感", func(t *testing.T) {
		got, err := ResolveDomain(" Spam4.ME ", DefaultDomain())
		require.NoError(t, err)
		assert.Equal(t, "spam4.me", got)
	})

	t.Run("未知域名被拒绝", func(t *testing.T) {
		_, err := ResolveDomain("example.com", DefaultDomain())
		assert.True(t, IsValidation(err))
	})
}

func TestValidateMessageIDs(t *testing.T) {
	t.Run("去重并去除空白", func(t *testing.T) {
		ids, err := ValidateMessageIDs([]string{"5", " 7 ", "", "5"})
		require.NoError(t, err)
		assert.Equal(t, []string{"5", "7"}, ids)
	})

	t.Run("全部为空时报错", func(t *testing.T) {
		_, err := ValidateMessageIDs([]string{"", "  "})
		assert.True(t, IsValidation(err))

		_, err = ValidateMessageIDs(nil)
		assert.True(t, IsValidation(err))
	})
}

func TestMaxSeqAndCursor(t *testing.T) {
	items := []MessageSummary{{ID: "5"}, {ID: "12"}, {ID: "welcome"}, {ID: "7"}}
	assert.Equal(t, int64(12), MaxSeq(items))
	assert.Equal(t, int64(0), MaxSeq(nil))

	var c SyncCursor
	c.Advance(12)
	c.Advance(3)
	assert.Equal(t, int64(12), c.LastSeq, "游标不能回退")

	c.MessageCount = 4
	c.Reset()
	assert.Equal(t, SyncCursor{}, c)
}

func TestMailboxSessionLocalPart(t *testing.T) {
	assert.Equal(t, "user1", MailboxSession{Address: "user1@grr.la"}.LocalPart())
	assert.Equal(t, "", MailboxSession{}.LocalPart())
}

func TestIsValidInterval(t *testing.T) {
	for _, n := range RefreshIntervals {
		assert.True(t, IsValidInterval(n))
	}
	assert.False(t, IsValidInterval(7))
	assert.True(t, IsValidInterval(DefaultRefreshInterval))
}
