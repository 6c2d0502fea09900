package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"kieru/backend/internal/domain"
)

// 提供方的数字字段时而是字符串时而是数字，统一在边界处归一化。

// flexString 接受字符串、数字或 null。
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// flexInt 接受数字或数字字符串，空串视为 0。
type flexInt int64

func (n *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(s), 64)
		if ferr != nil {
			return err
		}
		v = int64(f)
	}
	*n = flexInt(v)
	return nil
}

// flexBool 接受 true/false、0/1 以及 "0"/"1"。
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*b = true
		return nil
	case "false", "null":
		*b = false
		return nil
	}
	var n flexInt
	if err := n.UnmarshalJSON(data); err != nil {
		return err
	}
	*b = n != 0
	return nil
}

var errMalformed = errors.New("malformed response")

func malformed(field string) error {
	return errors.Join(errMalformed, errors.New("missing "+field))
}

// addressPayload get_email_address / set_email_user 的响应。
type addressPayload struct {
	EmailAddr      *string    `json:"email_addr"`
	EmailTimestamp flexInt    `json:"email_timestamp"`
	Alias          flexString `json:"alias"`
	AliasError     flexString `json:"alias_error"`
	Site           flexString `json:"site"`
}

func (p *addressPayload) toMailbox(site string) (*domain.MailboxSession, error) {
	if p.EmailAddr == nil || *p.EmailAddr == "" {
		return nil, malformed("email_addr")
	}
	if p.Site != "" {
		site = string(p.Site)
	}
	created := time.Now()
	if p.EmailTimestamp > 0 {
		created = time.Unix(int64(p.EmailTimestamp), 0)
	}
	return &domain.MailboxSession{
		Address:   *p.EmailAddr,
		Domain:    site,
		Alias:     string(p.Alias),
		CreatedAt: created,
	}, nil
}

// itemPayload 邮件列表中的一项。
type itemPayload struct {
	MailID        *flexString `json:"mail_id"`
	MailFrom      flexString  `json:"mail_from"`
	MailSubject   flexString  `json:"mail_subject"`
	MailExcerpt   flexString  `json:"mail_excerpt"`
	MailTimestamp flexInt     `json:"mail_timestamp"`
	MailRead      flexBool    `json:"mail_read"`
	MailDate      flexString  `json:"mail_date"`
	Att           flexInt     `json:"att"`
}

func (p *itemPayload) toSummary() (domain.MessageSummary, error) {
	if p.MailID == nil || *p.MailID == "" {
		return domain.MessageSummary{}, malformed("mail_id")
	}
	return domain.MessageSummary{
		ID:            string(*p.MailID),
		From:          string(p.MailFrom),
		Subject:       string(p.MailSubject),
		Excerpt:       string(p.MailExcerpt),
		Timestamp:     int64(p.MailTimestamp),
		IsRead:        bool(p.MailRead),
		Date:          string(p.MailDate),
		HasAttachment: p.Att > 0,
	}, nil
}

// listPayload check_email / get_email_list 的响应。
type listPayload struct {
	List  *[]itemPayload `json:"list"`
	Count flexInt        `json:"count"`
	Email flexString     `json:"email"`
	Alias flexString     `json:"alias"`
	TS    flexInt        `json:"ts"`
}

func (p *listPayload) toResult() (*ListResult, error) {
	if p.List == nil {
		return nil, malformed("list")
	}
	items := make([]domain.MessageSummary, 0, len(*p.List))
	for i := range *p.List {
		item, err := (*p.List)[i].toSummary()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &ListResult{
		Items: items,
		Count: int(p.Count),
		Email: string(p.Email),
		Alias: string(p.Alias),
	}, nil
}

// detailPayload fetch_email 的响应。
type detailPayload struct {
	itemPayload
	MailRecipient flexString `json:"mail_recipient"`
	MailBody      flexString `json:"mail_body"`
	ContentType   flexString `json:"content_type"`
}

func (p *detailPayload) toDetail() (*domain.MessageDetail, error) {
	summary, err := p.toSummary()
	if err != nil {
		return nil, err
	}
	return &domain.MessageDetail{
		MessageSummary: summary,
		Recipient:      string(p.MailRecipient),
		Body:           string(p.MailBody),
		ContentType:    string(p.ContentType),
	}, nil
}

// deletePayload del_email 的响应。
type deletePayload struct {
	DeletedIDs *[]flexString `json:"deleted_ids"`
}

func (p *deletePayload) ids() ([]string, error) {
	if p.DeletedIDs == nil {
		return nil, malformed("deleted_ids")
	}
	out := make([]string, 0, len(*p.DeletedIDs))
	for _, id := range *p.DeletedIDs {
		if id != "" {
			out = append(out, string(id))
		}
	}
	return out, nil
}

// tokenPayload 用于从任意对象响应中提取 sid_token。
type tokenPayload struct {
	SidToken string `json:"sid_token"`
}
