package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"

	"kieru/backend/internal/domain"
)

// 提供方函数名
const (
	FuncGetEmailAddress = "get_email_address"
	FuncSetEmailUser    = "set_email_user"
	FuncCheckEmail      = "check_email"
	FuncGetEmailList    = "get_email_list"
	FuncFetchEmail      = "fetch_email"
	FuncDelEmail        = "del_email"
	FuncForgetMe        = "forget_me"
)

// ListResult check_email / get_email_list 的归一化结果
type ListResult struct {
	Items []domain.MessageSummary
	Count int    // 提供方报告的总数
	Email string // 提供方回显的地址，可能为空
	Alias string
}

// Gateway 将共享 Client 绑定到单个标签页的 Session。
type Gateway struct {
	client      *Client
	session     *Session
	defaultLang string
}

// NewGateway 创建网关
func NewGateway(client *Client, session *Session, defaultLang string) *Gateway {
	if defaultLang == "" {
		defaultLang = domain.DefaultLang
	}
	return &Gateway{client: client, session: session, defaultLang: defaultLang}
}

// Session 返回网关持有的提供方会话
func (g *Gateway) Session() *Session {
	return g.session
}

// GetOrCreateAddress 返回会话已有地址，没有则由提供方分配一个。
func (g *Gateway) GetOrCreateAddress(ctx context.Context, lang, site string) (*domain.MailboxSession, error) {
	params := url.Values{}
	params.Set("lang", g.lang(lang))
	return g.address(ctx, FuncGetEmailAddress, site, params)
}

// SetAddress 切换到指定前缀的地址，成功后提供方会下发新的 sid_token。
func (g *Gateway) SetAddress(ctx context.Context, username, lang, site string) (*domain.MailboxSession, error) {
	params := url.Values{}
	params.Set("email_user", username)
	params.Set("lang", g.lang(lang))
	return g.address(ctx, FuncSetEmailUser, site, params)
}

func (g *Gateway) address(ctx context.Context, fn, site string, params url.Values) (*domain.MailboxSession, error) {
	body, err := g.client.call(ctx, g.session, fn, site, params)
	if err != nil {
		return nil, err
	}
	var p addressPayload
	if err := decode(fn, body, &p); err != nil {
		return nil, err
	}
	if site == "" {
		site = g.session.Site()
	}
	mailbox, err := p.toMailbox(site)
	if err != nil {
		return nil, &domain.GatewayError{Op: fn, Cause: err}
	}
	g.session.setSite(site)
	return mailbox, nil
}

// CheckNew 返回 ID 大于 sinceSeq 的邮件。
func (g *Gateway) CheckNew(ctx context.Context, sinceSeq int64) (*ListResult, error) {
	params := url.Values{}
	params.Set("seq", strconv.FormatInt(sinceSeq, 10))
	return g.list(ctx, FuncCheckEmail, params)
}

// ListAll 从 offset 开始返回收件箱列表。
func (g *Gateway) ListAll(ctx context.Context, offset int) (*ListResult, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	return g.list(ctx, FuncGetEmailList, params)
}

func (g *Gateway) list(ctx context.Context, fn string, params url.Values) (*ListResult, error) {
	body, err := g.client.call(ctx, g.session, fn, "", params)
	if err != nil {
		return nil, err
	}
	var p listPayload
	if err := decode(fn, body, &p); err != nil {
		return nil, err
	}
	result, err := p.toResult()
	if err != nil {
		return nil, &domain.GatewayError{Op: fn, Cause: err}
	}
	return result, nil
}

// FetchDetail 获取单封邮件全文；提供方对不存在的 ID 返回 false。
func (g *Gateway) FetchDetail(ctx context.Context, id string) (*domain.MessageDetail, error) {
	params := url.Values{}
	params.Set("email_id", id)
	body, err := g.client.call(ctx, g.session, FuncFetchEmail, "", params)
	if err != nil {
		return nil, err
	}
	if isFalse(body) {
		return nil, &domain.NotFoundError{Kind: "message", ID: id}
	}
	var p detailPayload
	if err := decode(FuncFetchEmail, body, &p); err != nil {
		return nil, err
	}
	detail, err := p.toDetail()
	if err != nil {
		return nil, &domain.GatewayError{Op: FuncFetchEmail, Cause: err}
	}
	return detail, nil
}

// DeleteMessages 删除一组邮件，返回提供方确认删除的 ID。
func (g *Gateway) DeleteMessages(ctx context.Context, ids []string) ([]string, error) {
	params := url.Values{}
	for i, id := range ids {
		params.Set(fmt.Sprintf("email_ids[%d]", i), id)
	}
	body, err := g.client.call(ctx, g.session, FuncDelEmail, "", params)
	if err != nil {
		return nil, err
	}
	var p deletePayload
	if err := decode(FuncDelEmail, body, &p); err != nil {
		return nil, err
	}
	deleted, err := p.ids()
	if err != nil {
		return nil, &domain.GatewayError{Op: FuncDelEmail, Cause: err}
	}
	return deleted, nil
}

// Forget 让提供方忘记当前会话与地址的绑定。
func (g *Gateway) Forget(ctx context.Context, address string) (bool, error) {
	params := url.Values{}
	params.Set("email_addr", address)
	body, err := g.client.call(ctx, g.session, FuncForgetMe, "", params)
	if err != nil {
		return false, err
	}
	var ok flexBool
	if err := decode(FuncForgetMe, body, &ok); err != nil {
		return false, err
	}
	return bool(ok), nil
}

func (g *Gateway) lang(lang string) string {
	if lang == "" {
		return g.defaultLang
	}
	return lang
}

func isFalse(body []byte) bool {
	body = bytes.TrimSpace(body)
	return bytes.Equal(body, []byte("false")) || bytes.Equal(body, []byte("null"))
}
