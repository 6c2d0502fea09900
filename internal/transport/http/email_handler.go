package httptransport

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kieru/backend/internal/domain"
	"kieru/backend/internal/middleware"
	"kieru/backend/internal/provider"
	"kieru/backend/internal/service"
)

// /api/email 的 action 取值
const (
	ActionGetAddress    = "get_address"
	ActionGetNewAddress = "get_new_address"
	ActionCheckEmail    = "check_email"
	ActionGetList       = "get_list"
	ActionFetchEmail    = "fetch_email"
	ActionSetUser       = "set_user"
	ActionDeleteEmails  = "delete_emails"
	ActionForgetMe      = "forget_me"
	ActionCreateNew     = "create_new"
)

// RoutedMailbox 转发层依赖的会话操作。
//
// 改变地址的动作经由同步控制器执行，控制器的列表与游标随地址一起重置；只读动作直达提供方。
type RoutedMailbox interface {
	LookupAddress(ctx context.Context, lang, site string) (*domain.MailboxSession, error)
	SwitchAddress(ctx context.Context, username, lang, site string) (*domain.MailboxSession, error)
	ForgetAddress(ctx context.Context, address string) (bool, error)
	PurgeMessages(ctx context.Context, ids []string) ([]string, error)
	CheckNew(ctx context.Context, sinceSeq int64) (*provider.ListResult, error)
	ListAll(ctx context.Context, offset int) (*provider.ListResult, error)
	FetchDetail(ctx context.Context, id string) (*domain.MessageDetail, error)
}

// routedMailbox 把标签页的控制器与提供方网关组合成 RoutedMailbox
type routedMailbox struct {
	*service.MailboxService
	reader service.Gateway
}

func (m routedMailbox) CheckNew(ctx context.Context, sinceSeq int64) (*provider.ListResult, error) {
	return m.reader.CheckNew(ctx, sinceSeq)
}

func (m routedMailbox) ListAll(ctx context.Context, offset int) (*provider.ListResult, error) {
	return m.reader.ListAll(ctx, offset)
}

func (m routedMailbox) FetchDetail(ctx context.Context, id string) (*domain.MessageDetail, error) {
	return m.reader.FetchDetail(ctx, id)
}

// EmailHandler 同源的 /api/email 转发层，把浏览器动作翻译为提供方函数调用
type EmailHandler struct {
	domains     map[string]struct{}
	defaultLang string
	logger      *zap.Logger
	mailbox     func(c *gin.Context) (RoutedMailbox, bool)
}

// NewEmailHandler 创建 /api/email 处理器；domains 为允许的域名子集
func NewEmailHandler(domains []string, defaultLang string, logger *zap.Logger) *EmailHandler {
	allowed := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		allowed[d] = struct{}{}
	}
	if defaultLang == "" {
		defaultLang = domain.DefaultLang
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailHandler{
		domains:     allowed,
		defaultLang: defaultLang,
		logger:      logger.Named("email"),
		mailbox:     sessionMailbox,
	}
}

func sessionMailbox(c *gin.Context) (RoutedMailbox, bool) {
	sess, ok := middleware.CurrentSession(c)
	if !ok || sess.Gateway == nil || sess.Mailbox == nil {
		return nil, false
	}
	return routedMailbox{MailboxService: sess.Mailbox, reader: sess.Gateway}, true
}

type emailRequest struct {
	Action    string   `json:"action"`
	EmailUser string   `json:"email_user,omitempty"`
	EmailIDs  []string `json:"email_ids,omitempty"`
	EmailAddr string   `json:"email_addr,omitempty"`
	Domain    string   `json:"domain,omitempty"`
	Lang      string   `json:"lang,omitempty"`
}

type addressData struct {
	EmailAddr      string `json:"email_addr"`
	EmailTimestamp int64  `json:"email_timestamp"`
	Alias          string `json:"alias,omitempty"`
	Site           string `json:"site"`
}

type mailItem struct {
	MailID        string `json:"mail_id"`
	MailFrom      string `json:"mail_from"`
	MailSubject   string `json:"mail_subject"`
	MailExcerpt   string `json:"mail_excerpt"`
	MailTimestamp int64  `json:"mail_timestamp"`
	MailRead      int    `json:"mail_read"`
	MailDate      string `json:"mail_date,omitempty"`
	Att           int    `json:"att"`
}

type listData struct {
	List  []mailItem `json:"list"`
	Count int        `json:"count"`
	Email string     `json:"email,omitempty"`
	Alias string     `json:"alias,omitempty"`
}

type detailData struct {
	mailItem
	MailRecipient string `json:"mail_recipient"`
	MailBody      string `json:"mail_body"`
	ContentType   string `json:"content_type"`
}

type deleteData struct {
	DeletedIDs []string `json:"deleted_ids"`
}

// Get godoc
// @Summary 读取类邮箱动作
// @Description 按 action 转发到提供方：get_address、get_new_address、check_email、get_list、fetch_email
// @Tags Email
// @Produce json
// @Param action query string true "动作"
// @Param seq query int false "check_email 的起始序号" default(0)
// @Param offset query int false "get_list 的偏移" default(0)
// @Param email_id query string false "fetch_email 的邮件 ID"
// @Param domain query string false "邮件域名"
// @Param lang query string false "语言" default(en)
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/email [get]
func (h *EmailHandler) Get(c *gin.Context) {
	mb, ok := h.mailbox(c)
	if !ok {
		Error(c, 401, MsgSessionRequired)
		return
	}

	action := c.Query("action")
	site, ok := h.site(c.Query("domain"))
	if !ok {
		BadRequest(c, MsgInvalidDomain)
		return
	}
	lang := h.lang(c.Query("lang"))
	ctx := c.Request.Context()

	var (
		data any
		err  error
	)
	switch action {
	case ActionGetAddress:
		data, err = h.address(mb.LookupAddress(ctx, lang, site))
	case ActionGetNewAddress:
		data, err = h.address(mb.SwitchAddress(ctx, provider.RandomLocalPart(), lang, site))
	case ActionCheckEmail:
		seq, perr := nonNegative(c.DefaultQuery("seq", "0"))
		if perr != nil {
			BadRequest(c, MsgInvalidSeq)
			return
		}
		data, err = h.list(mb.CheckNew(ctx, seq))
	case ActionGetList:
		offset, perr := nonNegative(c.DefaultQuery("offset", "0"))
		if perr != nil {
			BadRequest(c, MsgInvalidOffset)
			return
		}
		data, err = h.list(mb.ListAll(ctx, int(offset)))
	case ActionFetchEmail:
		id := strings.TrimSpace(c.Query("email_id"))
		if id == "" {
			BadRequest(c, MsgEmailIDRequired)
			return
		}
		data, err = h.detail(mb.FetchDetail(ctx, id))
	default:
		BadRequest(c, MsgInvalidAction)
		return
	}

	h.respond(c, action, data, err)
}

// Post godoc
// @Summary 写入类邮箱动作
// @Description 按 action 转发到提供方：set_user、delete_emails、forget_me、create_new
// @Tags Email
// @Accept json
// @Produce json
// @Param request body emailRequest true "动作参数"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/email [post]
func (h *EmailHandler) Post(c *gin.Context) {
	mb, ok := h.mailbox(c)
	if !ok {
		Error(c, 401, MsgSessionRequired)
		return
	}

	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	site, ok := h.site(req.Domain)
	if !ok {
		BadRequest(c, MsgInvalidDomain)
		return
	}
	lang := h.lang(req.Lang)
	ctx := c.Request.Context()

	var (
		data any
		err  error
	)
	switch req.Action {
	case ActionSetUser:
		if strings.TrimSpace(req.EmailUser) == "" {
			BadRequest(c, MsgEmailUserMissing)
			return
		}
		username, verr := domain.ValidateUsername(req.EmailUser)
		if verr != nil {
			abortRouter(c, verr)
			return
		}
		data, err = h.address(mb.SwitchAddress(ctx, username, lang, site))
	case ActionDeleteEmails:
		ids, verr := domain.ValidateMessageIDs(req.EmailIDs)
		if verr != nil {
			BadRequest(c, MsgEmailIDsRequired)
			return
		}
		data, err = h.deleted(mb.PurgeMessages(ctx, ids))
	case ActionForgetMe:
		addr := strings.TrimSpace(req.EmailAddr)
		if addr == "" {
			BadRequest(c, MsgEmailAddrMissing)
			return
		}
		data, err = mb.ForgetAddress(ctx, addr)
	case ActionCreateNew:
		data, err = h.address(mb.SwitchAddress(ctx, provider.RandomLocalPart(), lang, site))
	default:
		BadRequest(c, MsgInvalidAction)
		return
	}

	h.respond(c, req.Action, data, err)
}

func (h *EmailHandler) respond(c *gin.Context, action string, data any, err error) {
	if err != nil {
		if c.Request.Context().Err() == context.Canceled {
			h.logger.Debug("client went away", zap.String("action", action))
		} else {
			h.logger.Warn("provider action failed", zap.String("action", action), zap.Error(err))
		}
		abortRouter(c, err)
		return
	}
	Success(c, data)
}

// site 校验域名参数；空值交由控制器沿用会话当前域名
func (h *EmailHandler) site(requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "", true
	}
	if _, ok := h.domains[requested]; !ok {
		return "", false
	}
	return requested, true
}

func (h *EmailHandler) lang(lang string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	return h.defaultLang
}

func (h *EmailHandler) address(mailbox *domain.MailboxSession, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	data := addressData{
		EmailAddr: mailbox.Address,
		Alias:     mailbox.Alias,
		Site:      mailbox.Domain,
	}
	if !mailbox.CreatedAt.IsZero() {
		data.EmailTimestamp = mailbox.CreatedAt.Unix()
	}
	return data, nil
}

func (h *EmailHandler) list(result *provider.ListResult, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	items := make([]mailItem, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, toMailItem(item))
	}
	return listData{List: items, Count: result.Count, Email: result.Email, Alias: result.Alias}, nil
}

func (h *EmailHandler) detail(detail *domain.MessageDetail, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return detailData{
		mailItem:      toMailItem(detail.MessageSummary),
		MailRecipient: detail.Recipient,
		MailBody:      detail.Body,
		ContentType:   detail.ContentType,
	}, nil
}

func (h *EmailHandler) deleted(ids []string, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return deleteData{DeletedIDs: ids}, nil
}

func toMailItem(m domain.MessageSummary) mailItem {
	item := mailItem{
		MailID:        m.ID,
		MailFrom:      m.From,
		MailSubject:   m.Subject,
		MailExcerpt:   m.Excerpt,
		MailTimestamp: m.Timestamp,
		MailDate:      m.Date,
	}
	if m.IsRead {
		item.MailRead = 1
	}
	if m.HasAttachment {
		item.Att = 1
	}
	return item
}

func nonNegative(raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
