package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"kieru/backend/internal/domain"
	"kieru/backend/internal/provider"
)

var (
	// ErrNoAddress 当前标签页还没有可用地址
	ErrNoAddress = errors.New("no active email address")
	// ErrStale 请求期间地址已变更，结果被丢弃
	ErrStale = errors.New("mailbox changed while the request was in flight")
)

// 面向用户的提示文案
const (
	MsgNewAddress     = "New email address created successfully!"
	MsgCustomAddress  = "Custom email address set successfully!"
	MsgForgotten      = "Email address forgotten"
	ErrMsgInit        = "Failed to initialize email address"
	ErrMsgLoad        = "Failed to load emails"
	ErrMsgRefresh     = "Failed to refresh emails"
	ErrMsgCustom      = "Failed to set custom email"
	ErrMsgFetch       = "Failed to fetch email content"
	ErrMsgNotFound    = "Email no longer exists"
	ErrMsgDelete      = "Failed to delete emails"
	ErrMsgForget      = "Failed to forget email address"
	neverRefreshedMsg = "Never"
)

// Gateway 控制器依赖的提供方操作，由 *provider.Gateway 实现
type Gateway interface {
	GetOrCreateAddress(ctx context.Context, lang, site string) (*domain.MailboxSession, error)
	SetAddress(ctx context.Context, username, lang, site string) (*domain.MailboxSession, error)
	CheckNew(ctx context.Context, sinceSeq int64) (*provider.ListResult, error)
	ListAll(ctx context.Context, offset int) (*provider.ListResult, error)
	FetchDetail(ctx context.Context, id string) (*domain.MessageDetail, error)
	DeleteMessages(ctx context.Context, ids []string) ([]string, error)
	Forget(ctx context.Context, address string) (bool, error)
}

// Phase 邮箱会话所处阶段
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseInitializing  Phase = "initializing"
	PhaseReady         Phase = "ready"
)

// TickOutcome 一次刷新的结果
type TickOutcome string

const (
	TickApplied  TickOutcome = "applied"  // 增量检查带回了新邮件
	TickFallback TickOutcome = "fallback" // 没有新邮件，已用全量列表校正
	TickSkipped  TickOutcome = "skipped"  // 已有刷新在进行、地址正在变更或尚无地址
	TickDropped  TickOutcome = "dropped"  // 协程池拒绝了任务
	TickFailed   TickOutcome = "failed"
	TickStale    TickOutcome = "stale" // 响应属于旧地址，已丢弃
)

// EventType 推送事件类型
type EventType string

const (
	EventNotification EventType = "notification"
	EventError        EventType = "error"
	EventState        EventType = "state"
)

// Event 推送给标签页的事件
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	State   *Snapshot `json:"state,omitempty"`
}

// Notifier 接收控制器产生的提示、错误与状态快照
type Notifier interface {
	Publish(sessionID string, event Event)
}

// Observer 记录刷新指标
type Observer interface {
	ObserveTick(outcome string)
	ObserveNewMessages(n int)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, Event) {}

type nopObserver struct{}

func (nopObserver) ObserveTick(string)     {}
func (nopObserver) ObserveNewMessages(int) {}

// Snapshot 邮箱状态的只读副本
type Snapshot struct {
	Phase           Phase                   `json:"phase"`
	Address         string                  `json:"address"`
	Domain          string                  `json:"domain"`
	Alias           string                  `json:"alias,omitempty"`
	Messages        []domain.MessageSummary `json:"messages"`
	LastSeq         int64                   `json:"lastSeq"`
	MessageCount    int                     `json:"messageCount"`
	Selected        *domain.MessageDetail   `json:"selected,omitempty"`
	LastRefreshTime *time.Time              `json:"lastRefreshTime,omitempty"`
	LastRefresh     string                  `json:"lastRefresh"`
	Refreshing      bool                    `json:"refreshing"`
	Error           string                  `json:"error,omitempty"`
}

// InitOptions Initialize 的参数
type InitOptions struct {
	ForceNew bool
	Domain   string // 为空时沿用当前域名
	Lang     string
}

// MailboxOptions MailboxService 的可选依赖
type MailboxOptions struct {
	SessionID     string
	DefaultDomain string
	DefaultLang   string
	Domains       []string // 允许的域名子集，为空表示全部提供方域名
	Notifier      Notifier
	Observer      Observer
	Logger        *zap.Logger
	Now           func() time.Time
}

// MailboxService 单个标签页的邮箱同步控制器。
//
// 并发约束：
//   - 同一时刻最多一个 Tick 在执行，后来者直接跳过
//   - 地址变更持有 opMu 写锁；Tick 用 TryRLock，遇到变更中直接跳过；详情与删除持有读锁
//   - 每次地址或列表重置都会递增 epoch，携带旧 epoch 的响应一律丢弃
type MailboxService struct {
	gateway  Gateway
	notifier Notifier
	observer Observer
	logger   *zap.Logger
	now      func() time.Time

	sessionID   string
	defaultLang string
	allowed     map[string]struct{}

	opMu     sync.RWMutex
	inFlight atomic.Bool

	mu          sync.Mutex
	epoch       uint64
	phase       Phase
	mailbox     domain.MailboxSession
	messages    []domain.MessageSummary
	cursor      domain.SyncCursor
	selected    *domain.MessageDetail
	lastRefresh time.Time
	errMsg      string
}

// NewMailboxService 创建邮箱同步控制器
func NewMailboxService(gateway Gateway, opts MailboxOptions) *MailboxService {
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultDomain == "" {
		opts.DefaultDomain = domain.DefaultDomain()
	}
	if opts.DefaultLang == "" {
		opts.DefaultLang = domain.DefaultLang
	}
	var allowed map[string]struct{}
	if len(opts.Domains) > 0 {
		allowed = make(map[string]struct{}, len(opts.Domains))
		for _, d := range opts.Domains {
			allowed[d] = struct{}{}
		}
	}
	return &MailboxService{
		allowed:     allowed,
		gateway:     gateway,
		notifier:    opts.Notifier,
		observer:    opts.Observer,
		logger:      opts.Logger.Named("mailbox"),
		now:         opts.Now,
		sessionID:   opts.SessionID,
		defaultLang: opts.DefaultLang,
		phase:       PhaseUninitialized,
		mailbox:     domain.MailboxSession{Domain: opts.DefaultDomain},
		messages:    []domain.MessageSummary{},
	}
}

// Initialize 获取或新建地址，并用全量列表填充初始状态。
//
// ForceNew 时在发起请求之前就清空地址、列表与游标，慢网络下不会在"新地址"下显示旧邮件。
// 非 ForceNew 失败时保留原有状态。
func (s *MailboxService) Initialize(ctx context.Context, opts InitOptions) error {
	site, err := s.resolveDomain(opts.Domain)
	if err != nil {
		return err
	}
	lang := s.lang(opts.Lang)

	if opts.ForceNew {
		s.mu.Lock()
		s.epoch++
		s.mailbox = domain.MailboxSession{Domain: site}
		s.resetListLocked()
		s.phase = PhaseInitializing
		s.errMsg = ""
		s.mu.Unlock()
		s.publishState()
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.phase = PhaseInitializing
	s.errMsg = ""
	s.mu.Unlock()

	var mailbox *domain.MailboxSession
	if opts.ForceNew {
		mailbox, err = s.gateway.SetAddress(ctx, provider.RandomLocalPart(), lang, site)
	} else {
		mailbox, err = s.gateway.GetOrCreateAddress(ctx, lang, site)
	}
	if err != nil {
		s.mu.Lock()
		if s.mailbox.Address == "" {
			s.phase = PhaseUninitialized
		} else {
			s.phase = PhaseReady
		}
		s.mu.Unlock()
		s.fail(ErrMsgInit, err)
		return &domain.InitError{Cause: err}
	}

	epoch := s.commitAddress(mailbox, site)
	s.logger.Info("mailbox address ready",
		zap.String("session_id", s.sessionID),
		zap.String("address", mailbox.Address),
		zap.Bool("force_new", opts.ForceNew),
	)

	s.populate(ctx, epoch)
	if opts.ForceNew {
		s.notify(MsgNewAddress)
	}
	s.publishState()
	return nil
}

// SetCustomAddress 切换到用户指定的前缀。
//
// 空白前缀在本地拒绝；失败时状态保持调用前的样子。
func (s *MailboxService) SetCustomAddress(ctx context.Context, username, site, lang string) error {
	name, err := domain.ValidateUsername(username)
	if err != nil {
		return err
	}
	site, err = s.resolveDomain(site)
	if err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	prevPhase := s.phase
	s.phase = PhaseInitializing
	s.mu.Unlock()

	mailbox, err := s.gateway.SetAddress(ctx, name, s.lang(lang), site)
	if err != nil {
		s.mu.Lock()
		s.phase = prevPhase
		s.mu.Unlock()
		s.fail(ErrMsgCustom, err)
		return err
	}

	epoch := s.commitAddress(mailbox, site)
	s.logger.Info("custom address set",
		zap.String("session_id", s.sessionID),
		zap.String("address", mailbox.Address),
	)

	s.populate(ctx, epoch)
	s.notify(MsgCustomAddress)
	s.publishState()
	return nil
}

// Tick 执行一次增量刷新，没有新邮件时退回全量列表以校正漂移。
//
// 已有刷新在进行时直接返回 TickSkipped，不排队。
func (s *MailboxService) Tick(ctx context.Context) (TickOutcome, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return s.observeTick(TickSkipped), nil
	}
	defer s.inFlight.Store(false)

	if !s.opMu.TryRLock() {
		return s.observeTick(TickSkipped), nil
	}
	defer s.opMu.RUnlock()

	s.mu.Lock()
	if s.mailbox.Address == "" {
		s.mu.Unlock()
		return s.observeTick(TickSkipped), nil
	}
	epoch := s.epoch
	since := s.cursor.LastSeq
	s.mu.Unlock()

	res, err := s.gateway.CheckNew(ctx, since)
	if err != nil {
		s.fail(ErrMsgRefresh, err)
		return s.observeTick(TickFailed), err
	}

	if len(res.Items) > 0 {
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return s.observeTick(TickStale), nil
		}
		fresh := s.prependLocked(res.Items)
		s.cursor.Advance(domain.MaxSeq(res.Items))
		if res.Count > 0 {
			s.cursor.MessageCount = res.Count
		} else {
			s.cursor.MessageCount += len(fresh)
		}
		s.lastRefresh = s.now()
		s.errMsg = ""
		s.mu.Unlock()

		if len(fresh) > 0 {
			s.observer.ObserveNewMessages(len(fresh))
			s.notify(NewMessagesNotice(len(fresh)))
		}
		s.publishState()
		return s.observeTick(TickApplied), nil
	}

	list, err := s.gateway.ListAll(ctx, 0)
	if err != nil {
		s.fail(ErrMsgRefresh, err)
		return s.observeTick(TickFailed), err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return s.observeTick(TickStale), nil
	}
	s.messages = list.Items
	s.cursor.Advance(domain.MaxSeq(list.Items))
	s.cursor.MessageCount = list.Count
	s.lastRefresh = s.now()
	s.errMsg = ""
	s.mu.Unlock()

	s.publishState()
	return s.observeTick(TickFallback), nil
}

// DeleteMessages 删除邮件。只有提供方确认删除的 ID 才会从本地列表移除。
func (s *MailboxService) DeleteMessages(ctx context.Context, ids []string) ([]string, error) {
	ids, err := domain.ValidateMessageIDs(ids)
	if err != nil {
		return nil, err
	}

	s.opMu.RLock()
	defer s.opMu.RUnlock()

	epoch, ok := s.activeEpoch()
	if !ok {
		return nil, ErrNoAddress
	}

	deleted, err := s.gateway.DeleteMessages(ctx, ids)
	if err != nil {
		s.fail(ErrMsgDelete, err)
		return nil, err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil, ErrStale
	}
	s.dropLocked(deleted)
	s.mu.Unlock()

	if len(deleted) > 0 {
		s.notify(DeletedNotice(len(deleted)))
	}
	s.publishState()
	return deleted, nil
}

// PurgeMessages 供转发层删除邮件，不产生提示；提供方确认的 ID 同样移出本地列表
func (s *MailboxService) PurgeMessages(ctx context.Context, ids []string) ([]string, error) {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	epoch, _ := s.activeEpoch()
	deleted, err := s.gateway.DeleteMessages(ctx, ids)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.epoch == epoch {
		s.dropLocked(deleted)
	}
	s.mu.Unlock()
	s.publishState()
	return deleted, nil
}

func (s *MailboxService) dropLocked(deleted []string) {
	gone := make(map[string]struct{}, len(deleted))
	for _, id := range deleted {
		gone[id] = struct{}{}
	}
	kept := s.messages[:0:0]
	removed := 0
	for _, m := range s.messages {
		if _, hit := gone[m.ID]; hit {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	s.cursor.MessageCount = max(s.cursor.MessageCount-removed, 0)
	if s.selected != nil {
		if _, hit := gone[s.selected.ID]; hit {
			s.selected = nil
		}
	}
}

// SelectMessage 获取并打开一封邮件；失败时保留之前的选中项。
func (s *MailboxService) SelectMessage(ctx context.Context, id string) (*domain.MessageDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.NewValidationError("email_id", "email ID is required")
	}

	s.opMu.RLock()
	defer s.opMu.RUnlock()

	epoch, ok := s.activeEpoch()
	if !ok {
		return nil, ErrNoAddress
	}

	detail, err := s.gateway.FetchDetail(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			s.fail(ErrMsgNotFound, err)
		} else {
			s.fail(ErrMsgFetch, err)
		}
		return nil, err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil, ErrStale
	}
	s.selected = detail
	for i := range s.messages {
		if s.messages[i].ID == detail.ID {
			s.messages[i].IsRead = true
			break
		}
	}
	s.mu.Unlock()

	s.publishState()
	return detail, nil
}

// Forget 让提供方忘记当前地址，并清空本地邮箱状态
func (s *MailboxService) Forget(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	address := s.mailbox.Address
	s.mu.Unlock()
	if address == "" {
		return ErrNoAddress
	}

	if _, err := s.gateway.Forget(ctx, address); err != nil {
		s.fail(ErrMsgForget, err)
		return err
	}

	s.clearAddress()
	s.logger.Info("mailbox address forgotten", zap.String("session_id", s.sessionID), zap.String("address", address))
	s.notify(MsgForgotten)
	s.publishState()
	return nil
}

// LookupAddress 供转发层读取会话地址。
//
// 与控制器共用同一个提供方会话，返回的地址与当前地址不同时按地址变更处理。
func (s *MailboxService) LookupAddress(ctx context.Context, lang, site string) (*domain.MailboxSession, error) {
	return s.adopt(ctx, site, func(site string) (*domain.MailboxSession, error) {
		return s.gateway.GetOrCreateAddress(ctx, s.lang(lang), site)
	})
}

// SwitchAddress 供转发层切换地址，成功后清空列表与游标并重新拉取。
func (s *MailboxService) SwitchAddress(ctx context.Context, username, lang, site string) (*domain.MailboxSession, error) {
	return s.adopt(ctx, site, func(site string) (*domain.MailboxSession, error) {
		return s.gateway.SetAddress(ctx, username, s.lang(lang), site)
	})
}

// ForgetAddress 供转发层让提供方忘记任意地址；命中当前地址时清空本地状态。
func (s *MailboxService) ForgetAddress(ctx context.Context, address string) (bool, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	ok, err := s.gateway.Forget(ctx, address)
	if err != nil || !ok {
		return ok, err
	}

	s.mu.Lock()
	current := s.mailbox.Address
	s.mu.Unlock()
	if !strings.EqualFold(current, address) {
		return ok, nil
	}

	s.clearAddress()
	s.logger.Info("mailbox address forgotten by router", zap.String("session_id", s.sessionID), zap.String("address", address))
	s.publishState()
	return ok, nil
}

// adopt 在写锁内执行一次地址调用，使进行中的 Tick 跳过、旧响应因 epoch 变化被丢弃
func (s *MailboxService) adopt(ctx context.Context, requested string, call func(site string) (*domain.MailboxSession, error)) (*domain.MailboxSession, error) {
	site, err := s.resolveDomain(requested)
	if err != nil {
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	mailbox, err := call(site)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	unchanged := s.mailbox.Address != "" && s.mailbox.Address == mailbox.Address
	s.mu.Unlock()
	if unchanged {
		return mailbox, nil
	}

	epoch := s.commitAddress(mailbox, site)
	s.logger.Info("mailbox address changed by router",
		zap.String("session_id", s.sessionID),
		zap.String("address", mailbox.Address),
	)
	s.populate(ctx, epoch)
	s.publishState()
	return mailbox, nil
}

// clearAddress 丢弃当前地址及其列表，回到未初始化状态
func (s *MailboxService) clearAddress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.mailbox = domain.MailboxSession{Domain: s.mailbox.Domain}
	s.resetListLocked()
	s.phase = PhaseUninitialized
	s.errMsg = ""
}

// CloseMessage 关闭当前打开的邮件
func (s *MailboxService) CloseMessage() {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
	s.publishState()
}

// DismissError 关闭错误横幅
func (s *MailboxService) DismissError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
	s.publishState()
}

// HasAddress 是否已有可用地址
func (s *MailboxService) HasAddress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mailbox.Address != ""
}

// Snapshot 返回当前状态的副本
func (s *MailboxService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Phase:        s.phase,
		Address:      s.mailbox.Address,
		Domain:       s.mailbox.Domain,
		Alias:        s.mailbox.Alias,
		Messages:     append([]domain.MessageSummary(nil), s.messages...),
		LastSeq:      s.cursor.LastSeq,
		MessageCount: s.cursor.MessageCount,
		LastRefresh:  FormatLastRefresh(s.now(), s.lastRefresh),
		Refreshing:   s.inFlight.Load(),
		Error:        s.errMsg,
	}
	if snap.Messages == nil {
		snap.Messages = []domain.MessageSummary{}
	}
	if s.selected != nil {
		detail := *s.selected
		snap.Selected = &detail
	}
	if !s.lastRefresh.IsZero() {
		t := s.lastRefresh
		snap.LastRefreshTime = &t
	}
	return snap
}

// Notify 推送一条提示，供调度器等外部组件使用
func (s *MailboxService) Notify(message string) {
	s.notify(message)
}

// commitAddress 写入新地址并清空列表，返回新的 epoch
func (s *MailboxService) commitAddress(mailbox *domain.MailboxSession, site string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.mailbox = *mailbox
	if s.mailbox.Domain == "" {
		s.mailbox.Domain = site
	}
	s.resetListLocked()
	s.lastRefresh = s.now()
	s.phase = PhaseReady
	return s.epoch
}

// populate 用全量列表填充刚切换的地址；失败时保留地址与空列表
func (s *MailboxService) populate(ctx context.Context, epoch uint64) {
	list, err := s.gateway.ListAll(ctx, 0)
	if err != nil {
		s.fail(ErrMsgLoad, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.messages = list.Items
	s.cursor.Advance(domain.MaxSeq(list.Items))
	s.cursor.MessageCount = list.Count
}

// prependLocked 把未见过的邮件按提供方顺序插到列表前面，返回实际新增的条目
func (s *MailboxService) prependLocked(items []domain.MessageSummary) []domain.MessageSummary {
	seen := make(map[string]struct{}, len(s.messages))
	for _, m := range s.messages {
		seen[m.ID] = struct{}{}
	}
	fresh := make([]domain.MessageSummary, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		fresh = append(fresh, item)
	}
	s.messages = append(fresh, s.messages...)
	return fresh
}

func (s *MailboxService) resetListLocked() {
	s.messages = []domain.MessageSummary{}
	s.cursor.Reset()
	s.selected = nil
	s.lastRefresh = time.Time{}
}

func (s *MailboxService) activeEpoch() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch, s.mailbox.Address != ""
}

func (s *MailboxService) currentDomain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mailbox.Domain
}

// resolveDomain 空值沿用当前域名，并限制在允许的子集内
func (s *MailboxService) resolveDomain(requested string) (string, error) {
	site, err := domain.ResolveDomain(requested, s.currentDomain())
	if err != nil {
		return "", err
	}
	if s.allowed != nil {
		if _, ok := s.allowed[site]; !ok {
			return "", domain.NewValidationError("domain", "domain not allowed")
		}
	}
	return site, nil
}

func (s *MailboxService) lang(lang string) string {
	if lang == "" {
		return s.defaultLang
	}
	return lang
}

// fail 记录错误横幅；已有状态不受影响
func (s *MailboxService) fail(message string, err error) {
	s.mu.Lock()
	s.errMsg = message
	s.mu.Unlock()

	s.logger.Warn(strings.ToLower(message),
		zap.String("session_id", s.sessionID),
		zap.Error(err),
	)
	s.notifier.Publish(s.sessionID, Event{Type: EventError, Message: message})
	s.publishState()
}

func (s *MailboxService) notify(message string) {
	s.notifier.Publish(s.sessionID, Event{Type: EventNotification, Message: message})
}

func (s *MailboxService) publishState() {
	snap := s.Snapshot()
	s.notifier.Publish(s.sessionID, Event{Type: EventState, State: &snap})
}

func (s *MailboxService) observeTick(outcome TickOutcome) TickOutcome {
	s.observer.ObserveTick(string(outcome))
	return outcome
}

// NewMessagesNotice 新邮件提示文案
func NewMessagesNotice(n int) string {
	if n == 1 {
		return "1 new message received!"
	}
	return fmt.Sprintf("%d new messages received!", n)
}

// DeletedNotice 删除成功提示文案
func DeletedNotice(n int) string {
	if n == 1 {
		return "Email deleted successfully!"
	}
	return fmt.Sprintf("%d emails deleted successfully!", n)
}

// FormatLastRefresh 把上次刷新时间渲染为 "Ns ago" / "Nm ago" / "Nh ago"
func FormatLastRefresh(now, last time.Time) string {
	if last.IsZero() {
		return neverRefreshedMsg
	}
	diff := int(now.Sub(last) / time.Second)
	if diff < 0 {
		diff = 0
	}
	switch {
	case diff < 60:
		return fmt.Sprintf("%ds ago", diff)
	case diff < 3600:
		return fmt.Sprintf("%dm ago", diff/60)
	default:
		return fmt.Sprintf("%dh ago", diff/3600)
	}
}
