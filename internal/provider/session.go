package provider

import "sync"

// Session 单个标签页与提供方之间的会话状态。
//
// sid_token 只会被成功响应覆盖；site 只在携带域名的调用成功后提交。
type Session struct {
	mu    sync.RWMutex
	token string
	site  string
}

// NewSession 以指定域名创建会话，尚无 sid_token。
func NewSession(site string) *Session {
	return &Session{site: site}
}

// Token 返回当前 sid_token。
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Site 返回当前选中的邮件域名。
func (s *Session) Site() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.site
}

// snapshot 同时读取 token 与 site。
func (s *Session) snapshot() (token, site string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.site
}

func (s *Session) setToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Session) setSite(site string) {
	if site == "" {
		return
	}
	s.mu.Lock()
	s.site = site
	s.mu.Unlock()
}
