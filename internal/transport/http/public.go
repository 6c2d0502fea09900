package httptransport

import (
	"github.com/gin-gonic/gin"

	"kieru/backend/internal/config"
	"kieru/backend/internal/domain"
)

// PublicHandler 公开API处理器（无需会话）
type PublicHandler struct {
	cfg *config.Config
}

// NewPublicHandler 创建公开API处理器
func NewPublicHandler(cfg *config.Config) *PublicHandler {
	return &PublicHandler{cfg: cfg}
}

// DomainOption 域名选项
type DomainOption struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

func (h *PublicHandler) domainOptions() []DomainOption {
	out := make([]DomainOption, 0, len(h.cfg.Mailbox.Domains))
	for _, value := range h.cfg.Mailbox.Domains {
		d, ok := domain.FindDomain(value)
		if !ok {
			continue
		}
		out = append(out, DomainOption{Value: d.Value, Label: d.Label, Description: d.Description})
	}
	return out
}

// GetAvailableDomains godoc
// @Summary 获取可用域名列表
// @Description 获取可选的邮件域名（公开接口，无需会话）
// @Tags Public
// @Produce json
// @Success 200 {object} Response{data=object{domains=[]DomainOption,count=int}}
// @Router /v1/public/domains [get]
func (h *PublicHandler) GetAvailableDomains(c *gin.Context) {
	domains := h.domainOptions()
	Success(c, gin.H{
		"domains": domains,
		"count":   len(domains),
	})
}

// GetSystemConfig godoc
// @Summary 获取前端配置
// @Description 域名、刷新间隔、默认语言等前端所需的公开配置
// @Tags Public
// @Produce json
// @Success 200 {object} Response{data=object{domains=[]DomainOption,defaultDomain=string,refreshIntervals=[]int,defaultInterval=int,features=object}}
// @Router /v1/public/config [get]
func (h *PublicHandler) GetSystemConfig(c *gin.Context) {
	Success(c, gin.H{
		"domains":          h.domainOptions(),
		"defaultDomain":    h.cfg.DefaultDomain(),
		"refreshIntervals": domain.RefreshIntervals,
		"defaultInterval":  h.cfg.Poll.DefaultInterval,
		"intervalUnitMs":   h.cfg.Poll.Unit.Milliseconds(),
		"defaultLang":      h.cfg.Provider.DefaultLang,
		"features": gin.H{
			"autoRefresh":   h.cfg.Poll.AutoRefresh,
			"websocket":     true,
			"customAddress": true,
			"forget":        true,
		},
	})
}
