package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"kieru/backend/internal/domain"
)

const (
	// DefaultBaseURL 提供方接口地址
	DefaultBaseURL = "https://api.guerrillamail.com/ajax.php"
	// DefaultTimeout 单次调用超时
	DefaultTimeout = 10 * time.Second

	maxBodySize = 5 << 20
)

// 调用结果标签
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeMalformed = "malformed"
)

// Recorder 记录提供方调用指标
type Recorder interface {
	ObserveProviderCall(function, outcome string, elapsed time.Duration)
}

// Options 客户端参数
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // 每秒请求数，<=0 表示不限
	Burst      int
	UserAgent  string
	HTTPClient *http.Client
	Recorder   Recorder
	Logger     *zap.Logger
}

// Client 所有标签页共享的提供方 HTTP 客户端。
//
// 它不持有任何会话状态；sid_token 与 site 由调用方传入的 Session 提供。不做重试。
type Client struct {
	baseURL    string
	timeout    time.Duration
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	recorder   Recorder
	logger     *zap.Logger
}

// NewClient 创建提供方客户端
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    opts.BaseURL,
		timeout:    opts.Timeout,
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
		limiter:    limiter,
		recorder:   opts.Recorder,
		logger:     logger.Named("provider"),
	}
}

// call 执行一次提供方函数调用并返回原始响应体。
//
// site 非空时覆盖会话当前域名。成功响应中的 sid_token 会写回会话。
func (c *Client) call(ctx context.Context, sess *Session, fn, site string, params url.Values) (body []byte, err error) {
	start := time.Now()
	outcome := OutcomeOK
	defer func() {
		if c.recorder != nil {
			c.recorder.ObserveProviderCall(fn, outcome, time.Since(start))
		}
		if err != nil {
			c.logger.Warn("provider call failed",
				zap.String("function", fn),
				zap.String("outcome", outcome),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if werr := c.limiter.Wait(ctx); werr != nil {
			outcome = OutcomeTimeout
			return nil, &domain.GatewayError{Op: fn, Cause: fmt.Errorf("rate limiter: %w", werr)}
		}
	}

	token, current := sess.snapshot()
	if site == "" {
		site = current
	}

	query := url.Values{}
	query.Set("f", fn)
	if site != "" {
		query.Set("site", site)
	}
	if token != "" {
		query.Set("sid_token", token)
	}
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	target := c.baseURL
	if strings.Contains(target, "?") {
		target += "&" + query.Encode()
	} else {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		outcome = OutcomeError
		return nil, &domain.GatewayError{Op: fn, Cause: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			outcome = OutcomeTimeout
			return nil, &domain.GatewayError{Op: fn, Cause: fmt.Errorf("request timed out after %s", c.timeout)}
		}
		outcome = OutcomeError
		return nil, &domain.GatewayError{Op: fn, Cause: err}
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if isTimeout(ctx, err) {
			outcome = OutcomeTimeout
		} else {
			outcome = OutcomeError
		}
		return nil, &domain.GatewayError{Op: fn, Status: resp.StatusCode, Cause: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome = OutcomeError
		return nil, &domain.GatewayError{Op: fn, Status: resp.StatusCode, Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if !json.Valid(body) {
		outcome = OutcomeMalformed
		return nil, &domain.GatewayError{Op: fn, Status: resp.StatusCode, Cause: errMalformed}
	}

	var tp tokenPayload
	if json.Unmarshal(body, &tp) == nil {
		sess.setToken(tp.SidToken)
	}

	return body, nil
}

// decode 将响应体解码到 out，失败时标记为格式错误。
func decode(fn string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.GatewayError{Op: fn, Cause: errors.Join(errMalformed, err)}
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
