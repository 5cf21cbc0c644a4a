// =============================================================================
// StructFlow Ollama-Compatible Provider
// =============================================================================
// 面向 Ollama 风格 /api/chat 接口的补全服务客户端。
// 结构化管线只依赖非流式 Completion；透传路径使用 RawStream。
// =============================================================================

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/structflow/llm"
	"go.uber.org/zap"
)

// Config holds the configuration for an Ollama-compatible provider.
type Config struct {
	// BaseURL is the base URL for the provider's API (e.g., "http://localhost:11434").
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// Timeout is the HTTP client timeout. Defaults to 120s if zero.
	Timeout time.Duration

	// EndpointPath is the chat endpoint path. Defaults to "/api/chat".
	EndpointPath string

	// TagsEndpoint is the model list endpoint used for health checks. Defaults to "/api/tags".
	TagsEndpoint string
}

// Provider 实现面向 Ollama 兼容 API 的 llm.Provider。
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New 创建新的 Ollama 兼容提供者实例。
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/api/chat"
	}
	if cfg.TagsEndpoint == "" {
		cfg.TagsEndpoint = "/api/tags"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return "ollama" }

// endpoint builds the full URL for a given path.
func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.cfg.BaseURL, "/"), path)
}

// --- Ollama wire types ---

type chatBody struct {
	Model    string         `json:"model"`
	Messages []llm.Message  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model     string      `json:"model"`
	CreatedAt time.Time   `json:"created_at"`
	Message   *llm.Message `json:"message"`
	Done      bool        `json:"done"`
}

// resolveModel 返回请求模型，未指定时落到默认模型。
func (p *Provider) resolveModel(req *llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.cfg.DefaultModel
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := chatBody{
		Model:    p.resolveModel(req),
		Messages: req.Messages,
		Stream:   false,
		Options:  req.Options,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    fmt.Sprintf("upstream returned status %d: %s", resp.StatusCode, msg),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  resp.StatusCode >= 500,
			Provider:   p.Name(),
		}
	}

	var oResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamMalformed, Message: fmt.Sprintf("failed to decode upstream response: %v", err),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	// 2xx 但缺少 message 或 message.content 为空，视为上游响应畸形
	if oResp.Message == nil || oResp.Message.Content == "" {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamMalformed, Message: "upstream response missing message content",
			HTTPStatus: http.StatusBadGateway, Provider: p.Name(),
		}
	}

	return &llm.ChatResponse{
		Provider:  p.Name(),
		Model:     oResp.Model,
		Message:   *oResp.Message,
		CreatedAt: oResp.CreatedAt,
	}, nil
}

// RawStream 发起流式请求并原样返回上游响应体，由调用方负责关闭。
// 透传路径不做任何缓冲或重组。
func (p *Provider) RawStream(ctx context.Context, req *llm.ChatRequest) (io.ReadCloser, error) {
	body := chatBody{
		Model:    p.resolveModel(req),
		Messages: req.Messages,
		Stream:   true,
		Options:  req.Options,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		resp.Body.Close()
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    fmt.Sprintf("upstream returned status %d: %s", resp.StatusCode, msg),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  resp.StatusCode >= 500,
			Provider:   p.Name(),
		}
	}

	return resp.Body, nil
}

// HealthCheck verifies the provider is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.cfg.TagsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("ollama health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}

	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// readErrorMessage 尽力从错误响应体中取出可读消息。
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "<empty body>"
	}
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
