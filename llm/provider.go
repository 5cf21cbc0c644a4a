package llm

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// 统一的错误码，用于对齐 HTTP 状态、可重试性与降级策略。
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "STRUCT_INVALID_REQUEST"    // 参数/格式错误
	ErrUpstreamError     ErrorCode = "STRUCT_UPSTREAM_ERROR"     // 上游不可达或 5xx
	ErrUpstreamMalformed ErrorCode = "STRUCT_UPSTREAM_MALFORMED" // 上游 2xx 但响应缺少内容
	ErrExtractionFailed  ErrorCode = "STRUCT_EXTRACTION_FAILED"  // 无 schema 时所有提取策略失败
)

type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	// Raw 携带原始模型输出，仅在提取失败时回显给调用方用于诊断。
	Raw string `json:"raw,omitempty"`
}

func (e *Error) Error() string { return e.Message }

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat 声明调用方期望的输出形态。
// Type 为 "json_schema" 时，Schema 携带目标 JSON Schema。
type ResponseFormat struct {
	Type   string          `json:"type"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// Transform 是结果后处理指令。目前仅支持 filter：按字段白名单投影。
type Transform struct {
	Type   string   `json:"type"`
	Fields []string `json:"fields,omitempty"`
}

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Transforms     []Transform     `json:"transforms,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	// Options 原样透传给上游（温度、top_p 等），本系统不解释其内容。
	Options map[string]any `json:"options,omitempty"`
}

type ChatResponse struct {
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// HealthStatus 表示 Provider 健康检查结果。
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 定义了统一的补全服务适配接口。
// 结构化管线仅依赖 Completion；非结构化透传路径使用 RawStream
// 将上游字节流不经缓冲地转发给调用方。
type Provider interface {
	// Completion 发起非流式聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// RawStream 发起流式聊天请求，返回上游原始响应体
	RawStream(ctx context.Context, req *ChatRequest) (io.ReadCloser, error)

	// HealthCheck 执行轻量级健康检查，返回延迟与可用性信息
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}
