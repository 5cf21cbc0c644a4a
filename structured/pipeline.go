package structured

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/structflow/llm"
	"go.uber.org/zap"
)

// 降级告警文案，随 warning 字段返回给调用方。
const (
	WarnRegenerated = "model output did not match the requested schema; response was regenerated"
	WarnSynthesized = "all generation attempts failed; response was synthesized from the schema"
)

// PipelineResult 是一次管线调用的最终产物，请求结束即丢弃。
type PipelineResult struct {
	Model     string    `json:"model"`
	Result    any       `json:"result"`
	Timestamp time.Time `json:"timestamp"`
	Warning   string    `json:"warning,omitempty"`
	// Strategy 记录命中的提取策略，空表示未请求结构化输出。
	Strategy ExtractionStrategy `json:"strategy,omitempty"`
	// Latency 是端到端耗时，包含可能的再生成往返。
	Latency   time.Duration `json:"-"`
	LatencyMS int64         `json:"latency_ms"`
}

// Config 是管线的进程级只读配置，启动时构造一次，之后不再变更。
type Config struct {
	// DefaultModel 在请求未指定模型时使用
	DefaultModel string
	// TransformModel 是再生成调用使用的模型，为空时落到 DefaultModel
	TransformModel string
}

// Pipeline 编排结构化补全的完整状态机：
// Augmenting → Calling → Extracting → Validating → {Done | Regenerating → Done}。
//
// 管线本身无状态，跨请求不共享任何可变数据，单次请求内严格顺序执行。
type Pipeline struct {
	provider  llm.Provider
	extractor *Extractor
	regen     *Regenerator
	validator *Validator
	cfg       Config
	logger    *zap.Logger
}

// NewPipeline 创建结构化补全管线。
func NewPipeline(provider llm.Provider, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	regen := NewRegenerator(provider, cfg.TransformModel, cfg.DefaultModel, logger)
	return &Pipeline{
		provider:  provider,
		extractor: NewExtractor(regen, logger),
		regen:     regen,
		validator: NewValidator(),
		cfg:       cfg,
		logger:    logger,
	}
}

// validateRequest 做边界校验，失败的请求不会触达补全服务。
func validateRequest(req *llm.ChatRequest) *llm.Error {
	if req == nil {
		return &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "request body is required",
			HTTPStatus: http.StatusBadRequest,
		}
	}
	if req.Model == "" {
		return &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "model is required",
			HTTPStatus: http.StatusBadRequest,
		}
	}
	if len(req.Messages) == 0 {
		return &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "messages must be a non-empty array",
			HTTPStatus: http.StatusBadRequest,
		}
	}
	return nil
}

// Execute 运行一次完整的管线调用。
//
// 请求了 schema 的路径永不向外失败：提取、再生成或验证期间的任何
// 故障都退化为携带 warning 的成功响应。只有真正的传输故障
// （UpstreamUnavailable/Malformed）和调用方错误（BadRequest），以及
// 无 schema 时的提取失败，会作为错误返回。
func (p *Pipeline) Execute(ctx context.Context, req *llm.ChatRequest) (*PipelineResult, error) {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	schema := SchemaFromResponseFormat(req.ResponseFormat)

	// Augmenting：仅在请求了结构化输出时注入 schema 指令，
	// 原消息序列保持不变，调用方对象可安全用于审计回显。
	messages := req.Messages
	if schema != nil {
		messages = Augment(messages, schema)
	}

	// Calling：非流式调用补全服务
	resp, err := p.provider.Completion(ctx, &llm.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Options:  req.Options,
	})
	if err != nil {
		latency := time.Since(start)
		p.logger.Error("upstream completion failed",
			zap.String("model", req.Model),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, upstreamError(err)
	}

	content := resp.Message.Content

	if schema == nil {
		// 无 schema：提取器作为门禁运行，任一策略命中则原始文本直通，
		// 全部失败时把 ErrExtractionFailed 连同原文报给调用方。
		if _, err := p.extractor.Extract(ctx, content, nil); err != nil {
			p.logger.Warn("extraction failed without schema",
				zap.String("model", req.Model),
				zap.Int("content_length", len(content)))
			return nil, err
		}
		return p.finish(req, content, "", "", start), nil
	}

	// Extracting：schema 在手，提取不可能向外失败
	attempt, _ := p.extractor.Extract(ctx, content, schema)
	value := attempt.Value
	strategy := attempt.Strategy

	warning := ""
	if strategy == StrategyRegenerate {
		warning = WarnRegenerated
		if attempt.Synthesized {
			warning = WarnSynthesized
		}
	}

	// Validating → Regenerating：验证失败时再触发一次 schema 引导转换
	if !p.validator.Validate(value, schema) {
		p.logger.Info("extracted document failed validation, regenerating",
			zap.String("strategy", string(strategy)))
		var fallback bool
		value, fallback = p.regen.Regenerate(ctx, content, schema)
		strategy = StrategyRegenerate
		warning = WarnRegenerated
		if fallback {
			warning = WarnSynthesized
		}
	}

	value = applyTransforms(value, req.Transforms)

	return p.finish(req, value, warning, strategy, start), nil
}

// finish 打包 PipelineResult 并记录结构化日志。
func (p *Pipeline) finish(req *llm.ChatRequest, result any, warning string, strategy ExtractionStrategy, start time.Time) *PipelineResult {
	latency := time.Since(start)
	p.logger.Info("pipeline completed",
		zap.String("model", req.Model),
		zap.String("strategy", string(strategy)),
		zap.Bool("degraded", warning != ""),
		zap.Duration("latency", latency),
	)
	return &PipelineResult{
		Model:     req.Model,
		Result:    result,
		Timestamp: time.Now(),
		Warning:   warning,
		Strategy:  strategy,
		Latency:   latency,
		LatencyMS: latency.Milliseconds(),
	}
}

// upstreamError 把 provider 错误规整为统一的上游错误。
func upstreamError(err error) *llm.Error {
	if llmErr, ok := err.(*llm.Error); ok {
		return llmErr
	}
	return &llm.Error{
		Code:       llm.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
	}
}

// applyTransforms 依次应用调用方指定的结果变换。
// 目前仅支持 filter：把对象投影到字段白名单，缺失字段不报错。
func applyTransforms(result any, transforms []llm.Transform) any {
	for _, t := range transforms {
		if t.Type != "filter" {
			continue
		}
		obj, ok := result.(map[string]any)
		if !ok {
			continue
		}
		filtered := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			if v, present := obj[f]; present {
				filtered[f] = v
			}
		}
		result = filtered
	}
	return result
}
