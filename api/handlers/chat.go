package handlers

import (
	"io"
	"net/http"

	"github.com/BaSui01/structflow/internal/metrics"
	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/structured"
	"go.uber.org/zap"
)

// ChatHandler 聊天接口处理器。
// 请求了 json_schema 的调用走结构化管线；其余调用原样透传上游，
// 流式响应逐字节转发不做缓冲。
type ChatHandler struct {
	pipeline  *structured.Pipeline
	provider  llm.Provider
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewChatHandler 创建聊天处理器。collector 可为 nil。
func NewChatHandler(pipeline *structured.Pipeline, provider llm.Provider, collector *metrics.Collector, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		pipeline:  pipeline,
		provider:  provider,
		collector: collector,
		logger:    logger,
	}
}

// HandleChat 处理聊天请求。
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req llm.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	// 流式且未请求结构化输出：直接透传
	if req.Stream && (req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema") {
		h.handlePassthrough(w, r, &req)
		return
	}

	result, err := h.pipeline.Execute(r.Context(), &req)
	if err != nil {
		h.recordOutcome("error", nil)
		llmErr, ok := err.(*llm.Error)
		if !ok {
			llmErr = &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway}
		}
		WriteError(w, r, llmErr, h.logger)
		return
	}

	h.recordOutcome(outcomeOf(result), result)
	WriteSuccess(w, r, result)
}

// handlePassthrough 把上游流式响应体不经缓冲地转发给调用方。
func (h *ChatHandler) handlePassthrough(w http.ResponseWriter, r *http.Request, req *llm.ChatRequest) {
	body, err := h.provider.RawStream(r.Context(), req)
	if err != nil {
		llmErr, ok := err.(*llm.Error)
		if !ok {
			llmErr = &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway}
		}
		WriteError(w, r, llmErr, h.logger)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				h.logger.Warn("upstream stream interrupted", zap.Error(readErr))
			}
			return
		}
	}
}

// outcomeOf 把管线结果折叠为指标用的 outcome 标签。
func outcomeOf(result *structured.PipelineResult) string {
	switch {
	case result.Warning != "":
		return "degraded"
	default:
		return "ok"
	}
}

// recordOutcome 上报管线指标。
func (h *ChatHandler) recordOutcome(outcome string, result *structured.PipelineResult) {
	if h.collector == nil {
		return
	}
	if result == nil {
		h.collector.RecordPipeline(outcome, 0)
		return
	}
	h.collector.RecordPipeline(outcome, result.Latency)
	h.collector.RecordExtractionStrategy(string(result.Strategy))
	switch result.Warning {
	case structured.WarnRegenerated:
		h.collector.RecordDegraded("regenerated")
	case structured.WarnSynthesized:
		h.collector.RecordDegraded("synthesized")
	}
}
