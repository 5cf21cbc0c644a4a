package structured

import (
	"context"
	"fmt"

	"github.com/BaSui01/structflow/llm"
	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"
)

// regenSystemPrompt 固定声明转换助手的唯一职责。
const regenSystemPrompt = "You are a JSON transformation assistant. Your only job is to convert the " +
	"text you are given into a single valid JSON object that conforms to the provided JSON Schema. " +
	"Respond with ONLY the JSON object. No prose, no markdown, no code fences."

// Regenerator 通过一次面向 schema 的转换调用，把任意文本强转为 JSON。
//
// 这是系统的安全阀：它对调用方永不失败。补全调用故障、解析失败
// 等任何内部错误都会被吞掉并退化为 Synthesize 的确定性合成文档，
// 以内容保真度换取结构上的必然成功。
type Regenerator struct {
	provider llm.Provider
	// model 是转换调用使用的模型标识，为空时落到 defaultModel。
	model        string
	defaultModel string
	logger       *zap.Logger
}

// NewRegenerator 创建再生成器。transformModel 为空时使用 defaultModel。
func NewRegenerator(provider llm.Provider, transformModel, defaultModel string, logger *zap.Logger) *Regenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Regenerator{
		provider:     provider,
		model:        transformModel,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// transformModel 返回实际使用的转换模型标识。
func (r *Regenerator) transformModel() string {
	if r.model != "" {
		return r.model
	}
	return r.defaultModel
}

// Regenerate 把 text 强转为符合 schema 的 JSON 值。
// 返回值 fallback 为 true 表示转换调用未产出可解析结果，
// 结果来自 Synthesize。本方法永不返回错误。
func (r *Regenerator) Regenerate(ctx context.Context, text string, schema *Schema) (any, bool) {
	schemaJSON, err := schema.ToJSONIndent()
	if err != nil {
		r.logger.Warn("failed to serialize schema for regeneration", zap.Error(err))
		return Synthesize(schema), true
	}

	req := &llm.ChatRequest{
		Model: r.transformModel(),
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: regenSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(
				"JSON Schema:\n%s\n\nConvert the following text into a JSON object matching the schema:\n%s",
				schemaJSON, text,
			)},
		},
	}

	resp, err := r.provider.Completion(ctx, req)
	if err != nil {
		r.logger.Warn("regeneration completion failed, synthesizing fallback",
			zap.String("model", req.Model), zap.Error(err))
		return Synthesize(schema), true
	}

	content := resp.Message.Content

	// 转换模型依旧可能加围栏或废话，子尝试顺序：围栏 → 大括号跨度 → 整体解析。
	if v, ok := tryFenced(content); ok {
		return v, false
	}
	if v, ok := tryBraceSpan(content); ok {
		return v, false
	}
	if v, ok := tryDirect(content); ok {
		return v, false
	}

	// 最后一搏：对整段输出跑 JSON 修复后再解析一次。
	// 修复器会把裸文本包成 JSON 字符串，只接受对象结果。
	if repaired, err := jsonrepair.JSONRepair(content); err == nil {
		if v, ok := tryDirect(repaired); ok {
			if _, isObj := v.(map[string]any); isObj {
				r.logger.Debug("regenerated output recovered via json repair")
				return v, false
			}
		}
	}

	r.logger.Warn("regenerated output not parseable, synthesizing fallback",
		zap.String("model", req.Model))
	return Synthesize(schema), true
}
