package structured

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/BaSui01/structflow/llm"
	"go.uber.org/zap"
)

// ExtractionStrategy 标识提取成功时命中的策略。
type ExtractionStrategy string

const (
	StrategyDirect     ExtractionStrategy = "direct"
	StrategyFenced     ExtractionStrategy = "fenced_block"
	StrategyBraceSpan  ExtractionStrategy = "brace_span"
	StrategyRegenerate ExtractionStrategy = "regenerate"
)

// ExtractionAttempt 记录一次提取的结局，仅存在于一次管线调用内，
// 从不持久化。
type ExtractionAttempt struct {
	Strategy  ExtractionStrategy `json:"strategy"`
	Succeeded bool               `json:"succeeded"`
	Value     any                `json:"value,omitempty"`
	// Synthesized 标记再生成路径最终落到了合成文档
	Synthesized bool `json:"synthesized,omitempty"`
}

// fencedRe 匹配第一个 markdown 代码块。刻意偏向召回：
// 围栏内容不要求是对象，语言标注 json 可选。
var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// Extractor 按严格顺序应用回退策略从模型原始输出中提取 JSON 值。
// 策略从最严到最松排列，首个成功者胜出，保证不会被宽松策略的
// 误报抢先（如散落在说明文字中的大括号）。
type Extractor struct {
	regen  *Regenerator
	logger *zap.Logger
}

// NewExtractor 创建提取器。regen 为 nil 时 schema 引导的再生成策略被禁用。
func NewExtractor(regen *Regenerator, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{regen: regen, logger: logger}
}

// tryDirect 尝试将整段文本作为 JSON 解析。
func tryDirect(text string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return nil, false
	}
	return v, true
}

// tryFenced 搜索第一个围栏代码块并解析其内容。
func tryFenced(text string) (any, bool) {
	m := fencedRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil, false
	}
	return tryDirect(m[1])
}

// tryBraceSpan 取第一个 { 到最后一个 } 的贪婪跨度并解析。
// 刻意不做括号配对，保持与既有行为一致的首次匹配语义。
func tryBraceSpan(text string) (any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return tryDirect(text[start : end+1])
}

// Extract 从原始模型文本中提取 JSON 值。
//
// 提供 schema 时本方法永不失败：前三个策略都未命中则委托给
// Regenerator，后者保证以合成文档收尾。未提供 schema 且前三个
// 策略全部失败时返回 ErrExtractionFailed，携带原始文本供诊断回显。
func (e *Extractor) Extract(ctx context.Context, text string, schema *Schema) (ExtractionAttempt, error) {
	strategies := []struct {
		name ExtractionStrategy
		fn   func(string) (any, bool)
	}{
		{StrategyDirect, tryDirect},
		{StrategyFenced, tryFenced},
		{StrategyBraceSpan, tryBraceSpan},
	}

	for _, s := range strategies {
		if v, ok := s.fn(text); ok {
			e.logger.Debug("extraction strategy succeeded",
				zap.String("strategy", string(s.name)))
			return ExtractionAttempt{Strategy: s.name, Succeeded: true, Value: v}, nil
		}
	}

	if schema != nil && e.regen != nil {
		e.logger.Debug("all parse strategies failed, delegating to regenerator")
		v, fallback := e.regen.Regenerate(ctx, text, schema)
		return ExtractionAttempt{
			Strategy:    StrategyRegenerate,
			Succeeded:   true,
			Value:       v,
			Synthesized: fallback,
		}, nil
	}

	return ExtractionAttempt{}, &llm.Error{
		Code:       llm.ErrExtractionFailed,
		Message:    "no extraction strategy produced valid JSON",
		HTTPStatus: http.StatusUnprocessableEntity,
		Raw:        text,
	}
}
