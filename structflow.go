// Package structflow provides a top-level convenience entry point for
// creating a structured completion pipeline with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/structflow"
//
//	p := structflow.New("http://localhost:11434", "llama3.1", nil)
//	result, err := p.Execute(ctx, req)
//
// This is a thin wrapper around [structured.NewPipeline] with an
// Ollama-compatible provider; use the subpackages directly when you
// need a custom provider or transform model.
package structflow

import (
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/llm/providers/ollama"
	"github.com/BaSui01/structflow/structured"
)

// New 用 Ollama 兼容上游创建结构化补全管线。logger 可为 nil。
func New(baseURL, defaultModel string, logger *zap.Logger) *structured.Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := ollama.New(ollama.Config{
		BaseURL:      baseURL,
		DefaultModel: defaultModel,
	}, logger)
	return structured.NewPipeline(provider, structured.Config{
		DefaultModel: defaultModel,
	}, logger)
}
