// MockProvider 的补全服务测试模拟实现。
//
// 支持固定响应、脚本化多次响应与错误注入场景。
package mocks

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/BaSui01/structflow/llm"
)

// MockProviderCall 记录一次 Completion 调用。
type MockProviderCall struct {
	Model    string
	Messages []llm.Message
}

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置：responses 非空时按序弹出，耗尽后重复最后一个
	response  string
	responses []string
	err       error
	streamErr error
	stream    string

	// 调用记录
	calls []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(content string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = content
	return m
}

// WithResponses 设置脚本化响应序列，按调用次序依次返回
func (m *MockProvider) WithResponses(contents ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append([]string(nil), contents...)
	return m
}

// WithError 注入 Completion 错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithStream 设置 RawStream 返回的字节内容
func (m *MockProvider) WithStream(content string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stream = content
	return m
}

// WithStreamError 注入 RawStream 错误
func (m *MockProvider) WithStreamError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamErr = err
	return m
}

// WithCompletionFunc 完全自定义 Completion 行为
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// Calls 返回已记录的调用
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回 Completion 调用次数
func (m *MockProvider) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

func (m *MockProvider) Name() string { return "mock" }

// Completion 实现 llm.Provider
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockProviderCall{
		Model:    req.Model,
		Messages: append([]llm.Message(nil), req.Messages...),
	})
	fn := m.completionFunc
	err := m.err
	content := m.response
	if len(m.responses) > 0 {
		content = m.responses[0]
		if len(m.responses) > 1 {
			m.responses = m.responses[1:]
		}
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{
		Provider: "mock",
		Model:    req.Model,
		Message:  llm.Message{Role: llm.RoleAssistant, Content: content},
	}, nil
}

// RawStream 实现 llm.Provider
func (m *MockProvider) RawStream(ctx context.Context, req *llm.ChatRequest) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	return io.NopCloser(strings.NewReader(m.stream)), nil
}

// HealthCheck 实现 llm.Provider
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return &llm.HealthStatus{Healthy: false}, m.err
	}
	return &llm.HealthStatus{Healthy: true}, nil
}
