package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/structflow/llm"
)

func newTestProvider(baseURL string) *Provider {
	return New(Config{BaseURL: baseURL, DefaultModel: "llama3.1"}, nil)
}

func chatReq(model string) *llm.ChatRequest {
	return &llm.ChatRequest{
		Model:    model,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}
}

func TestCompletion_Success(t *testing.T) {
	var gotBody chatBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"model":   gotBody.Model,
			"message": map[string]string{"role": "assistant", "content": "hello there"},
			"done":    true,
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	resp, err := p.Completion(context.Background(), chatReq("qwen2.5"))

	require.NoError(t, err)
	assert.Equal(t, "ollama", resp.Provider)
	assert.Equal(t, "qwen2.5", resp.Model)
	assert.Equal(t, "hello there", resp.Message.Content)

	// 结构化管线只走非流式
	assert.False(t, gotBody.Stream)
	assert.Equal(t, "qwen2.5", gotBody.Model)
}

func TestCompletion_FallsBackToDefaultModel(t *testing.T) {
	var gotBody chatBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"model":   gotBody.Model,
			"message": map[string]string{"role": "assistant", "content": "ok"},
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.Completion(context.Background(), chatReq(""))

	require.NoError(t, err)
	assert.Equal(t, "llama3.1", gotBody.Model)
}

func TestCompletion_UpstreamStatusError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		wantMsg   string
	}{
		{"500 可重试", http.StatusInternalServerError, `{"error":"model crashed"}`, true, "model crashed"},
		{"404 不可重试", http.StatusNotFound, `{"error":"model not found"}`, false, "model not found"},
		{"非 JSON 错误体", http.StatusBadGateway, "gateway exploded", true, "gateway exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := newTestProvider(srv.URL)
			_, err := p.Completion(context.Background(), chatReq("m"))

			require.Error(t, err)
			var llmErr *llm.Error
			require.True(t, errors.As(err, &llmErr))
			assert.Equal(t, llm.ErrUpstreamError, llmErr.Code)
			assert.Equal(t, http.StatusBadGateway, llmErr.HTTPStatus)
			assert.Equal(t, tt.retryable, llmErr.Retryable)
			assert.Contains(t, llmErr.Message, tt.wantMsg)
		})
	}
}

func TestCompletion_MalformedUpstreamResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"非 JSON 响应体", "this is not json"},
		{"缺少 message 字段", `{"model":"m","done":true}`},
		{"message 存在但 content 为空", `{"model":"m","message":{"role":"assistant"},"done":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := newTestProvider(srv.URL)
			_, err := p.Completion(context.Background(), chatReq("m"))

			require.Error(t, err)
			var llmErr *llm.Error
			require.True(t, errors.As(err, &llmErr))
			assert.Equal(t, llm.ErrUpstreamMalformed, llmErr.Code)
		})
	}
}

func TestCompletion_ConnectionRefused(t *testing.T) {
	// 立即关闭拿到必然拒绝连接的地址
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	p := newTestProvider(addr)
	_, err := p.Completion(context.Background(), chatReq("m"))

	require.Error(t, err)
	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrUpstreamError, llmErr.Code)
	assert.True(t, llmErr.Retryable)
}

func TestRawStream_PassesBodyThrough(t *testing.T) {
	var gotBody chatBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte("{\"chunk\":1}\n{\"chunk\":2}\n"))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	body, err := p.RawStream(context.Background(), chatReq("m"))

	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "{\"chunk\":1}\n{\"chunk\":2}\n", string(data))
	assert.True(t, gotBody.Stream)
}

func TestRawStream_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.RawStream(context.Background(), chatReq("m"))

	require.Error(t, err)
	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrUpstreamError, llmErr.Code)
	assert.Contains(t, llmErr.Message, "overloaded")
}

func TestHealthCheck(t *testing.T) {
	t.Run("健康", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/tags", r.URL.Path)
			w.Write([]byte(`{"models":[]}`))
		}))
		defer srv.Close()

		p := newTestProvider(srv.URL)
		status, err := p.HealthCheck(context.Background())

		require.NoError(t, err)
		assert.True(t, status.Healthy)
		assert.Greater(t, status.Latency.Nanoseconds(), int64(0))
	})

	t.Run("上游异常", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		p := newTestProvider(srv.URL)
		status, err := p.HealthCheck(context.Background())

		require.Error(t, err)
		assert.False(t, status.Healthy)
	})
}

func TestEndpointTrimsTrailingSlash(t *testing.T) {
	p := newTestProvider("http://localhost:11434/")
	assert.Equal(t, "http://localhost:11434/api/chat", p.endpoint("/api/chat"))
}
