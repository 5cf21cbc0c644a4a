package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/structflow/api/handlers"
	"github.com/BaSui01/structflow/llm/providers/ollama"
	"github.com/BaSui01/structflow/structured"
)

// fakeUpstream 是脚本化的 Ollama 兼容假上游,按调用次序返回 replies。
type fakeUpstream struct {
	t       *testing.T
	replies []string
	calls   int
}

func (f *fakeUpstream) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"llama3.1"}]}`))
		case "/api/chat":
			idx := f.calls
			if idx >= len(f.replies) {
				idx = len(f.replies) - 1
			}
			f.calls++
			var body struct {
				Model string `json:"model"`
			}
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
			json.NewEncoder(w).Encode(map[string]any{
				"model":   body.Model,
				"message": map[string]string{"role": "assistant", "content": f.replies[idx]},
				"done":    true,
			})
		default:
			http.NotFound(w, r)
		}
	})
}

// newGateway 用假上游拼出完整的 handler 栈,和 main 的装配保持一致。
func newGateway(t *testing.T, upstream *httptest.Server) http.Handler {
	provider := ollama.New(ollama.Config{
		BaseURL:      upstream.URL,
		DefaultModel: "llama3.1",
	}, nil)
	pipeline := structured.NewPipeline(provider, structured.Config{DefaultModel: "llama3.1"}, nil)

	chat := handlers.NewChatHandler(pipeline, provider, nil, nil)
	health := handlers.NewHealthHandler(provider, "test", nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", chat.HandleChat)
	mux.HandleFunc("GET /health", health.HandleLiveness)
	mux.HandleFunc("GET /ready", health.HandleReadiness)

	return handlers.RequestID(handlers.CORS(handlers.Observe(nil, nil)(mux)))
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const structuredBody = `{
	"model": "llama3.1",
	"messages": [{"role": "user", "content": "introduce yourself"}],
	"response_format": {
		"type": "json_schema",
		"schema": {
			"type": "object",
			"properties": {
				"introduction": {"type": "string"},
				"capabilities": {"type": "array"}
			},
			"required": ["introduction", "capabilities"]
		}
	}
}`

func TestGateway_StructuredRequestEndToEnd(t *testing.T) {
	fake := &fakeUpstream{t: t, replies: []string{
		"Sure! Here you go:\n```json\n{\"introduction\":\"I am a model\",\"capabilities\":[\"chat\"]}\n```",
	}}
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()

	gateway := newGateway(t, upstream)
	rec := postJSON(t, gateway, "/api/chat", structuredBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp handlers.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Success)
	assert.Equal(t, resp.RequestID, rec.Header().Get("X-Request-ID"))

	data := resp.Data.(map[string]any)
	assert.Equal(t, "fenced_block", data["strategy"])
	result := data["result"].(map[string]any)
	assert.Equal(t, "I am a model", result["introduction"])
	assert.Equal(t, []any{"chat"}, result["capabilities"])

	// 干净提取只需一次上游往返
	assert.Equal(t, 1, fake.calls)
}

func TestGateway_RefusalRegeneratedEndToEnd(t *testing.T) {
	// 第一轮拒答,再生成轮给出合法 JSON
	fake := &fakeUpstream{t: t, replies: []string{
		"I cannot share that information.",
		`{"introduction":"regenerated","capabilities":[]}`,
	}}
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()

	gateway := newGateway(t, upstream)
	rec := postJSON(t, gateway, "/api/chat", structuredBody)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "regenerate", data["strategy"])
	assert.Equal(t, structured.WarnRegenerated, data["warning"])
	result := data["result"].(map[string]any)
	assert.Equal(t, "regenerated", result["introduction"])
	assert.Equal(t, 2, fake.calls)
}

func TestGateway_UpstreamDownSurfacesBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model crashed"}`))
	}))
	defer upstream.Close()

	gateway := newGateway(t, upstream)
	rec := postJSON(t, gateway, "/api/chat",
		`{"model":"llama3.1","messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp handlers.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "STRUCT_UPSTREAM_ERROR", resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestGateway_HealthAndReadiness(t *testing.T) {
	fake := &fakeUpstream{t: t, replies: []string{"unused"}}
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()

	gateway := newGateway(t, upstream)

	rec := httptest.NewRecorder()
	gateway.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	gateway.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestGateway_CORSPreflight(t *testing.T) {
	fake := &fakeUpstream{t: t, replies: []string{"unused"}}
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()

	gateway := newGateway(t, upstream)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	gateway.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
