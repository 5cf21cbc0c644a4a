package handlers

import (
	"net/http"
	"time"

	"github.com/BaSui01/structflow/llm"
	"go.uber.org/zap"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	provider llm.Provider
	version  string
	logger   *zap.Logger
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string    `json:"status"` // "healthy", "degraded"
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Upstream  *Upstream `json:"upstream,omitempty"`
}

// Upstream 上游探测结果
type Upstream struct {
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewHealthHandler 创建健康检查处理器。provider 可为 nil（纯存活探测）。
func NewHealthHandler(provider llm.Provider, version string, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{provider: provider, version: version, logger: logger}
}

// HandleLiveness 存活探测，进程在即健康。
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
	})
}

// HandleReadiness 就绪探测，附带上游补全服务探活。
// 上游不可用时报告 degraded 但仍返回 200：本服务自身可用，
// 上游故障会在请求路径上以 UpstreamUnavailable 暴露。
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
	}

	if h.provider != nil {
		hs, err := h.provider.HealthCheck(r.Context())
		up := &Upstream{}
		if err != nil {
			status.Status = "degraded"
			up.Healthy = false
			up.Message = err.Error()
			h.logger.Warn("upstream health check failed", zap.Error(err))
		} else {
			up.Healthy = hs.Healthy
			up.Latency = hs.Latency.String()
			if !hs.Healthy {
				status.Status = "degraded"
			}
		}
		status.Upstream = up
	}

	WriteJSON(w, http.StatusOK, status)
}
