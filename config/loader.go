// =============================================================================
// StructFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.Load("config.yaml")
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（STRUCTFLOW_ 前缀）
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 StructFlow 的完整配置结构。
// 启动时构造一次，之后只读；管线和 Handler 只持有它的值拷贝。
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server"`

	// Upstream 补全服务配置
	Upstream UpstreamConfig `yaml:"upstream"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// 监听地址
	Addr string `yaml:"addr"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// 写入超时。流式透传需要长写超时
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// 每秒请求限速，0 表示不限速
	RateLimitRPS int `yaml:"rate_limit_rps"`
	// 限速突发容量
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// UpstreamConfig 补全服务配置
type UpstreamConfig struct {
	// 补全服务基础 URL
	BaseURL string `yaml:"base_url"`
	// 默认模型
	DefaultModel string `yaml:"default_model"`
	// 再生成调用使用的转换模型，为空时落到默认模型
	TransformModel string `yaml:"transform_model"`
	// 上游 HTTP 客户端超时
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 格式: json, console
	Format string `yaml:"format"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否暴露 /metrics
	Enabled bool `yaml:"enabled"`
	// 指标路径
	Path string `yaml:"path"`
}

// Load 按 默认值 → YAML → 环境变量 的优先级加载配置。
// path 为空或文件不存在时跳过 YAML 层。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置的基本合法性。
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.DefaultModel == "" {
		return fmt.Errorf("upstream.default_model is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// applyEnv 应用 STRUCTFLOW_ 前缀的环境变量覆盖。
func applyEnv(cfg *Config) {
	envStr("STRUCTFLOW_SERVER_ADDR", &cfg.Server.Addr)
	envDuration("STRUCTFLOW_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("STRUCTFLOW_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("STRUCTFLOW_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt("STRUCTFLOW_SERVER_RATE_LIMIT_RPS", &cfg.Server.RateLimitRPS)
	envInt("STRUCTFLOW_SERVER_RATE_LIMIT_BURST", &cfg.Server.RateLimitBurst)

	envStr("STRUCTFLOW_UPSTREAM_BASE_URL", &cfg.Upstream.BaseURL)
	envStr("STRUCTFLOW_UPSTREAM_DEFAULT_MODEL", &cfg.Upstream.DefaultModel)
	envStr("STRUCTFLOW_UPSTREAM_TRANSFORM_MODEL", &cfg.Upstream.TransformModel)
	envDuration("STRUCTFLOW_UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout)

	envStr("STRUCTFLOW_LOG_LEVEL", &cfg.Log.Level)
	envStr("STRUCTFLOW_LOG_FORMAT", &cfg.Log.Format)

	envBool("STRUCTFLOW_METRICS_ENABLED", &cfg.Metrics.Enabled)
	envStr("STRUCTFLOW_METRICS_PATH", &cfg.Metrics.Path)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
