// =============================================================================
// 📦 Drama 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"github.com/BaSui01/drama/drama"
	"github.com/BaSui01/drama/internal/server"
	"github.com/BaSui01/drama/llm"
	"github.com/BaSui01/drama/llm/tokenizer"
	"github.com/BaSui01/drama/persistence"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Roster:    "roster.yaml",
		Engine:    drama.DefaultConfig(),
		LLM:       llm.DefaultClientConfig(),
		Tokenizer: TokenizerConfig{Kind: tokenizer.KindEstimator},
		Store:     persistence.DefaultStoreConfig(),
		Server:    server.DefaultConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "drama",
		Path:      "/metrics",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "drama",
		SampleRate:   0.1,
	}
}
