// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 推理指标
	inferenceRequestsTotal   *prometheus.CounterVec
	inferenceRequestDuration *prometheus.HistogramVec
	inferenceTokensUsed      *prometheus.CounterVec

	// 对话指标
	turnsTotal        *prometheus.CounterVec
	speakerSelections *prometheus.CounterVec
	triggersFired     *prometheus.CounterVec

	// 存储指标
	storeOperations *prometheus.CounterVec

	// 会话指标
	sessionsActive prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 推理指标
	c.inferenceRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Total number of inference jobs",
		},
		[]string{"model", "preset", "status"},
	)

	c.inferenceRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_request_duration_seconds",
			Help:      "Inference job duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	c.inferenceTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_tokens_used_total",
			Help:      "Total number of tokens exchanged with the inference backend",
		},
		[]string{"model", "type"},
	)

	// 对话指标
	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_turns_total",
			Help:      "Total number of resolved conversation turns",
		},
		[]string{"companion", "kind"},
	)

	c.speakerSelections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speaker_selections_total",
			Help:      "Speaker selections by deciding rule",
		},
		[]string{"rule"},
	)

	c.triggersFired = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_fired_total",
			Help:      "Total number of fired triggers",
		},
		[]string{"companion", "kind"},
	)

	// 存储指标
	c.storeOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of persistence operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open chat sessions",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 记录方法（nil 接收者安全）
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordInference 记录一次推理
func (c *Collector) RecordInference(model, preset, status string, duration time.Duration, inputTokens, outputTokens int) {
	if c == nil {
		return
	}
	c.inferenceRequestsTotal.WithLabelValues(model, preset, status).Inc()
	c.inferenceRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	c.inferenceTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	c.inferenceTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
}

// RecordTurn 记录一个已解析的回合
func (c *Collector) RecordTurn(companion, kind string) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(companion, kind).Inc()
}

// RecordSpeakerSelection 记录发言人选择命中的规则
func (c *Collector) RecordSpeakerSelection(rule string) {
	if c == nil {
		return
	}
	c.speakerSelections.WithLabelValues(rule).Inc()
}

// RecordTrigger 记录触发器触发
func (c *Collector) RecordTrigger(companion, kind string) {
	if c == nil {
		return
	}
	c.triggersFired.WithLabelValues(companion, kind).Inc()
}

// RecordStoreOperation 记录存储操作
func (c *Collector) RecordStoreOperation(backend, operation string, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.storeOperations.WithLabelValues(backend, operation, status).Inc()
}

// SessionOpened 会话数 +1
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
}

// SessionClosed 会话数 -1
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
