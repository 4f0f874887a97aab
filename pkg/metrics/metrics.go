package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 里程碑操作计数（operation: create / associate / close / progress）
	MilestoneOperationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_operation_total",
			Help: "Milestone core operations by outcome",
		},
		[]string{"operation", "result"},
	)

	// 进度缓存命中情况（result: hit / miss / stale / error）
	ProgressCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_cache_lookup_total",
			Help: "Progress snapshot cache lookups by result",
		},
		[]string{"result"},
	)

	// 进度重新计算耗时（秒）
	ProgressComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "progress_compute_duration_seconds",
			Help:    "Time spent recomputing a progress snapshot from the store",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	// 关闭级联耗时（mode: inline / deferred）
	CascadeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "milestone_cascade_duration_seconds",
			Help:    "Closure cascade duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"mode", "status"},
	)

	// 级联最终失败（需要人工处理）
	CascadeFailureCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "milestone_cascade_failures_total",
			Help: "Cascades that exhausted their attempts and were recorded for attention",
		},
	)

	// 一致性错误（缓存与存储不一致）
	InconsistentStateCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "progress_inconsistent_state_total",
			Help: "Progress reads where cache and store disagreed at the same version",
		},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"routing_key", "queue"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Queries slower than the configured threshold",
		},
		[]string{"sql"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)
)

// RecordOperation 记录一次核心操作的结果
func RecordOperation(operation, result string) {
	MilestoneOperationCount.WithLabelValues(operation, result).Inc()
}

// RecordCacheLookup 记录缓存查找结果
func RecordCacheLookup(result string) {
	ProgressCacheCount.WithLabelValues(result).Inc()
}

// RecordProgressCompute 记录重新计算耗时
func RecordProgressCompute(duration time.Duration) {
	ProgressComputeDuration.Observe(duration.Seconds())
}

// RecordCascade 记录级联耗时
func RecordCascade(mode, status string, duration time.Duration) {
	CascadeDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
}

// IncrementCascadeFailure 增加级联失败计数
func IncrementCascadeFailure() {
	CascadeFailureCount.Inc()
}

// IncrementInconsistentState 增加一致性错误计数
func IncrementInconsistentState() {
	InconsistentStateCount.Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(sql string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
