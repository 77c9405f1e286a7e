package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 单次提醒扫描耗时（秒）
	ReminderScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminder_scan_duration_seconds",
			Help:    "Duration of one due-reminder scan in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	// 最近一次扫描发现的到期提醒数
	RemindersDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reminders_due",
			Help: "Number of due and undelivered reminders found by the last scan",
		},
	)

	// 提醒处理计数
	RemindersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_processed_total",
			Help: "Total number of reminders processed by the scanner",
		},
		[]string{"status"}, // status: sent, failed, skipped, stale
	)

	// 邮件源拉取延迟（毫秒）
	ProviderFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_fetch_latency_ms",
			Help:    "Mail provider fetch latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10), // 50ms to ~25s
		},
		[]string{"provider", "status"},
	)

	// 熔断器状态 0=closed 1=open 2=half-open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// outbox 事件计数
	OutboxEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_total",
			Help: "Total number of outbox events handled by the dispatcher",
		},
		[]string{"status"}, // status: sent, failed
	)
)

// ObserveReminderScan 记录一次扫描
func ObserveReminderScan(due int, duration time.Duration) {
	RemindersDue.Set(float64(due))
	ReminderScanDuration.Observe(duration.Seconds())
}

// IncrementReminderProcessed 增加提醒处理计数
func IncrementReminderProcessed(status string) {
	RemindersProcessed.WithLabelValues(status).Inc()
}

// RecordProviderFetchLatency 记录邮件源拉取延迟
func RecordProviderFetchLatency(provider, status string, duration time.Duration) {
	ProviderFetchLatency.WithLabelValues(provider, status).Observe(float64(duration.Milliseconds()))
}

// SetBreakerState 记录熔断器状态
func SetBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 按语句类型（SELECT/UPDATE/...）累计慢查询
func IncrementSlowQuery(sql string) {
	SlowQueryCount.WithLabelValues(statementKind(sql)).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementOutboxEvent 增加 outbox 事件计数
func IncrementOutboxEvent(status string) {
	OutboxEventCount.WithLabelValues(status).Inc()
}

func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToUpper(fields[0])
}
