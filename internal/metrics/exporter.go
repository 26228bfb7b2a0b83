package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter Prometheus 指标导出器
type Exporter struct {
	registry *prometheus.Registry

	// 指令指标
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	// 内容生成指标
	generatorRequests *prometheus.CounterVec
	generatorRetries  prometheus.Counter

	// 批量指标
	batchItems *prometheus.CounterVec

	// 预览指标
	previewsGenerated prometheus.Counter
	previewsConfirmed prometheus.Counter
}

// NewExporter 创建指标导出器
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()

	exporter := &Exporter{
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailagent_commands_total",
			Help: "处理的指令总数",
		}, []string{"intent", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailagent_command_duration_seconds",
			Help:    "指令处理耗时",
			Buckets: prometheus.DefBuckets,
		}, []string{"intent"}),

		generatorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailagent_generator_requests_total",
			Help: "内容生成请求总数",
		}, []string{"kind", "outcome"}),
		generatorRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailagent_generator_retries_total",
			Help: "内容生成限流重试总数",
		}),

		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailagent_batch_items_total",
			Help: "批量操作子项总数",
		}, []string{"outcome"}),

		previewsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailagent_previews_generated_total",
			Help: "生成的预览草稿总数",
		}),
		previewsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailagent_previews_confirmed_total",
			Help: "确认发送的预览草稿总数",
		}),
	}

	registry.MustRegister(
		exporter.commandsTotal,
		exporter.commandDuration,
		exporter.generatorRequests,
		exporter.generatorRetries,
		exporter.batchItems,
		exporter.previewsGenerated,
		exporter.previewsConfirmed,
	)

	return exporter
}

// ObserveCommand 记录一次指令处理
func (e *Exporter) ObserveCommand(intent, outcome string, duration time.Duration) {
	if e == nil {
		return
	}
	e.commandsTotal.WithLabelValues(intent, outcome).Inc()
	e.commandDuration.WithLabelValues(intent).Observe(duration.Seconds())
}

// ObserveGenerator 记录一次内容生成请求
func (e *Exporter) ObserveGenerator(kind, outcome string) {
	if e == nil {
		return
	}
	e.generatorRequests.WithLabelValues(kind, outcome).Inc()
}

// ObserveGeneratorRetry 记录一次限流重试
func (e *Exporter) ObserveGeneratorRetry() {
	if e == nil {
		return
	}
	e.generatorRetries.Inc()
}

// ObserveBatch 记录批量子项结果
func (e *Exporter) ObserveBatch(succeeded, failed int) {
	if e == nil {
		return
	}
	e.batchItems.WithLabelValues("success").Add(float64(succeeded))
	e.batchItems.WithLabelValues("failure").Add(float64(failed))
}

// ObservePreview 记录一次预览草稿生成
func (e *Exporter) ObservePreview() {
	if e == nil {
		return
	}
	e.previewsGenerated.Inc()
}

// ObserveConfirm 记录一次预览确认发送
func (e *Exporter) ObserveConfirm() {
	if e == nil {
		return
	}
	e.previewsConfirmed.Inc()
}

// Handler 返回 /metrics 处理器
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
