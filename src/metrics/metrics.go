// Package metrics 迁移引擎的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docstore"

// Metrics 迁移相关指标集合，nil 接收者上的方法均为空操作
type Metrics struct {
	Registry *prometheus.Registry

	applied           *prometheus.CounterVec
	failed            *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	rollbackDeletions *prometheus.CounterVec
	finalizeDeletions *prometheus.CounterVec
	watermark         prometheus.Gauge
}

// New 在独立的 Registry 上注册全部指标
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_applied_total",
			Help:      "Number of index migrations applied successfully.",
		}, []string{"migration"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_failed_total",
			Help:      "Number of index migrations that failed and were rolled back.",
		}, []string{"migration"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Time spent running a single index migration.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"migration"}),
		rollbackDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollback_deletions_total",
			Help:      "Indices deleted while rolling back a failed migration.",
		}, []string{"result"}),
		finalizeDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_deleted_indices_total",
			Help:      "Superseded index generations deleted by finalize.",
		}, []string{"result"}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "migration_watermark",
			Help:      "Highest migration identifier observed across existing indices.",
		}),
	}
	m.Registry.MustRegister(
		m.applied,
		m.failed,
		m.duration,
		m.rollbackDeletions,
		m.finalizeDeletions,
		m.watermark,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// MigrationApplied 记录一次成功的迁移
func (m *Metrics) MigrationApplied(name string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(name).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// MigrationFailed 记录一次失败的迁移
func (m *Metrics) MigrationFailed(name string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(name).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// RollbackDeletion 记录回滚时的一次索引删除
func (m *Metrics) RollbackDeletion(ok bool) {
	if m == nil {
		return
	}
	m.rollbackDeletions.WithLabelValues(result(ok)).Inc()
}

// FinalizeDeletion 记录 Finalize 时的一次索引删除
func (m *Metrics) FinalizeDeletion(ok bool) {
	if m == nil {
		return
	}
	m.finalizeDeletions.WithLabelValues(result(ok)).Inc()
}

// SetWatermark 更新当前水位
func (m *Metrics) SetWatermark(id int64) {
	if m == nil {
		return
	}
	m.watermark.Set(float64(id))
}
