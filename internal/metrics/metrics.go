// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordEventUpsert(calendarID string)
	RecordEventDelete(calendarID string)
	RecordProviderCall(provider string, statusCode int)
	RecordProviderLatency(provider string, duration time.Duration)
	RecordConferenceProvisioned(app string, status string)
	RecordSlotsGenerated(count int)
	RecordAssistStarted()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	eventUpserts    prometheus.Counter
	eventDeletes    prometheus.Counter
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	conferences     *prometheus.CounterVec
	slotsGenerated  prometheus.Counter
	assistsStarted  prometheus.Counter
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calman_event_upserts_total",
			Help: "イベント作成・更新の合計数",
		}),
		eventDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calman_event_deletes_total",
			Help: "イベント削除の合計数",
		}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calman_provider_calls_total",
			Help: "プロバイダAPI呼び出しのステータスコード別合計数",
		}, []string{"provider", "status_code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "calman_provider_latency_seconds",
			Help:    "プロバイダAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		conferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calman_conferences_provisioned_total",
			Help: "払い出された会議のアプリ・ステータス別合計数",
		}, []string{"app", "status"}),
		slotsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calman_slots_generated_total",
			Help: "計算された候補時間帯の合計数",
		}),
		assistsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calman_assists_started_total",
			Help: "起動された最終スケジューリングの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.eventUpserts,
		c.eventDeletes,
		c.providerCalls,
		c.providerLatency,
		c.conferences,
		c.slotsGenerated,
		c.assistsStarted,
		c.httpStatus,
	)

	return c
}

// RecordEventUpsert はイベント作成・更新を記録する。
func (c *Collector) RecordEventUpsert(calendarID string) {
	c.eventUpserts.Inc()
}

// RecordEventDelete はイベント削除を記録する。
func (c *Collector) RecordEventDelete(calendarID string) {
	c.eventDeletes.Inc()
}

// RecordProviderCall はプロバイダAPI呼び出しの結果を記録する。
func (c *Collector) RecordProviderCall(provider string, statusCode int) {
	c.providerCalls.WithLabelValues(provider, strconv.Itoa(statusCode)).Inc()
}

// RecordProviderLatency はプロバイダAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(provider string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordConferenceProvisioned は会議の払い出し結果を記録する。
// 連携未設定によるmissingへの縮退もここで可視化される。
func (c *Collector) RecordConferenceProvisioned(app string, status string) {
	c.conferences.WithLabelValues(app, status).Inc()
}

// RecordSlotsGenerated は計算された候補時間帯の数を記録する。
func (c *Collector) RecordSlotsGenerated(count int) {
	c.slotsGenerated.Add(float64(count))
}

// RecordAssistStarted は最終スケジューリングの起動を記録する。
func (c *Collector) RecordAssistStarted() {
	c.assistsStarted.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
