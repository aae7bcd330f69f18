// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/hitoshi/tinytasks/internal/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 認証フローのメトリクスとHTTPリクエストのメトリクスを持つ。
type Collector struct {
	logins          *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	tokenValidation *prometheus.CounterVec
	tokensRevoked   prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tinytasks_logins_total",
			Help: "クライアント種別・結果別のログイン数",
		}, []string{"client_type", "outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tinytasks_tokens_issued_total",
			Help: "発行したアクセストークン数",
		}, []string{"name"}),
		tokenValidation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tinytasks_token_validations_total",
			Help: "トークン検証の結果別の回数",
		}, []string{"result"}),
		tokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tinytasks_tokens_revoked_total",
			Help: "失効させたアクセストークン数",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tinytasks_http_requests_total",
			Help: "HTTPステータスコード・メソッド別のリクエスト数",
		}, []string{"code", "method"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tinytasks_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"code", "method"}),
	}

	reg.MustRegister(
		c.logins,
		c.tokensIssued,
		c.tokenValidation,
		c.tokensRevoked,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(clientType auth.ClientType, outcome string) {
	c.logins.WithLabelValues(string(clientType), outcome).Inc()
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued(name string) {
	c.tokensIssued.WithLabelValues(name).Inc()
}

// RecordTokenValidation はトークン検証の結果を記録する。
func (c *Collector) RecordTokenValidation(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	c.tokenValidation.WithLabelValues(result).Inc()
}

// RecordTokensRevoked は失効させたトークン数を記録する。
func (c *Collector) RecordTokensRevoked(n int) {
	if n > 0 {
		c.tokensRevoked.Add(float64(n))
	}
}

// Middleware はHTTPリクエスト数と処理時間を記録するミドルウェアを返す。
func (c *Collector) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return promhttp.InstrumentHandlerDuration(c.httpDuration,
			promhttp.InstrumentHandlerCounter(c.httpRequests, next))
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ auth.MetricsRecorder = (*Collector)(nil)
