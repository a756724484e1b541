package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tradesTotal   *prometheus.CounterVec
	candlesClosed *prometheus.CounterVec
	flushCandles  prometheus.Counter
	flushLatency  prometheus.Histogram
	queueDepth    *prometheus.GaugeVec
	prunedTotal   prometheus.Counter
	errorsTotal   *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		tradesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_trades_total",
				Help: "Total trade events folded into candles",
			},
			[]string{"exchange", "symbol"},
		),
		candlesClosed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_candles_closed_total",
				Help: "Total candles closed",
			},
			[]string{"exchange", "symbol", "interval"},
		),
		flushCandles: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "orderflow_flush_candles_total",
				Help: "Total candles confirmed durable by flushes",
			},
		),
		flushLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orderflow_flush_duration_seconds",
				Help:    "Duration of candle flushes in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		queueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orderflow_queue_depth",
				Help: "Closed candles currently held in the persistence queue",
			},
			[]string{"exchange"},
		),
		prunedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "orderflow_queue_pruned_total",
				Help: "Total candles evicted from the persistence queue",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordTrade records one processed trade event.
func (r *Recorder) RecordTrade(exchange, symbol string) {
	r.tradesTotal.WithLabelValues(exchange, symbol).Inc()
}

// RecordCandleClosed records a candle close.
func (r *Recorder) RecordCandleClosed(exchange, symbol, interval string) {
	r.candlesClosed.WithLabelValues(exchange, symbol, interval).Inc()
}

// RecordFlush records a flush of n confirmed candles and its latency.
func (r *Recorder) RecordFlush(candles int, seconds float64) {
	r.flushCandles.Add(float64(candles))
	r.flushLatency.Observe(seconds)
}

// RecordQueueDepth records the persistence queue depth.
func (r *Recorder) RecordQueueDepth(exchange string, depth int) {
	r.queueDepth.WithLabelValues(exchange).Set(float64(depth))
}

// RecordPruned records candles evicted from the queue.
func (r *Recorder) RecordPruned(candles int) {
	r.prunedTotal.Add(float64(candles))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
