package di

import (
	"fmt"

	"orderflow/internal/backfill"
	"orderflow/internal/domain/models"
	"orderflow/internal/domain/repository"
	"orderflow/internal/exchange/binance"
	"orderflow/internal/handler/api"
	"orderflow/internal/orderflow"
	internalrepo "orderflow/internal/repository"
	"orderflow/internal/usecase"
	pkgcache "orderflow/pkg/cache"
	pkgch "orderflow/pkg/clickhouse"
	"orderflow/pkg/config"
	xhttp "orderflow/pkg/http"
	pkgkafka "orderflow/pkg/kafka"
	applogger "orderflow/pkg/logger"
	"orderflow/pkg/metrics"
	"orderflow/pkg/server"
)

// ProvideLogger creates the application logger. Production logs JSON, other
// environments log to the console.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCandleStore creates the ClickHouse candle repository.
func ProvideCandleStore(chClient *pkgch.Client, cfg *config.Config, log *applogger.Logger) repository.CandleStore {
	return internalrepo.NewClickHouseCandleStore(
		chClient,
		cfg.ClickHouse.BatchChunkSize,
		cfg.Aggregation.RetentionAge,
		log,
	)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideNotifier creates the closed-candle fan-out, or nil without Kafka.
func ProvideNotifier(producer *pkgkafka.Producer, cfg *config.Config) repository.Notifier {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaNotifier(producer, cfg.Kafka.Topic)
}

// ProvideCandleCache creates the latest-candle Redis cache, or nil when Redis
// is disabled.
func ProvideCandleCache(cfg *config.Config) (repository.CandleCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	layered := pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(4096))
	return internalrepo.NewRedisCandleCache(layered), nil
}

// ProvideCandleQueue creates the at-least-once persistence queue.
func ProvideCandleQueue(
	store repository.CandleStore,
	notifier repository.Notifier,
	m repository.Metrics,
	log *applogger.Logger,
) *orderflow.CandleQueue {
	return orderflow.NewCandleQueue(store, notifier, m, log)
}

// ProvideCoordinator creates the per-pair aggregation coordinator on the real
// clock.
func ProvideCoordinator(cfg *config.Config, m repository.Metrics, log *applogger.Logger) (*orderflow.Coordinator, error) {
	return orderflow.NewCoordinator(models.Interval(cfg.Aggregation.BaseInterval), orderflow.RealClock{}, m, log)
}

// ProvideTradeStream creates the Binance WebSocket stream.
func ProvideTradeStream(cfg *config.Config, log *applogger.Logger) repository.TradeStream {
	return binance.New(
		cfg.Exchange.WebSocketURL,
		cfg.Exchange.Symbols,
		cfg.Exchange.ReconnectDelay,
		cfg.Exchange.PingInterval,
		log,
	)
}

// ProvideLiveService creates the realtime aggregation pipeline.
func ProvideLiveService(
	cfg *config.Config,
	stream repository.TradeStream,
	coord *orderflow.Coordinator,
	queue *orderflow.CandleQueue,
	store repository.CandleStore,
	cache repository.CandleCache,
	m repository.Metrics,
	log *applogger.Logger,
) (*usecase.LiveService, error) {
	htf, err := parseIntervals(cfg.Aggregation.Intervals)
	if err != nil {
		return nil, err
	}
	return usecase.NewLiveService(usecase.LiveConfig{
		Exchange:     cfg.Exchange.Name,
		BaseInterval: models.Interval(cfg.Aggregation.BaseInterval),
		HTFIntervals: htf,
		QueueMaxSize: cfg.Aggregation.QueueMaxSize,
	}, stream, coord, queue, store, cache, m, log), nil
}

// ProvideBackfillDriver creates the historical replay driver, or nil when
// backfill is disabled. The backfill queue has no notifier: replayed candles
// are not fanned out.
func ProvideBackfillDriver(
	cfg *config.Config,
	store repository.CandleStore,
	m repository.Metrics,
	log *applogger.Logger,
) (*backfill.Driver, error) {
	if !cfg.Backfill.Enabled {
		return nil, nil
	}
	htf, err := parseIntervals(cfg.Aggregation.Intervals)
	if err != nil {
		return nil, err
	}
	source := backfill.NewBinanceSource(cfg.Backfill.BaseURL, cfg.Backfill.RequestsPerS, cfg.Backfill.Burst, log)
	queue := orderflow.NewCandleQueue(store, nil, m, log)
	return backfill.NewDriver(source, store, queue, m, log,
		cfg.Exchange.Name, models.Interval(cfg.Aggregation.BaseInterval), htf,
		cfg.Aggregation.QueueMaxSize)
}

// ProvideHTTPHandler creates the candle read API handler.
func ProvideHTTPHandler(
	store repository.CandleStore,
	cache repository.CandleCache,
	log *applogger.Logger,
) xhttp.Handler {
	svc := usecase.NewCandleService(store, cache)
	return api.NewCandlesHandler(log, svc)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	live *usecase.LiveService,
	backfiller *backfill.Driver,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	cache repository.CandleCache,
) *server.App {
	return server.New(cfg, log, live, backfiller, handler, chClient, producer, cache)
}

// parseIntervals validates the configured roll-up targets and returns them
// smallest to largest, the order cascades depend on.
func parseIntervals(raw []string) ([]models.Interval, error) {
	want := make(map[models.Interval]bool, len(raw))
	for _, s := range raw {
		iv := models.Interval(s)
		if !iv.Valid() {
			return nil, fmt.Errorf("unknown interval %q in aggregation.intervals", s)
		}
		want[iv] = true
	}
	out := make([]models.Interval, 0, len(want))
	for _, iv := range models.AllIntervals {
		if want[iv] {
			out = append(out, iv)
		}
	}
	return out, nil
}
