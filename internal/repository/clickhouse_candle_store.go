package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"orderflow/internal/domain/models"
	"orderflow/internal/domain/repository"
	pkgch "orderflow/pkg/clickhouse"
	applogger "orderflow/pkg/logger"
)

const candleTable = "footprint_candles"

// candleSchema uses ReplacingMergeTree keyed on the candle identity so a
// redelivered candle replaces the stored row instead of duplicating it.
// inserted_at is the replacing version: the latest delivery wins.
var candleSchema = []string{
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id             String,
		exchange       LowCardinality(String),
		symbol         LowCardinality(String),
		interval       LowCardinality(String),
		open_time      DateTime64(3, 'UTC'),
		close_time     DateTime64(3, 'UTC'),
		aggressive_bid Float64,
		aggressive_ask Float64,
		volume         Float64,
		volume_delta   Float64,
		high           Float64,
		low            Float64,
		close          Float64,
		bid_imbalance  Float64,
		price_levels   String,
		inserted_at    DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(inserted_at)
	PARTITION BY toYYYYMM(open_time)
	ORDER BY (exchange, symbol, interval, open_time)`, candleTable),
}

// ClickHouseCandleStore implements repository.CandleStore on ClickHouse.
type ClickHouseCandleStore struct {
	client       *pkgch.Client
	chunkSize    int
	retentionAge time.Duration
	log          *applogger.Logger
}

// NewClickHouseCandleStore creates the candle store. chunkSize bounds rows per
// insert; retentionAge drives PruneOldData (zero disables pruning).
func NewClickHouseCandleStore(client *pkgch.Client, chunkSize int, retentionAge time.Duration, log *applogger.Logger) repository.CandleStore {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &ClickHouseCandleStore{
		client:       client,
		chunkSize:    chunkSize,
		retentionAge: retentionAge,
		log:          log,
	}
}

func (s *ClickHouseCandleStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, candleSchema)
}

// BatchUpsert inserts candles in chunks and returns the ids of every candle in
// a chunk that succeeded. A mid-batch failure returns the ids confirmed so far
// together with the error; the caller retries the remainder.
func (s *ClickHouseCandleStore) BatchUpsert(ctx context.Context, candles []*models.ClosedCandle) ([]string, error) {
	if len(candles) == 0 {
		return nil, nil
	}

	confirmed := make([]string, 0, len(candles))
	for start := 0; start < len(candles); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(candles) {
			end = len(candles)
		}
		chunk := candles[start:end]

		if err := s.insertChunk(ctx, chunk); err != nil {
			return confirmed, fmt.Errorf("candle batch upsert: %w", err)
		}
		for _, c := range chunk {
			confirmed = append(confirmed, c.ID)
		}
	}
	return confirmed, nil
}

func (s *ClickHouseCandleStore) insertChunk(ctx context.Context, chunk []*models.ClosedCandle) error {
	values := make([]string, 0, len(chunk))
	args := make([]interface{}, 0, len(chunk)*15)
	for _, c := range chunk {
		levels, err := json.Marshal(c.PriceLevels)
		if err != nil {
			return fmt.Errorf("marshal price levels: %w", err)
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			c.ID,
			c.Exchange,
			c.Symbol,
			string(c.Interval),
			c.OpenTime,
			c.CloseTime,
			c.AggressiveBid,
			c.AggressiveAsk,
			c.Volume,
			c.VolumeDelta,
			c.High,
			c.Low,
			c.Close,
			c.BidImbalancePercent,
			string(levels),
		)
	}

	q := fmt.Sprintf(`INSERT INTO %s
		(id, exchange, symbol, interval, open_time, close_time,
		 aggressive_bid, aggressive_ask, volume, volume_delta,
		 high, low, close, bid_imbalance, price_levels)
		VALUES %s`, candleTable, strings.Join(values, ","))
	_, err := s.client.DB().ExecContext(ctx, q, args...)
	return err
}

func (s *ClickHouseCandleStore) GetCandles(ctx context.Context, exchange, symbol string, interval models.Interval, start, end time.Time) ([]*models.ClosedCandle, error) {
	q := fmt.Sprintf(`SELECT id, exchange, symbol, interval, open_time, close_time,
		aggressive_bid, aggressive_ask, volume, volume_delta,
		high, low, close, bid_imbalance, price_levels
		FROM %s FINAL
		WHERE exchange = ? AND symbol = ? AND interval = ?`, candleTable)
	args := []interface{}{exchange, symbol, string(interval)}

	if !start.IsZero() {
		q += " AND open_time >= ?"
		args = append(args, start.UTC())
	}
	if !end.IsZero() {
		q += " AND open_time <= ?"
		args = append(args, end.UTC())
	}
	q += " ORDER BY open_time ASC"

	rows, err := s.client.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var candles []*models.ClosedCandle
	for rows.Next() {
		var (
			c         models.ClosedCandle
			ivl       string
			levelsRaw string
		)
		if err := rows.Scan(&c.ID, &c.Exchange, &c.Symbol, &ivl, &c.OpenTime, &c.CloseTime,
			&c.AggressiveBid, &c.AggressiveAsk, &c.Volume, &c.VolumeDelta,
			&c.High, &c.Low, &c.Close, &c.BidImbalancePercent, &levelsRaw); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Interval = models.Interval(ivl)
		c.OpenTime = c.OpenTime.UTC()
		c.CloseTime = c.CloseTime.UTC()
		c.OpenTimeMs = c.OpenTime.UnixMilli()
		c.CloseTimeMs = c.CloseTime.UnixMilli()
		c.IsClosed = true
		c.DidPersistToStore = true
		if levelsRaw != "" {
			if err := json.Unmarshal([]byte(levelsRaw), &c.PriceLevels); err != nil {
				return nil, fmt.Errorf("unmarshal price levels: %w", err)
			}
		}
		candles = append(candles, &c)
	}
	return candles, rows.Err()
}

func (s *ClickHouseCandleStore) GetTimestampRange(ctx context.Context, exchange, symbol string) (map[models.Interval]models.TimestampRange, error) {
	q := fmt.Sprintf(`SELECT interval, min(open_time), max(open_time)
		FROM %s FINAL
		WHERE exchange = ? AND symbol = ?
		GROUP BY interval`, candleTable)

	rows, err := s.client.DB().QueryContext(ctx, q, exchange, symbol)
	if err != nil {
		return nil, fmt.Errorf("query timestamp range: %w", err)
	}
	defer rows.Close()

	out := make(map[models.Interval]models.TimestampRange)
	for rows.Next() {
		var (
			interval    string
			first, last time.Time
		)
		if err := rows.Scan(&interval, &first, &last); err != nil {
			return nil, fmt.Errorf("scan timestamp range: %w", err)
		}
		out[models.Interval(interval)] = models.TimestampRange{First: first.UTC(), Last: last.UTC()}
	}
	return out, rows.Err()
}

func (s *ClickHouseCandleStore) FindGaps(ctx context.Context, exchange, symbol string, interval models.Interval, threshold time.Duration) ([]models.Gap, error) {
	q := fmt.Sprintf(`SELECT at, delta FROM (
		SELECT open_time AS at,
			dateDiff('millisecond', lagInFrame(open_time) OVER w, open_time) AS delta,
			row_number() OVER w AS rn
		FROM %s FINAL
		WHERE exchange = ? AND symbol = ? AND interval = ?
		WINDOW w AS (ORDER BY open_time ASC)
	) WHERE rn > 1 AND delta > ?
	ORDER BY at ASC`, candleTable)

	rows, err := s.client.DB().QueryContext(ctx, q, exchange, symbol, string(interval), threshold.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("query gaps: %w", err)
	}
	defer rows.Close()

	var gaps []models.Gap
	for rows.Next() {
		var (
			at    time.Time
			delta int64
		)
		if err := rows.Scan(&at, &delta); err != nil {
			return nil, fmt.Errorf("scan gap: %w", err)
		}
		gaps = append(gaps, models.Gap{At: at.UTC(), Delta: time.Duration(delta) * time.Millisecond})
	}
	return gaps, rows.Err()
}

// PruneOldData drops candles older than the retention age. Lightweight delete
// keeps the mutation cheap; ClickHouse applies it asynchronously.
func (s *ClickHouseCandleStore) PruneOldData(ctx context.Context) error {
	if s.retentionAge <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-s.retentionAge)
	q := fmt.Sprintf("DELETE FROM %s WHERE open_time < ?", candleTable)
	if _, err := s.client.DB().ExecContext(ctx, q, cutoff); err != nil {
		return fmt.Errorf("prune old candles: %w", err)
	}
	s.log.Info("pruned old candles", applogger.Time("cutoff", cutoff))
	return nil
}

func (s *ClickHouseCandleStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseCandleStore) Close() error {
	return nil // pool is owned by pkg/clickhouse
}
