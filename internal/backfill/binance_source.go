// Package backfill replays historical trades through the aggregation engine
// under a simulated clock, so live and historical candles are built by the
// same code path.
package backfill

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"orderflow/internal/domain/models"
	xhttp "orderflow/pkg/http"
	applogger "orderflow/pkg/logger"
)

// TradeSource supplies historical trades for one symbol, sorted by timestamp,
// within [start, end).
type TradeSource interface {
	Trades(ctx context.Context, symbol string, start, end time.Time) ([]models.TradeEvent, error)
}

const aggTradesPageLimit = 1000

// BinanceSource fetches historical aggregated trades from the Binance REST
// API, paginating by trade time and throttled by a client-side rate limit.
type BinanceSource struct {
	client  *xhttp.Client
	baseURL string
	limiter *rate.Limiter
	log     *applogger.Logger
}

// NewBinanceSource creates a rate-limited Binance REST trade source.
func NewBinanceSource(baseURL string, requestsPerSecond float64, burst int, log *applogger.Logger) *BinanceSource {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if burst <= 0 {
		burst = 1
	}
	return &BinanceSource{
		client:  xhttp.NewClient(xhttp.WithTimeout(30 * time.Second)),
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		log:     log,
	}
}

type restAggTrade struct {
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
	BestMatch    bool   `json:"M"`
}

func (s *BinanceSource) Trades(ctx context.Context, symbol string, start, end time.Time) ([]models.TradeEvent, error) {
	startMs := start.UnixMilli()
	endMs := end.UnixMilli() - 1
	if endMs < startMs {
		return nil, nil
	}

	var out []models.TradeEvent
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return out, err
		}

		var page []restAggTrade
		err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    s.baseURL + "/api/v3/aggTrades",
			QueryParams: map[string][]string{
				"symbol":    {symbol},
				"startTime": {strconv.FormatInt(startMs, 10)},
				"endTime":   {strconv.FormatInt(endMs, 10)},
				"limit":     {strconv.Itoa(aggTradesPageLimit)},
			},
		}, &page)
		if err != nil {
			return out, fmt.Errorf("fetch aggTrades %s: %w", symbol, err)
		}
		if len(page) == 0 {
			break
		}

		for _, t := range page {
			price, err := strconv.ParseFloat(t.Price, 64)
			if err != nil {
				continue
			}
			qty, err := strconv.ParseFloat(t.Quantity, 64)
			if err != nil || qty <= 0 {
				continue
			}
			out = append(out, models.TradeEvent{
				Exchange:     "binance",
				Symbol:       symbol,
				IsPassiveBid: t.IsBuyerMaker,
				Quantity:     qty,
				Price:        price,
				TimestampMs:  t.TradeTime,
			})
		}

		last := page[len(page)-1].TradeTime
		if len(page) < aggTradesPageLimit || last >= endMs {
			break
		}
		startMs = last + 1
	}

	s.log.Debug("fetched historical trades",
		applogger.String("symbol", symbol),
		applogger.Int("count", len(out)),
		applogger.Time("start", start),
		applogger.Time("end", end),
	)
	return out, nil
}
