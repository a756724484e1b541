package orderflow

import (
	"sync"

	"orderflow/internal/domain/models"
	"orderflow/internal/domain/repository"
	applogger "orderflow/pkg/logger"
)

// Coordinator owns the per-(exchange, symbol) aggregator registry. Each pair
// gets one worker goroutine; trades and close ticks travel through the same
// channel, so a trade arriving just before a boundary is applied before the
// close and a trade just after lands in the next candle. Pairs are created
// lazily on first trade and live for the process lifetime.
type Coordinator struct {
	baseInterval models.Interval
	clock        Clock
	metrics      repository.Metrics
	log          *applogger.Logger

	mu      sync.RWMutex
	workers map[string]*pairWorker
	closed  bool
}

type pairWorker struct {
	agg *Aggregator
	ch  chan workerMsg
	wg  sync.WaitGroup
}

type workerMsg struct {
	// close tick when reply != nil, trade otherwise
	reply chan *models.ClosedCandle

	isPassiveBid bool
	quantity     float64
	price        float64
}

// NewCoordinator creates a coordinator for the given base interval.
func NewCoordinator(baseInterval models.Interval, clock Clock, metrics repository.Metrics, log *applogger.Logger) (*Coordinator, error) {
	if _, err := baseInterval.DurationMs(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Coordinator{
		baseInterval: baseInterval,
		clock:        clock,
		metrics:      metrics,
		log:          log,
		workers:      make(map[string]*pairWorker),
	}, nil
}

// ProcessTrade routes a trade to its pair worker, creating the worker on
// first sight of the pair.
func (c *Coordinator) ProcessTrade(ev models.TradeEvent) {
	w := c.worker(ev.Exchange, ev.Symbol)
	if w == nil {
		return
	}
	w.ch <- workerMsg{isPassiveBid: ev.IsPassiveBid, quantity: ev.Quantity, price: ev.Price}
	if c.metrics != nil {
		c.metrics.RecordTrade(ev.Exchange, ev.Symbol)
	}
}

// CloseAll sends a close tick to every worker and collects the closed base
// candles, keyed by "exchange:symbol". Pairs whose aggregator had no open
// candle are absent from the result. The tick is serialized with each pair's
// trade stream, so there is no race between the last trade of a bucket and
// the close.
func (c *Coordinator) CloseAll() map[string]*models.ClosedCandle {
	c.mu.RLock()
	workers := make(map[string]*pairWorker, len(c.workers))
	for k, w := range c.workers {
		workers[k] = w
	}
	c.mu.RUnlock()

	out := make(map[string]*models.ClosedCandle, len(workers))
	for key, w := range workers {
		reply := make(chan *models.ClosedCandle, 1)
		w.ch <- workerMsg{reply: reply}
		if closed := <-reply; closed != nil {
			out[key] = closed
			if c.metrics != nil {
				c.metrics.RecordCandleClosed(closed.Exchange, closed.Symbol, string(closed.Interval))
			}
		}
	}
	return out
}

// Pairs returns the keys of all registered pairs.
func (c *Coordinator) Pairs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.workers))
	for k := range c.workers {
		out = append(out, k)
	}
	return out
}

// Shutdown stops all workers after draining their queues.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	workers := c.workers
	c.mu.Unlock()

	for _, w := range workers {
		close(w.ch)
		w.wg.Wait()
	}
}

func (c *Coordinator) worker(exchange, symbol string) *pairWorker {
	key := exchange + ":" + symbol

	c.mu.RLock()
	w, ok := c.workers[key]
	closed := c.closed
	c.mu.RUnlock()
	if ok || closed {
		return w
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok = c.workers[key]; ok {
		return w
	}
	if c.closed {
		return nil
	}

	agg, err := NewAggregator(exchange, symbol, c.baseInterval, c.clock)
	if err != nil {
		// Interval was validated in the constructor; reaching this is a bug.
		c.log.Error("aggregator construction failed",
			applogger.String("exchange", exchange),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil
	}

	w = &pairWorker{agg: agg, ch: make(chan workerMsg, 4096)}
	w.wg.Add(1)
	go w.run()
	c.workers[key] = w
	c.log.Info("aggregator registered",
		applogger.String("exchange", exchange),
		applogger.String("symbol", symbol),
		applogger.String("interval", string(c.baseInterval)),
	)
	return w
}

func (w *pairWorker) run() {
	defer w.wg.Done()
	for msg := range w.ch {
		if msg.reply != nil {
			msg.reply <- w.agg.CloseActive()
			continue
		}
		w.agg.ProcessTrade(msg.isPassiveBid, msg.quantity, msg.price)
	}
}
