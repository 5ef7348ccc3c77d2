package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/procurelab/bidwise/config"
	"github.com/procurelab/bidwise/internal/sourcing"
	"github.com/procurelab/bidwise/internal/store"
)

// Querier matches the structured-query client used for price samples.
type Querier interface {
	Run(ctx context.Context, statement string) sourcing.QueryResult
}

// Scheduler polls price watches and records fresh price samples on their
// cron cadence. A Redis lock keeps replicas from sampling the same watch.
type Scheduler struct {
	Store   *store.Store
	Query   Querier
	Rdb     *redis.Client
	Catalog config.CatalogConfig
	Stop    chan struct{}

	Interval time.Duration
	logger   *log.Logger
}

func (s *Scheduler) Start() {
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[WATCH] ", log.LstdFlags)
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	watches, err := s.Store.ListActivePriceWatches(ctx)
	if err != nil {
		s.logger.Printf("list watches: %v", err)
		return
	}
	for _, w := range watches {
		var last *time.Time
		if w.LastRunAt.Valid {
			t := w.LastRunAt.Time
			last = &t
		}
		if !isDue(w.ScheduleCron, last) {
			continue
		}
		if s.Rdb != nil {
			ok, _ := s.Rdb.SetNX(ctx, "watch:lock:"+w.ID, "1", 2*time.Minute).Result()
			if !ok {
				continue
			}
		}
		s.sample(ctx, w)
	}
}

// sample runs the secondary-price lookup for the watched item and records the
// average price, if any.
func (s *Scheduler) sample(ctx context.Context, w store.PriceWatch) {
	res := s.Query.Run(ctx, sourcing.SecondaryPriceStatement(s.Catalog.PriceTab, w.ItemName))
	now := time.Now()
	if err := s.Store.MarkPriceWatchRun(ctx, w.ID, now); err != nil {
		s.logger.Printf("mark watch %s: %v", w.ID, err)
	}
	if res.Error != "" {
		s.logger.Printf("watch %s (%s): query failed: %s", w.ID, w.ItemName, res.Error)
		return
	}
	if len(res.Rows) == 0 {
		return
	}
	price, ok := numericCell(res.Rows[0]["avg_price"])
	if !ok {
		return
	}
	if err := s.Store.AddPriceSample(ctx, w.ID, price, "CNY", "secondary-price-library"); err != nil {
		s.logger.Printf("record sample for watch %s: %v", w.ID, err)
		return
	}
	s.logger.Printf("watch %s (%s): recorded price %.2f", w.ID, w.ItemName, price)
}

func numericCell(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// isDue determines whether a watch with the given cron spec should run now.
// Supports "@daily", "@hourly" and standard cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
